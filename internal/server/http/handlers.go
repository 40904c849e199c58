package httpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/model"
	"github.com/athenax/reviewd/internal/repository"
	"github.com/athenax/reviewd/internal/service"
)

// maxBodyBytes caps request bodies; payloads are opaque but not unbounded.
const maxBodyBytes = 1 << 20

func (s *Server) handleList(svc *service.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.GetAll(r.Context(), PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleListOwn(svc *service.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.GetByOwner(r.Context(), PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleListByState(svc *service.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := model.ReportState(chi.URLParam(r, "state"))
		out, err := svc.GetByState(r.Context(), state, PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGet(svc *service.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.GetByID(r.Context(), chi.URLParam(r, "id"), PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleCreate(svc *service.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := readPayload(r)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		out, err := svc.Create(r.Context(), payload, PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func (s *Server) handleEdit(svc *service.SubmissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := readPayload(r)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		out, err := svc.Edit(r.Context(), chi.URLParam(r, "id"), payload, PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleComment(svc *service.SubmissionService) http.HandlerFunc {
	type commentRequest struct {
		Comment string `json:"comment"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req commentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, s.log, err)
			return
		}
		out, err := svc.AddComment(r.Context(), chi.URLParam(r, "id"), req.Comment, PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleSetState(svc *service.SubmissionService) http.HandlerFunc {
	type stateRequest struct {
		State model.ReportState `json:"state"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req stateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, s.log, err)
			return
		}
		out, err := svc.SetState(r.Context(), chi.URLParam(r, "id"), req.State, PrincipalFromCtx(r.Context()))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleProvision registers a principal for a verified-but-unregistered
// subject. Runs behind optionalAuth: a missing or unverifiable subject is
// rejected here, not by the middleware.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	type provisionRequest struct {
		Email       string  `json:"email"`
		AccountType *string `json:"account_type"`
	}
	sub := SubjectFromCtx(r.Context())
	if sub == "" {
		writeError(w, s.log, errs.ErrNoCredentials)
		return
	}
	var req provisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	out, err := s.principals.Provision(r.Context(), model.PrincipalCreate{
		Subject:     sub,
		Email:       req.Email,
		AccountType: req.AccountType,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleLogin verifies local credentials for a subject. Anonymous route; the
// rate limit keyed on the caller address is the brute-force brake.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	type loginRequest struct {
		Subject  string `json:"subject"`
		Password string `json:"password"`
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	p, err := s.principals.CheckPassword(r.Context(), req.Subject, req.Password)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, repository.PrincipalOut(*p))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromCtx(r.Context())
	out, err := s.principals.Get(r.Context(), p.ID.String())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	type passwordRequest struct {
		Password string `json:"password"`
	}
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	p := PrincipalFromCtx(r.Context())
	if err := s.principals.SetPassword(r.Context(), p.ID.String(), req.Password); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errs.ErrValidation
	}
	return nil
}

// readPayload takes the whole body as the opaque submission payload after a
// shape check; field-level validation lives outside this core.
func readPayload(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 || !json.Valid(body) {
		return nil, errs.ErrValidation
	}
	return body, nil
}
