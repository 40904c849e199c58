package httpserver

import (
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/athenax/reviewd/internal/errs"
	"github.com/athenax/reviewd/internal/limiter"
)

// Recover converts handler panics into 500s without killing the process.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logging records request metadata. Payloads are never logged.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requireAuth verifies the bearer token and stores the principal. Any auth
// failure ends the request here.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.verifier.Verify(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		ctx := WithPrincipal(r.Context(), p)
		ctx = WithSubject(ctx, p.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuth admits anonymous callers but still hard-rejects a present and
// invalid token. A verified subject without a principal passes through with
// the subject only, so registration endpoints can serve it.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, sub, err := s.verifier.TryVerify(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		ctx := r.Context()
		if p != nil {
			ctx = WithPrincipal(ctx, p)
		}
		if sub != "" {
			ctx = WithSubject(ctx, sub)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limit registers quotas for a named route and returns its admission
// middleware. It must run after authentication so per-user keys take over
// from per-address keys post-login.
func (s *Server) limit(route string, quotas ...limiter.Quota) func(http.Handler) http.Handler {
	if len(quotas) > 0 {
		s.limiter.SetRoute(route, quotas...)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec, err := s.limiter.Admit(r.Context(), s.identityKey(r), route)
			if err != nil {
				writeError(w, s.log, err)
				return
			}
			if !dec.Allowed {
				if dec.RetryAfter > 0 {
					secs := int64(dec.RetryAfter.Round(time.Second) / time.Second)
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				}
				writeError(w, s.log, errs.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identityKey prefers the verified principal id and falls back to the remote
// address for anonymous callers.
func (s *Server) identityKey(r *http.Request) string {
	if p := PrincipalFromCtx(r.Context()); p != nil {
		return "user:" + p.ID.String()
	}
	return "ip:" + remoteHost(r, s.trustForwarded)
}

// remoteHost extracts the caller address, honoring X-Forwarded-For only when
// the deployment fronts this server with a trusted proxy.
func remoteHost(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
