package rpc

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"custodia/gateway/auth"
)

type contextKey string

const principalKey contextKey = "custodia.principal"

// requestID tags every response with a unique identifier for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// authenticate verifies the HMAC headers and attaches the caller principal to
// the request context. The body is buffered for signing and restored for the
// downstream handler.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusServiceUnavailable, "authentication not configured")
			return
		}
		var body []byte
		if r.Body != nil {
			limited := io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1)
			buffered, err := io.ReadAll(limited)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unable to read request body")
				return
			}
			body = buffered
		}
		principal, err := s.auth.Authenticate(r, body)
		if err != nil {
			s.logger.Warn("request rejected", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) (*auth.Principal, bool) {
	principal, ok := r.Context().Value(principalKey).(*auth.Principal)
	return principal, ok && principal != nil
}
