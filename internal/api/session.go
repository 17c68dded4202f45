package api

import (
	"context"
	"net/http"

	"github.com/sells-group/student-map/internal/session"
)

const (
	sessionCookie = "student_map_session"
	sessionHeader = "X-Session-ID"
)

type ctxKey struct{}

// withSession attaches the caller's controller to the request context. The
// id is read from the X-Session-ID header or the session cookie; unknown ids
// get a fresh session, returned in both.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(sessionHeader)
		if id == "" {
			if c, err := r.Cookie(sessionCookie); err == nil {
				id = c.Value
			}
		}

		ctrl, created := h.sessions.Acquire(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    ctrl.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(sessionHeader, ctrl.ID())

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ctrl)))
	})
}

func controllerFrom(r *http.Request) *session.Controller {
	c, _ := r.Context().Value(ctxKey{}).(*session.Controller)
	return c
}
