package web

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/klytics/creditkit/internal/analysis"
)

const (
	cookieName   = "creditkit"
	sessionIDKey = "id"
)

// session returns the analysis session behind the request's cookie, issuing a
// new ID when the cookie is absent or unreadable.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*analysis.Session, *sessions.Session) {
	sess, err := s.sessionStore.Get(r, cookieName)
	if err != nil {
		s.logger.Debug("discarding unreadable session cookie", slog.String("error", err.Error()))
	}

	id, _ := sess.Values[sessionIDKey].(string)
	if id == "" {
		id = uuid.NewString()
		sess.Values[sessionIDKey] = id
		s.save(w, r, sess)
	}
	return s.registry.Get(id), sess
}

// sessionKey identifies the caller for rate limiting without creating a session.
func (s *Server) sessionKey(r *http.Request) string {
	if sess, err := s.sessionStore.Get(r, cookieName); err == nil {
		if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
			return id
		}
	}
	return "addr:" + r.RemoteAddr
}

func (s *Server) flash(w http.ResponseWriter, r *http.Request, msg string) {
	_, sess := s.session(w, r)
	sess.AddFlash(msg)
	s.save(w, r, sess)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	if err := sess.Save(r, w); err != nil {
		s.logger.Warn("could not save session cookie", slog.String("error", err.Error()))
	}
}
