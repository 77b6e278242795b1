package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/logging"
)

// SessionHeader carries the session token the client claims to work on.
const SessionHeader = "X-Session-ID"

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithClient(ctx, core.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

// clientIP returns the caller's address without the port. TrustedRealIP has
// already replaced RemoteAddr for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// claimedToken returns the session token named by the request, from the
// header or the session_id query parameter.
func claimedToken(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("session_id")
}

// boundToken returns the token bound to the caller by the session cookie.
func (s *Server) boundToken(r *http.Request) string {
	c, err := r.Cookie(s.cfg.Session.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// requireSession verifies the caller's claim against its cookie and returns
// the session along with a context tagged for logging and audit.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*core.Session, context.Context, bool) {
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.service.Resolve(ctx, claimedToken(r), s.boundToken(r))
	if err != nil {
		s.respondError(w, r, err)
		return nil, nil, false
	}
	return sess, logging.WithSession(ctx, sess.ID), true
}

// optionalSession resolves the caller's session when one is named. Rule
// management works without a loaded file, so resolution failures only drop
// the summary from the response.
func (s *Server) optionalSession(r *http.Request) (*core.Session, context.Context) {
	ctx := WithRequestMetadata(r.Context(), r)
	claimed := claimedToken(r)
	if claimed == "" {
		return nil, ctx
	}
	sess, err := s.service.Resolve(ctx, claimed, s.boundToken(r))
	if err != nil {
		logging.FromContext(ctx).Debug("rule change without session", "error", err)
		return nil, ctx
	}
	return sess, logging.WithSession(ctx, sess.ID)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
