package session

import (
	"net/http"

	"github.com/google/uuid"
)

// CookieName stores the session id.
const CookieName = "aw_session"

// FromRequest returns the session id carried by r, if it is well formed.
func FromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// Ensure returns the request's session id, issuing a new one when absent.
func Ensure(w http.ResponseWriter, r *http.Request, secure bool) string {
	if id, ok := FromRequest(r); ok {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Later handlers in the same request see the new id.
	r.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	return id
}

// Expire removes the session cookie.
func Expire(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
