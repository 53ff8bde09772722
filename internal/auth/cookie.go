package auth

import (
	"net/http"
	"time"
)

const CookieName = "jwt"

type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
}

func NewCookieConfig(secure bool) CookieConfig {
	return CookieConfig{Name: CookieName, Path: "/api", Secure: secure}
}

func (cc CookieConfig) Set(w http.ResponseWriter, tok Token, now time.Time) {
	maxAge := int(tok.ExpiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cc.Name,
		Value:    tok.Raw,
		Path:     cc.Path,
		Expires:  tok.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear overwrites the session cookie with an empty value that expired at
// the Unix epoch.
func (cc CookieConfig) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cc.Name,
		Value:    "",
		Path:     cc.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (cc CookieConfig) Read(r *http.Request) string {
	c, err := r.Cookie(cc.Name)
	if err != nil {
		return ""
	}
	return c.Value
}
