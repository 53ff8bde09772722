package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/studentportal/internal/actorctx"
	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	verifyFn func(raw string) (*auth.Claims, error)
}

func (f fakeVerifier) Verify(raw string) (*auth.Claims, error) { return f.verifyFn(raw) }

type fakeUsers struct {
	findFn func(ctx context.Context, id string) (user.User, error)
}

func (f fakeUsers) FindByID(ctx context.Context, id string) (user.User, error) {
	return f.findFn(ctx, id)
}

type fakeDenylist struct {
	revoked map[string]bool
	err     error
}

func (f fakeDenylist) Revoke(context.Context, string, time.Time) error { return nil }

func (f fakeDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], f.err
}

func claimsFor(sub, jti string) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ID: jti}}
}

func okVerifier() fakeVerifier {
	return fakeVerifier{verifyFn: func(raw string) (*auth.Claims, error) {
		if raw != "good" {
			return nil, auth.ErrInvalidToken
		}
		return claimsFor("u1", "jti-1"), nil
	}}
}

func usersWith(users ...user.User) fakeUsers {
	return fakeUsers{findFn: func(_ context.Context, id string) (user.User, error) {
		for _, u := range users {
			if u.ID == id {
				return u, nil
			}
		}
		return user.User{}, user.ErrNotFound
	}}
}

func protectedRouter(m *AuthMiddleware, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	handlers := append([]gin.HandlerFunc{m.RequireAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		fromCtx, _ := actorctx.IdentityFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": id.ID, "role": id.Role, "ctxId": fromCtx.ID})
	})
	r.GET("/api/protected", handlers...)
	return r
}

func doGet(r http.Handler, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestRequireAuth(t *testing.T) {
	student := user.User{ID: "u1", Email: "s@x.com", Name: "S", Role: user.RoleStudent, Course: "CS"}

	tests := []struct {
		name     string
		cookie   string
		users    fakeUsers
		denylist fakeDenylist
		want     int
	}{
		{name: "no cookie", users: usersWith(student), want: http.StatusUnauthorized},
		{name: "invalid token", cookie: "bad", users: usersWith(student), want: http.StatusUnauthorized},
		{name: "revoked token", cookie: "good", users: usersWith(student), denylist: fakeDenylist{revoked: map[string]bool{"jti-1": true}}, want: http.StatusUnauthorized},
		{name: "deleted user", cookie: "good", users: usersWith(), want: http.StatusUnauthorized},
		{name: "store failure", cookie: "good", users: fakeUsers{findFn: func(context.Context, string) (user.User, error) {
			return user.User{}, errors.New("connection reset")
		}}, want: http.StatusInternalServerError},
		{name: "denylist failure", cookie: "good", users: usersWith(student), denylist: fakeDenylist{err: errors.New("redis down")}, want: http.StatusInternalServerError},
		{name: "valid", cookie: "good", users: usersWith(student), want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(okVerifier(), tt.users, tt.denylist, auth.NewCookieConfig(false), nil)
			w := doGet(protectedRouter(m), tt.cookie)

			require.Equal(t, tt.want, w.Code, w.Body.String())

			if tt.want == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "u1", body["id"])
				assert.Equal(t, "student", body["role"])
				assert.Equal(t, "u1", body["ctxId"])
			}
		})
	}
}

func TestRequireAuth_UnauthorizedBodiesAreIdentical(t *testing.T) {
	student := user.User{ID: "u1", Role: user.RoleStudent}
	m := NewAuthMiddleware(okVerifier(), usersWith(), fakeDenylist{}, auth.NewCookieConfig(false), nil)
	r := protectedRouter(m)

	var bodies []errorBody
	for _, cookie := range []string{"", "bad", "good"} {
		w := doGet(r, cookie)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		body := decodeError(t, w)
		assert.NotEmpty(t, body.RequestID)
		body.RequestID = ""
		bodies = append(bodies, body)
	}

	m = NewAuthMiddleware(okVerifier(), usersWith(student), fakeDenylist{revoked: map[string]bool{"jti-1": true}}, auth.NewCookieConfig(false), nil)
	w := doGet(protectedRouter(m), "good")
	body := decodeError(t, w)
	body.RequestID = ""
	bodies = append(bodies, body)

	for _, b := range bodies {
		assert.Equal(t, errorBody{Code: "unauthorized", Message: "Not authorized"}, b)
	}
}

func TestRequireRole(t *testing.T) {
	admin := user.User{ID: "u1", Role: user.RoleAdmin}
	student := user.User{ID: "u1", Role: user.RoleStudent, Course: "CS"}

	for _, tt := range []struct {
		name string
		u    user.User
		want int
	}{
		{name: "admin passes", u: admin, want: http.StatusOK},
		{name: "student forbidden", u: student, want: http.StatusForbidden},
	} {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(okVerifier(), usersWith(tt.u), nil, auth.NewCookieConfig(false), nil)
			w := doGet(protectedRouter(m, RequireRole(user.RoleAdmin)), "good")
			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "forbidden", decodeError(t, w).Code)
			}
		})
	}
}

func TestRequireRole_WithoutIdentity(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRole(user.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, hit().Code)
	assert.Equal(t, http.StatusOK, hit().Code)

	w := hit()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, w).Code)

	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, hit().Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:5173"}))
	r.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(body, ct string) int {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(`{}`, "application/json; charset=utf-8"))
	assert.Equal(t, http.StatusUnsupportedMediaType, send(`a=b`, "application/x-www-form-urlencoded"))
	assert.Equal(t, http.StatusOK, send(``, ""))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Body.String())
}
