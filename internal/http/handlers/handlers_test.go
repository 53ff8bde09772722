package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/http/middlewares"
	"github.com/geocoder89/studentportal/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUsersRepo satisfies every store interface the handlers declare.
type fakeUsersRepo struct {
	findByEmailFn  func(ctx context.Context, email string) (user.User, error)
	createFn       func(ctx context.Context, u user.User) (user.User, error)
	updateFieldsFn func(ctx context.Context, id string, role user.Role, patch user.Patch) (user.User, error)
	deleteFn       func(ctx context.Context, id string, role user.Role) error
	listByRoleFn   func(ctx context.Context, role user.Role) ([]user.User, error)
}

func (f *fakeUsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	if f.findByEmailFn != nil {
		return f.findByEmailFn(ctx, email)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, u)
	}
	u.ID = "new-id"
	return u, nil
}

func (f *fakeUsersRepo) UpdateFields(ctx context.Context, id string, role user.Role, patch user.Patch) (user.User, error) {
	if f.updateFieldsFn != nil {
		return f.updateFieldsFn(ctx, id, role, patch)
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string, role user.Role) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id, role)
	}
	return nil
}

func (f *fakeUsersRepo) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	if f.listByRoleFn != nil {
		return f.listByRoleFn(ctx, role)
	}
	return nil, nil
}

type recordedWelcome struct {
	identity user.Identity
	source   string
}

type fakePublisher struct {
	calls []recordedWelcome
	err   error
}

func (p *fakePublisher) PublishWelcome(_ context.Context, u user.Identity, source string) error {
	p.calls = append(p.calls, recordedWelcome{identity: u, source: source})
	return p.err
}

type fakeDenylist struct {
	revoked map[string]time.Time
}

func (d *fakeDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	if d.revoked == nil {
		d.revoked = map[string]time.Time{}
	}
	d.revoked[jti] = until
	return nil
}

func (d *fakeDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := d.revoked[jti]
	return ok, nil
}

func newHasher() *security.Hasher {
	return security.NewHasher(bcrypt.MinCost)
}

func newManager(t *testing.T) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager("handler-test-secret", time.Hour)
	require.NoError(t, err)
	return m
}

func mustHash(t *testing.T, h *security.Hasher, plain string) string {
	t.Helper()
	hash, err := h.Hash(plain)
	require.NoError(t, err)
	return hash
}

// small helper function which returns the gin engine to mount one handler per test

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

// setupRouterAs mounts h behind a stub that plays the part of RequireAuth.
func setupRouterAs(identity user.Identity, method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, func(c *gin.Context) {
		c.Set(middlewares.CtxIdentity, identity)
		c.Next()
	}, h)

	return r
}

func doJSON(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSONWithHeader(r http.Handler, method, path, key, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(key, value)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}
