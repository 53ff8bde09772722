package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/http/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(t *testing.T, repo *fakeUsersRepo, pub *fakePublisher, deny auth.Denylist) (*handlers.AuthHandler, *auth.Manager) {
	t.Helper()
	m := newManager(t)

	var publisher handlers.WelcomePublisher
	if pub != nil {
		publisher = pub
	}

	h := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Users:     repo,
		Hasher:    newHasher(),
		Tokens:    m,
		Denylist:  deny,
		Cookie:    auth.NewCookieConfig(false),
		Publisher: publisher,
	})
	return h, m
}

func TestSignUpHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createFn   func(ctx context.Context, u user.User) (user.User, error)
		wantStatus int
		wantCode   string
		wantCookie bool
	}{
		{
			name:       "valid signup",
			body:       `{"email":" Alice@Example.com ","name":"Alice","password":"secret1","course":"CS"}`,
			wantStatus: http.StatusCreated,
			wantCookie: true,
		},
		{
			name:       "missing fields",
			body:       `{"email":"alice@example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "short password",
			body:       `{"email":"alice@example.com","name":"Alice","password":"12345","course":"CS"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "blank course",
			body:       `{"email":"alice@example.com","name":"Alice","password":"secret1","course":"   "}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "duplicate email",
			body: `{"email":"alice@example.com","name":"Alice","password":"secret1","course":"CS"}`,
			createFn: func(context.Context, user.User) (user.User, error) {
				return user.User{}, user.ErrEmailTaken
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "email_taken",
		},
		{
			name:       "password over 72 bytes",
			body:       `{"email":"alice@example.com","name":"Alice","password":"` + strings.Repeat("a", 73) + `","course":"CS"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "multi-byte password over 72 bytes",
			body:       `{"email":"alice@example.com","name":"Alice","password":"` + strings.Repeat("é", 40) + `","course":"CS"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "store failure",
			body: `{"email":"alice@example.com","name":"Alice","password":"secret1","course":"CS"}`,
			createFn: func(context.Context, user.User) (user.User, error) {
				return user.User{}, errors.New("socket closed")
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stored user.User
			repo := &fakeUsersRepo{createFn: func(ctx context.Context, u user.User) (user.User, error) {
				if tt.createFn != nil {
					return tt.createFn(ctx, u)
				}
				stored = u
				u.ID = "u-1"
				return u, nil
			}}
			pub := &fakePublisher{}
			h, _ := newAuthHandler(t, repo, pub, nil)

			w := doJSON(setupRouter(http.MethodPost, "/api/auth/signup", h.SignUp), http.MethodPost, "/api/auth/signup", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCookie, sessionCookie(w) != nil)
			assert.NotContains(t, w.Body.String(), "$2a$")

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, mustReadJSON[apiError](t, w).Code)
				assert.Empty(t, pub.calls)
				return
			}

			assert.NotContains(t, strings.ToLower(w.Body.String()), "password")

			got := mustReadJSON[user.Identity](t, w)
			assert.Equal(t, "u-1", got.ID)
			assert.Equal(t, "alice@example.com", got.Email)
			assert.Equal(t, user.RoleStudent, got.Role)
			require.NotNil(t, got.Course)
			assert.Equal(t, "CS", *got.Course)

			assert.NotEqual(t, "secret1", stored.PasswordHash)
			require.NoError(t, newHasher().Compare(stored.PasswordHash, "secret1"))

			require.Len(t, pub.calls, 1)
			assert.Equal(t, "signup", pub.calls[0].source)
		})
	}
}

func TestSignUpHandler_PublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	h, _ := newAuthHandler(t, &fakeUsersRepo{}, pub, nil)

	w := doJSON(setupRouter(http.MethodPost, "/signup", h.SignUp), http.MethodPost, "/signup",
		`{"email":"a@example.com","name":"A","password":"secret1","course":"CS"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, pub.calls, 1)
}

func TestLoginHandler(t *testing.T) {
	hasher := newHasher()
	existing := user.User{
		ID:           "u-1",
		Email:        "alice@example.com",
		Name:         "Alice",
		Role:         user.RoleStudent,
		Course:       "CS",
		PasswordHash: mustHash(t, hasher, "secret1"),
	}

	repo := &fakeUsersRepo{findByEmailFn: func(_ context.Context, email string) (user.User, error) {
		if email == existing.Email {
			return existing, nil
		}
		return user.User{}, user.ErrNotFound
	}}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"email":"alice@example.com","password":"secret1"}`, wantStatus: http.StatusOK},
		{name: "missing password", body: `{"email":"alice@example.com"}`, wantStatus: http.StatusBadRequest},
		{name: "wrong password", body: `{"email":"alice@example.com","password":"nope123"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown email", body: `{"email":"bob@example.com","password":"secret1"}`, wantStatus: http.StatusUnauthorized},
	}

	var unauthorized []apiError

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newAuthHandler(t, repo, nil, nil)
			w := doJSON(setupRouter(http.MethodPost, "/login", h.Login), http.MethodPost, "/login", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			switch tt.wantStatus {
			case http.StatusOK:
				c := sessionCookie(w)
				require.NotNil(t, c)
				assert.True(t, c.HttpOnly)
				claims, err := m.Verify(c.Value)
				require.NoError(t, err)
				assert.Equal(t, "u-1", claims.UserID())
				assert.Equal(t, "u-1", mustReadJSON[user.Identity](t, w).ID)
			case http.StatusUnauthorized:
				assert.Nil(t, sessionCookie(w))
				unauthorized = append(unauthorized, mustReadJSON[apiError](t, w))
			}
		})
	}

	require.Len(t, unauthorized, 2)
	assert.Equal(t, unauthorized[0], unauthorized[1])
	assert.Equal(t, "Invalid email or password", unauthorized[0].Message)
}

func TestLoginHandler_StoreFailure(t *testing.T) {
	repo := &fakeUsersRepo{findByEmailFn: func(context.Context, string) (user.User, error) {
		return user.User{}, errors.New("server selection timeout")
	}}
	h, _ := newAuthHandler(t, repo, nil, nil)

	w := doJSON(setupRouter(http.MethodPost, "/login", h.Login), http.MethodPost, "/login", `{"email":"a@example.com","password":"secret1"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "server selection")
}

func TestLogoutHandler(t *testing.T) {
	deny := &fakeDenylist{}
	h, m := newAuthHandler(t, &fakeUsersRepo{}, nil, deny)
	r := setupRouter(http.MethodPost, "/api/auth/logout", h.Logout)

	tok, err := m.Issue("u-1")
	require.NoError(t, err)

	for name, cookies := range map[string][]*http.Cookie{
		"without cookie": nil,
		"garbage cookie": {{Name: auth.CookieName, Value: "garbage"}},
		"valid cookie":   {{Name: auth.CookieName, Value: tok.Raw}},
	} {
		t.Run(name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/auth/logout", "", cookies...)

			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"message":"Logged out successfully"}`, w.Body.String())

			c := sessionCookie(w)
			require.NotNil(t, c)
			assert.Empty(t, c.Value)
			assert.Contains(t, w.Header().Get("Set-Cookie"), "Expires=Thu, 01 Jan 1970 00:00:00 GMT")
		})
	}

	assert.Contains(t, deny.revoked, tok.ID)
	assert.Equal(t, tok.ExpiresAt, deny.revoked[tok.ID])
}
