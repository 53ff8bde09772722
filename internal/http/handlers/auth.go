package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/geocoder89/studentportal/internal/security"
	"github.com/gin-gonic/gin"
)

const invalidCredentialsMessage = "Invalid email or password"

type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
	CompareDummy(plain string)
}

type TokenIssuer interface {
	Issue(userID string) (auth.Token, error)
	Verify(raw string) (*auth.Claims, error)
}

// WelcomePublisher queues the welcome notification for a new student.
// Failures never change the HTTP outcome.
type WelcomePublisher interface {
	PublishWelcome(ctx context.Context, u user.Identity, source string) error
}

type noopPublisher struct{}

func (noopPublisher) PublishWelcome(context.Context, user.Identity, string) error { return nil }

type AuthHandlerConfig struct {
	Users     CredentialStore
	Hasher    PasswordHasher
	Tokens    TokenIssuer
	Denylist  auth.Denylist
	Cookie    auth.CookieConfig
	Publisher WelcomePublisher
	Prom      *observability.Prom
	Now       func() time.Time
}

type AuthHandler struct {
	users     CredentialStore
	hasher    PasswordHasher
	tokens    TokenIssuer
	denylist  auth.Denylist
	cookie    auth.CookieConfig
	publisher WelcomePublisher
	prom      *observability.Prom
	now       func() time.Time
}

func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	h := &AuthHandler{
		users:     cfg.Users,
		hasher:    cfg.Hasher,
		tokens:    cfg.Tokens,
		denylist:  cfg.Denylist,
		cookie:    cfg.Cookie,
		publisher: cfg.Publisher,
		prom:      cfg.Prom,
		now:       cfg.Now,
	}
	if h.denylist == nil {
		h.denylist = auth.NoopDenylist{}
	}
	if h.publisher == nil {
		h.publisher = noopPublisher{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Course   string `json:"course" binding:"required"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := h.hasher.Hash(req.Password)

	if err != nil {
		respondHashError(ctx, err, "Could not create user")
		return
	}

	newUser, err := user.NewStudent(req.Email, req.Name, hash, req.Course)
	if err != nil {
		respondStoreError(ctx, err, "auth.signup.validate", "", "Could not create user")
		return
	}

	created, err := h.users.Create(ctx.Request.Context(), newUser)

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.prom.AuthEvent("signup", "email_taken")
			RespondEmailTaken(ctx, "User with this email already exists")
			return
		}

		respondStoreError(ctx, err, "auth.signup.create", "", "Could not create user")
		return
	}

	if !h.startSession(ctx, created.ID) {
		return
	}

	h.prom.AuthEvent("signup", "ok")
	h.publishWelcome(ctx, created.Identity(), "signup")

	ctx.JSON(http.StatusCreated, created.Identity())
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	found, err := h.users.FindByEmail(ctx.Request.Context(), user.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// same bcrypt cost as a wrong password
			h.hasher.CompareDummy(req.Password)
			h.prom.AuthEvent("login", "invalid_credentials")
			RespondUnauthorized(ctx, "invalid_credentials", invalidCredentialsMessage)
			return
		}

		respondStoreError(ctx, err, "auth.login.find", "", "Could not log in")
		return
	}

	err = h.hasher.Compare(found.PasswordHash, req.Password)

	if err != nil {
		if !errors.Is(err, security.ErrMismatch) {
			slog.WarnContext(ctx.Request.Context(), "stored password hash unreadable", "user_id", found.ID, "err", err)
		}
		h.prom.AuthEvent("login", "invalid_credentials")
		RespondUnauthorized(ctx, "invalid_credentials", invalidCredentialsMessage)
		return
	}

	if !h.startSession(ctx, found.ID) {
		return
	}

	h.prom.AuthEvent("login", "ok")
	ctx.JSON(http.StatusOK, found.Identity())
}

// Logout always succeeds. A valid token presented with the request is
// revoked until its natural expiry when a denylist is configured.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw := h.cookie.Read(ctx.Request)

	if raw != "" {
		claims, err := h.tokens.Verify(raw)
		if err == nil {
			err = h.denylist.Revoke(ctx.Request.Context(), claims.TokenID(), claims.Expiry())
			if err != nil {
				slog.WarnContext(ctx.Request.Context(), "token revocation failed", "err", err, "request_id", requestIDFrom(ctx))
			}
		}
	}

	h.cookie.Clear(ctx.Writer)
	h.prom.AuthEvent("logout", "ok")

	RespondMessage(ctx, http.StatusOK, "Logged out successfully")
}

// Helper functions

func (h *AuthHandler) startSession(ctx *gin.Context, userID string) bool {
	tok, err := h.tokens.Issue(userID)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "issue token failed", "err", err, "request_id", requestIDFrom(ctx))
		RespondInternal(ctx, "Could not create session")
		return false
	}

	h.cookie.Set(ctx.Writer, tok, h.now())
	return true
}

func (h *AuthHandler) publishWelcome(ctx *gin.Context, u user.Identity, source string) {
	err := h.publisher.PublishWelcome(ctx.Request.Context(), u, source)
	if err != nil {
		slog.WarnContext(ctx.Request.Context(), "welcome notification not queued",
			"user_id", u.ID,
			"err", err,
			"request_id", requestIDFrom(ctx),
		)
	}
}
