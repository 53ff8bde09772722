package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type ProfileStore interface {
	UpdateFields(ctx context.Context, id string, role user.Role, patch user.Patch) (user.User, error)
}

// ProfileHandler serves the caller's own record. The target id always comes
// from the verified session, never from the request.
type ProfileHandler struct {
	store ProfileStore
}

func NewProfileHandler(store ProfileStore) *ProfileHandler {
	return &ProfileHandler{store: store}
}

func (h *ProfileHandler) Get(ctx *gin.Context) {
	identity, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Not authorized")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, identity)
}

func (h *ProfileHandler) Update(ctx *gin.Context) {
	identity, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Not authorized")
		return
	}

	var req UpdateStudentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	patch, err := user.NormalizePatch(identity.Role, req.patch())
	if err != nil {
		respondStoreError(ctx, err, "profile.update.validate", "", "Error updating profile")
		return
	}

	updated, err := h.store.UpdateFields(ctx.Request.Context(), identity.ID, "", patch)
	if err != nil {
		respondStoreError(ctx, err, "profile.update", "User not found", "Error updating profile")
		return
	}

	ctx.JSON(http.StatusOK, updated.Identity())
}
