package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type StudentStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	UpdateFields(ctx context.Context, id string, role user.Role, patch user.Patch) (user.User, error)
	Delete(ctx context.Context, id string, role user.Role) error
	ListByRole(ctx context.Context, role user.Role) ([]user.User, error)
}

type StudentsHandler struct {
	store     StudentStore
	hasher    PasswordHasher
	publisher WelcomePublisher
}

func NewStudentsHandler(store StudentStore, hasher PasswordHasher, publisher WelcomePublisher) *StudentsHandler {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &StudentsHandler{
		store:     store,
		hasher:    hasher,
		publisher: publisher,
	}
}

type AddStudentRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Course   string `json:"course" binding:"required"`
}

// UpdateStudentRequest is also the profile update body. Absent fields are
// left unchanged; id and role are not accepted.
type UpdateStudentRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email" binding:"omitempty,email"`
	Course *string `json:"course"`
}

func (r UpdateStudentRequest) patch() user.Patch {
	return user.Patch{Name: r.Name, Email: r.Email, Course: r.Course}
}

func (h *StudentsHandler) List(ctx *gin.Context) {
	students, err := h.store.ListByRole(ctx.Request.Context(), user.RoleStudent)
	if err != nil {
		respondStoreError(ctx, err, "students.list", "", "Error fetching students")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, user.Identities(students))
}

func (h *StudentsHandler) Create(ctx *gin.Context) {
	var req AddStudentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		respondHashError(ctx, err, "Error adding student")
		return
	}

	student, err := user.NewStudent(req.Email, req.Name, hash, req.Course)
	if err != nil {
		respondStoreError(ctx, err, "students.create.validate", "", "Error adding student")
		return
	}

	created, err := h.store.Create(ctx.Request.Context(), student)
	if err != nil {
		respondStoreError(ctx, err, "students.create", "", "Error adding student")
		return
	}

	if err := h.publisher.PublishWelcome(ctx.Request.Context(), created.Identity(), "admin"); err != nil {
		slog.WarnContext(ctx.Request.Context(), "welcome notification not queued",
			"user_id", created.ID,
			"err", err,
			"request_id", requestIDFrom(ctx),
		)
	}

	ctx.JSON(http.StatusCreated, created.Identity())
}

func (h *StudentsHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req UpdateStudentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	patch, err := user.NormalizePatch(user.RoleStudent, req.patch())
	if err != nil {
		respondStoreError(ctx, err, "students.update.validate", "", "Error updating student")
		return
	}

	updated, err := h.store.UpdateFields(ctx.Request.Context(), id, user.RoleStudent, patch)
	if err != nil {
		respondStoreError(ctx, err, "students.update", "Student not found", "Error updating student")
		return
	}

	ctx.JSON(http.StatusOK, updated.Identity())
}

func (h *StudentsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	err := h.store.Delete(ctx.Request.Context(), id, user.RoleStudent)
	if err != nil {
		respondStoreError(ctx, err, "students.delete", "Student not found", "Error deleting student")
		return
	}

	RespondMessage(ctx, http.StatusOK, "Student deleted successfully")
}
