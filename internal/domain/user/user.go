package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStudent:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already in use")
	ErrCourseRequired = errors.New("course is required for students")
	ErrInvalidField   = errors.New("field must not be empty")
	ErrInvalidRole    = errors.New("invalid role")
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Course       string    `json:"course,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is the public-safe projection of a User. Handlers only ever
// serialize this type.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Course    *string   `json:"course"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) Identity() Identity {
	id := Identity{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}

	if u.Course != "" {
		course := u.Course
		id.Course = &course
	}

	return id
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func Identities(users []User) []Identity {
	out := make([]Identity, 0, len(users))

	for _, u := range users {
		out = append(out, u.Identity())
	}

	return out
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Name   *string
	Email  *string
	Course *string
}

func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Course == nil
}

// Store is the credential store contract shared by every backend.
// role == "" on UpdateFields and Delete means "any role".
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	UpdateFields(ctx context.Context, id string, role Role, patch Patch) (User, error)
	Delete(ctx context.Context, id string, role Role) error
	ListByRole(ctx context.Context, role Role) ([]User, error)
	Ping(ctx context.Context) error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewStudent(email, name, passwordHash, course string) (User, error) {
	u := User{
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         RoleStudent,
		Course:       strings.TrimSpace(course),
	}

	if err := u.Validate(); err != nil {
		return User{}, err
	}

	return u, nil
}

func NewAdmin(email, name, passwordHash string) (User, error) {
	u := User{
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         RoleAdmin,
	}

	if err := u.Validate(); err != nil {
		return User{}, err
	}

	return u, nil
}

func (u User) Validate() error {
	if !u.Role.IsValid() {
		return ErrInvalidRole
	}

	if u.Email == "" || u.Name == "" || u.PasswordHash == "" {
		return ErrInvalidField
	}

	if u.Role == RoleStudent && u.Course == "" {
		return ErrCourseRequired
	}

	return nil
}

// NormalizePatch trims every provided field and checks it against the rules
// for the record's role.
func NormalizePatch(role Role, p Patch) (Patch, error) {
	out := Patch{}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return Patch{}, ErrInvalidField
		}
		out.Name = &name
	}

	if p.Email != nil {
		email := NormalizeEmail(*p.Email)
		if email == "" {
			return Patch{}, ErrInvalidField
		}
		out.Email = &email
	}

	if p.Course != nil {
		course := strings.TrimSpace(*p.Course)
		if course == "" && role == RoleStudent {
			return Patch{}, ErrCourseRequired
		}
		out.Course = &course
	}

	return out, nil
}

// Apply returns a copy of u with the patch applied.
func (p Patch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Course != nil {
		u.Course = *p.Course
	}
	return u
}
