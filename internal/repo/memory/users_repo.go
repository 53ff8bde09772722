package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users in process. Email uniqueness is enforced under the
// write lock.
type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.User // id -> user
	byEmail map[string]string    // email -> id
	now     func() time.Time
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *UsersRepo) FindByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.items[id], nil
}

func (r *UsersRepo) FindByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	now := r.now().UTC()
	u.ID = uuid.NewString()
	u.Email = user.NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	r.items[u.ID] = u
	r.byEmail[u.Email] = u.ID

	return u, nil
}

func (r *UsersRepo) UpdateFields(_ context.Context, id string, role user.Role, patch user.Patch) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok || (role != "" && u.Role != role) {
		return user.User{}, user.ErrNotFound
	}

	if patch.Email != nil && *patch.Email != u.Email {
		if _, taken := r.byEmail[*patch.Email]; taken {
			return user.User{}, user.ErrEmailTaken
		}
	}

	oldEmail := u.Email
	u = patch.Apply(u)
	u.UpdatedAt = r.now().UTC()

	if u.Email != oldEmail {
		delete(r.byEmail, oldEmail)
		r.byEmail[u.Email] = u.ID
	}
	r.items[id] = u

	return u, nil
}

func (r *UsersRepo) Delete(_ context.Context, id string, role user.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok || (role != "" && u.Role != role) {
		return user.ErrNotFound
	}

	delete(r.items, id)
	delete(r.byEmail, u.Email)
	return nil
}

func (r *UsersRepo) ListByRole(_ context.Context, role user.Role) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		if u.Role == role {
			out = append(out, u)
		}
	}
	r.mu.RUnlock()

	// oldest first, the order the document stores return
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (r *UsersRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *UsersRepo) Ping(context.Context) error { return nil }
