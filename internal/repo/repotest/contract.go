// Package repotest holds the behaviour every user.Store backend must share.
package repotest

import (
	"context"
	"sync"
	"testing"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory returns an empty store.
type StoreFactory func(t *testing.T) user.Store

func strPtr(s string) *string { return &s }

func mustStudent(t *testing.T, email, name, course string) user.User {
	t.Helper()
	u, err := user.NewStudent(email, name, "$2a$10$hash", course)
	require.NoError(t, err)
	return u
}

func RunStoreContract(t *testing.T, newStore StoreFactory) {
	t.Run("create and find", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, mustStudent(t, "alice@example.com", "Alice", "CS"))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		byEmail, err := s.FindByEmail(ctx, "ALICE@example.com ")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
		assert.Equal(t, "$2a$10$hash", byEmail.PasswordHash)

		byID, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", byID.Name)
		assert.Equal(t, user.RoleStudent, byID.Role)
		assert.Equal(t, "CS", byID.Course)
	})

	t.Run("missing and malformed ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, user.ErrNotFound)

		for _, id := range []string{"", "not-an-id", "00000000-0000-0000-0000-000000000000", "507f1f77bcf86cd799439011"} {
			_, err = s.FindByID(ctx, id)
			require.ErrorIs(t, err, user.ErrNotFound, "id %q", id)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, mustStudent(t, "dup@example.com", "A", "CS"))
		require.NoError(t, err)

		_, err = s.Create(ctx, mustStudent(t, "Dup@Example.com", "B", "Math"))
		require.ErrorIs(t, err, user.ErrEmailTaken)

		students, err := s.ListByRole(ctx, user.RoleStudent)
		require.NoError(t, err)
		assert.Len(t, students, 1)
	})

	t.Run("concurrent duplicate creates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 8
		u := mustStudent(t, "race@example.com", "R", "CS")

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Create(ctx, u)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			if err == nil {
				ok++
				continue
			}
			require.ErrorIs(t, err, user.ErrEmailTaken)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("update fields scoped by role", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		student, err := s.Create(ctx, mustStudent(t, "s@example.com", "S", "CS"))
		require.NoError(t, err)
		other, err := s.Create(ctx, mustStudent(t, "o@example.com", "O", "CS"))
		require.NoError(t, err)
		admin, err := user.NewAdmin("root@example.com", "Root", "$2a$10$hash")
		require.NoError(t, err)
		admin, err = s.Create(ctx, admin)
		require.NoError(t, err)

		updated, err := s.UpdateFields(ctx, student.ID, user.RoleStudent, user.Patch{Name: strPtr("Sam"), Course: strPtr("Math")})
		require.NoError(t, err)
		assert.Equal(t, "Sam", updated.Name)
		assert.Equal(t, "Math", updated.Course)
		assert.Equal(t, "s@example.com", updated.Email)
		assert.Equal(t, student.ID, updated.ID)

		_, err = s.UpdateFields(ctx, admin.ID, user.RoleStudent, user.Patch{Name: strPtr("x")})
		require.ErrorIs(t, err, user.ErrNotFound)

		_, err = s.UpdateFields(ctx, admin.ID, "", user.Patch{Name: strPtr("Boss")})
		require.NoError(t, err)

		_, err = s.UpdateFields(ctx, student.ID, user.RoleStudent, user.Patch{Email: strPtr("o@example.com")})
		require.ErrorIs(t, err, user.ErrEmailTaken)

		moved, err := s.UpdateFields(ctx, student.ID, "", user.Patch{Email: strPtr("new@example.com")})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", moved.Email)

		_, err = s.FindByEmail(ctx, "s@example.com")
		require.ErrorIs(t, err, user.ErrNotFound)

		again, err := s.FindByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "O", again.Name)

		_, err = s.UpdateFields(ctx, "missing", "", user.Patch{Name: strPtr("x")})
		require.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("delete scoped by role", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		student, err := s.Create(ctx, mustStudent(t, "d@example.com", "D", "CS"))
		require.NoError(t, err)
		admin, err := user.NewAdmin("root@example.com", "Root", "$2a$10$hash")
		require.NoError(t, err)
		admin, err = s.Create(ctx, admin)
		require.NoError(t, err)

		require.ErrorIs(t, s.Delete(ctx, admin.ID, user.RoleStudent), user.ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, "missing", user.RoleStudent), user.ErrNotFound)

		require.NoError(t, s.Delete(ctx, student.ID, user.RoleStudent))
		require.ErrorIs(t, s.Delete(ctx, student.ID, user.RoleStudent), user.ErrNotFound)

		_, err = s.FindByID(ctx, student.ID)
		require.ErrorIs(t, err, user.ErrNotFound)

		// the email is free again
		_, err = s.Create(ctx, mustStudent(t, "d@example.com", "D2", "CS"))
		require.NoError(t, err)

		_, err = s.FindByID(ctx, admin.ID)
		require.NoError(t, err)
	})

	t.Run("list by role", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, e := range []string{"a@example.com", "b@example.com"} {
			_, err := s.Create(ctx, mustStudent(t, e, "N", "CS"))
			require.NoError(t, err)
		}
		admin, err := user.NewAdmin("root@example.com", "Root", "$2a$10$hash")
		require.NoError(t, err)
		_, err = s.Create(ctx, admin)
		require.NoError(t, err)

		students, err := s.ListByRole(ctx, user.RoleStudent)
		require.NoError(t, err)
		assert.Len(t, students, 2)
		for _, u := range students {
			assert.Equal(t, user.RoleStudent, u.Role)
		}

		admins, err := s.ListByRole(ctx, user.RoleAdmin)
		require.NoError(t, err)
		assert.Len(t, admins, 1)

		require.NoError(t, s.Ping(ctx))
	})
}
