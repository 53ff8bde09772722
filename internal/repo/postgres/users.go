package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, name, role, course, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Role,
		&u.Course,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// mapErr translates driver errors into the user package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return user.ErrEmailTaken
		case "22P02": // malformed uuid
			return user.ErrNotFound
		}
	}
	return err
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.find_by_email", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			user.NormalizeEmail(email),
		))
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) FindByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}

	var u user.User

	err := r.observe("users.find_by_id", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		))
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.Email = user.NormalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now

	err := r.observe("users.insert", func() error {
		_, e := r.pool.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, name, role, course, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, u.ID, u.Email, u.PasswordHash, u.Name, string(u.Role), u.Course, u.CreatedAt, u.UpdatedAt)
		return e
	})
	if err != nil {
		return user.User{}, mapErr(err)
	}

	return u, nil
}

func (r *UsersRepo) UpdateFields(ctx context.Context, id string, role user.Role, patch user.Patch) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}

	var u user.User

	err := r.observe("users.update_fields", func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx, `
			UPDATE users
			SET name = COALESCE($3, name),
				email = COALESCE($4, email),
				course = COALESCE($5, course),
				updated_at = $6
			WHERE id = $1 AND ($2::text = '' OR role = $2::text)
			RETURNING `+userColumns,
			id, string(role), patch.Name, patch.Email, patch.Course, time.Now().UTC(),
		))
		return e
	})

	return u, mapErr(err)
}

func (r *UsersRepo) Delete(ctx context.Context, id string, role user.Role) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}

	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx,
			`DELETE FROM users WHERE id = $1 AND ($2::text = '' OR role = $2::text)`,
			id, string(role),
		)
		return e
	})
	if err != nil {
		return mapErr(err)
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.list_by_role", func() error {
		rows, e := r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY created_at, id`,
			string(role),
		)
		if e != nil {
			return e
		}
		defer rows.Close()

		out = make([]user.User, 0)
		for rows.Next() {
			u, e := scanUser(rows)
			if e != nil {
				return e
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
