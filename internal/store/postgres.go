package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exemplo/exemplo-api/internal/models"
)

// PostgresStore handles users, posts and roles against PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS usuarios (
		id         BIGSERIAL   PRIMARY KEY,
		firstname  TEXT        NOT NULL CHECK (firstname <> ''),
		lastname   TEXT        NOT NULL CHECK (lastname <> ''),
		email      TEXT        NOT NULL UNIQUE CHECK (email <> ''),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id        BIGSERIAL PRIMARY KEY,
		title     TEXT      NOT NULL UNIQUE CHECK (title <> ''),
		content   TEXT      NOT NULL DEFAULT '',
		author_id BIGINT    REFERENCES usuarios (id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cargos (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT      NOT NULL UNIQUE CHECK (name <> '')
	)`,
	`CREATE TABLE IF NOT EXISTS usuarios_cargos (
		usuario_id BIGINT NOT NULL REFERENCES usuarios (id) ON DELETE CASCADE,
		cargo_id   BIGINT NOT NULL REFERENCES cargos (id) ON DELETE CASCADE,
		PRIMARY KEY (usuario_id, cargo_id)
	)`,
}

// Migrate creates the tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// wrap maps integrity constraint violations (SQLSTATE class 23) to
// ErrConstraint.
func wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%s: %w: %s", op, ErrConstraint, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ── usuarios ────────────────────────────────────────────────

const userColumns = `id, firstname, lastname, email, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Firstname, &u.Lastname, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) FindAllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM usuarios ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM usuarios WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.findUser(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, `email = $1`, email)
}

func (s *PostgresStore) SaveUser(ctx context.Context, u *models.User) error {
	if u.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO usuarios (firstname, lastname, email, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			u.Firstname, u.Lastname, u.Email, u.CreatedAt, u.UpdatedAt,
		).Scan(&u.ID)
		if err != nil {
			return wrap("insert user", err)
		}
		return nil
	}

	// created_at is never rewritten.
	err := s.pool.QueryRow(ctx,
		`UPDATE usuarios SET firstname = $2, lastname = $3, email = $4, updated_at = $5
		 WHERE id = $1
		 RETURNING created_at`,
		u.ID, u.Firstname, u.Lastname, u.Email, u.UpdatedAt,
	).Scan(&u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update user %d: %w", u.ID, ErrNotFound)
	}
	if err != nil {
		return wrap("update user", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM usuarios WHERE id = $1`, id); err != nil {
		return wrap("delete user", err)
	}
	return nil
}

// ── posts ───────────────────────────────────────────────────

const postColumns = `id, title, content, author_id`

func scanPost(row pgx.Row) (models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID)
	return p, err
}

func (s *PostgresStore) FindAllPosts(ctx context.Context) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Post, error) {
		return scanPost(row)
	})
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	return posts, nil
}

func (s *PostgresStore) findPost(ctx context.Context, where string, arg any) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) FindPostByID(ctx context.Context, id int64) (*models.Post, error) {
	return s.findPost(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindPostByTitle(ctx context.Context, title string) (*models.Post, error) {
	return s.findPost(ctx, `title = $1`, title)
}

func (s *PostgresStore) SavePost(ctx context.Context, p *models.Post) error {
	if p.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO posts (title, content, author_id) VALUES ($1, $2, $3) RETURNING id`,
			p.Title, p.Content, p.AuthorID,
		).Scan(&p.ID)
		if err != nil {
			return wrap("insert post", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET title = $2, content = $3, author_id = $4 WHERE id = $1`,
		p.ID, p.Title, p.Content, p.AuthorID,
	)
	if err != nil {
		return wrap("update post", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update post %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return wrap("delete post", err)
	}
	return nil
}

// ── cargos ──────────────────────────────────────────────────

func (s *PostgresStore) FindAllRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM cargos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Role, error) {
		var r models.Role
		err := row.Scan(&r.ID, &r.Name)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	return roles, nil
}

func (s *PostgresStore) findRole(ctx context.Context, where string, arg any) (*models.Role, error) {
	var r models.Role
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM cargos WHERE `+where, arg).Scan(&r.ID, &r.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) FindRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	return s.findRole(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.findRole(ctx, `name = $1`, name)
}

func (s *PostgresStore) SaveRole(ctx context.Context, r *models.Role) error {
	if r.ID == 0 {
		err := s.pool.QueryRow(ctx, `INSERT INTO cargos (name) VALUES ($1) RETURNING id`, r.Name).Scan(&r.ID)
		if err != nil {
			return wrap("insert role", err)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `UPDATE cargos SET name = $2 WHERE id = $1`, r.ID, r.Name)
	if err != nil {
		return wrap("update role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update role %d: %w", r.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteRole(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cargos WHERE id = $1`, id); err != nil {
		return wrap("delete role", err)
	}
	return nil
}

func (s *PostgresStore) RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT usuario_id FROM usuarios_cargos WHERE cargo_id = $1 ORDER BY usuario_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("find role members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("find role members: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) LinkUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usuarios_cargos (usuario_id, cargo_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil {
		return wrap("link user role", err)
	}
	return nil
}
