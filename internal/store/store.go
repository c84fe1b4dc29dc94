package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/exemplo/exemplo-api/internal/models"
)

var (
	// ErrConstraint is returned when a write is rejected by a store-level
	// constraint: a required column is empty, a natural key is taken or a
	// foreign key does not resolve.
	ErrConstraint = errors.New("constraint violation")
	// ErrNotFound is returned by Save when updating a row that is gone.
	ErrNotFound = errors.New("record not found")
)

// Repository is implemented by every backend. Lookups return nil, nil
// for a missing record; deletes of missing records succeed.
type Repository interface {
	FindAllUsers(ctx context.Context) ([]models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error

	FindAllPosts(ctx context.Context) ([]models.Post, error)
	FindPostByID(ctx context.Context, id int64) (*models.Post, error)
	FindPostByTitle(ctx context.Context, title string) (*models.Post, error)
	SavePost(ctx context.Context, p *models.Post) error
	DeletePost(ctx context.Context, id int64) error

	FindAllRoles(ctx context.Context) ([]models.Role, error)
	FindRoleByID(ctx context.Context, id int64) (*models.Role, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	SaveRole(ctx context.Context, r *models.Role) error
	DeleteRole(ctx context.Context, id int64) error
	RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error)
	LinkUserRole(ctx context.Context, userID, roleID int64) error
}

// table describes how a non-SQL backend lays out one entity type.
type table[T any] struct {
	name     string // collection name and key prefix
	keyField string // natural key field
	id       func(*T) int64
	setID    func(*T, int64)
	key      func(*T) string
	// check enforces the NOT NULL columns.
	check func(*T) error
	// keep copies columns that are never rewritten on update from the
	// stored row into the incoming one.
	keep func(stored, incoming *T)
}

func required(tbl, col, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s.%s is required", ErrConstraint, tbl, col)
	}
	return nil
}

var usersTable = table[models.User]{
	name:     "usuarios",
	keyField: "email",
	id:       func(u *models.User) int64 { return u.ID },
	setID:    func(u *models.User, id int64) { u.ID = id },
	key:      func(u *models.User) string { return u.Email },
	check: func(u *models.User) error {
		return errors.Join(
			required("usuarios", "firstname", u.Firstname),
			required("usuarios", "lastname", u.Lastname),
			required("usuarios", "email", u.Email),
		)
	},
	keep: func(stored, incoming *models.User) { incoming.CreatedAt = stored.CreatedAt },
}

var postsTable = table[models.Post]{
	name:     "posts",
	keyField: "title",
	id:       func(p *models.Post) int64 { return p.ID },
	setID:    func(p *models.Post, id int64) { p.ID = id },
	key:      func(p *models.Post) string { return p.Title },
	check:    func(p *models.Post) error { return required("posts", "title", p.Title) },
	keep:     func(_, _ *models.Post) {},
}

var rolesTable = table[models.Role]{
	name:     "cargos",
	keyField: "name",
	id:       func(r *models.Role) int64 { return r.ID },
	setID:    func(r *models.Role, id int64) { r.ID = id },
	key:      func(r *models.Role) string { return r.Name },
	check:    func(r *models.Role) error { return required("cargos", "name", r.Name) },
	keep:     func(_, _ *models.Role) {},
}

// membershipTable is the join relation between usuarios and cargos.
const membershipTable = "usuarios_cargos"
