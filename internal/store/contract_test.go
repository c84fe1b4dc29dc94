package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exemplo/exemplo-api/internal/models"
)

func newUser(first, last, email string) *models.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.User{Firstname: first, Lastname: last, Email: email, CreatedAt: now, UpdatedAt: now}
}

// runRepositoryContract exercises the behaviour every backend must share.
// fresh returns the backend with no rows and restarted id sequences.
func runRepositoryContract(t *testing.T, fresh func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("UserLifecycle", func(t *testing.T) {
		repo := fresh(t)

		ana := newUser("Ana", "Silva", "ana@x.com")
		require.NoError(t, repo.SaveUser(ctx, ana))
		assert.NotZero(t, ana.ID)

		got, err := repo.FindUserByID(ctx, ana.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Ana", got.Firstname)
		assert.Equal(t, "Silva", got.Lastname)
		assert.Equal(t, "ana@x.com", got.Email)
		assert.True(t, ana.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, ana.UpdatedAt.Equal(got.UpdatedAt))

		byEmail, err := repo.FindUserByEmail(ctx, "ana@x.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, ana.ID, byEmail.ID)

		require.NoError(t, repo.DeleteUser(ctx, ana.ID))
		got, err = repo.FindUserByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		byEmail, err = repo.FindUserByEmail(ctx, "ana@x.com")
		require.NoError(t, err)
		assert.Nil(t, byEmail)
	})

	t.Run("MissingLookupsReturnNil", func(t *testing.T) {
		repo := fresh(t)

		u, err := repo.FindUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, u)
		u, err = repo.FindUserByEmail(ctx, "nobody@x.com")
		require.NoError(t, err)
		assert.Nil(t, u)
		p, err := repo.FindPostByTitle(ctx, "nothing")
		require.NoError(t, err)
		assert.Nil(t, p)
		r, err := repo.FindRoleByName(ctx, "nothing")
		require.NoError(t, err)
		assert.Nil(t, r)

		assert.NoError(t, repo.DeleteUser(ctx, 42))
		assert.NoError(t, repo.DeletePost(ctx, 42))
		assert.NoError(t, repo.DeleteRole(ctx, 42))
	})

	t.Run("FindAllAscendingByID", func(t *testing.T) {
		repo := fresh(t)

		users, err := repo.FindAllUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
			require.NoError(t, repo.SaveUser(ctx, newUser("F", "L", email)))
		}
		users, err = repo.FindAllUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "a@x.com", users[0].Email)
		assert.Equal(t, "c@x.com", users[2].Email)
		assert.Less(t, users[0].ID, users[1].ID)
		assert.Less(t, users[1].ID, users[2].ID)
	})

	t.Run("UserUpdateKeepsCreatedAt", func(t *testing.T) {
		repo := fresh(t)

		u := newUser("Ana", "Silva", "ana@x.com")
		require.NoError(t, repo.SaveUser(ctx, u))
		created := u.CreatedAt

		changed := *u
		changed.CreatedAt = created.Add(-time.Hour)
		changed.UpdatedAt = created.Add(time.Minute)
		changed.Email = "ana.silva@x.com"
		require.NoError(t, repo.SaveUser(ctx, &changed))
		assert.True(t, created.Equal(changed.CreatedAt))

		got, err := repo.FindUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "ana.silva@x.com", got.Email)
		assert.True(t, created.Equal(got.CreatedAt))
		assert.True(t, changed.UpdatedAt.Equal(got.UpdatedAt))

		old, err := repo.FindUserByEmail(ctx, "ana@x.com")
		require.NoError(t, err)
		assert.Nil(t, old)
	})

	t.Run("UpdateOfMissingRow", func(t *testing.T) {
		repo := fresh(t)

		u := newUser("Ana", "Silva", "ana@x.com")
		u.ID = 99
		assert.ErrorIs(t, repo.SaveUser(ctx, u), ErrNotFound)
		assert.ErrorIs(t, repo.SavePost(ctx, &models.Post{ID: 99, Title: "t"}), ErrNotFound)
		assert.ErrorIs(t, repo.SaveRole(ctx, &models.Role{ID: 99, Name: "n"}), ErrNotFound)
	})

	t.Run("NaturalKeysAreUnique", func(t *testing.T) {
		repo := fresh(t)

		require.NoError(t, repo.SaveUser(ctx, newUser("Ana", "Silva", "ana@x.com")))
		assert.ErrorIs(t, repo.SaveUser(ctx, newUser("Other", "Person", "ana@x.com")), ErrConstraint)

		require.NoError(t, repo.SavePost(ctx, &models.Post{Title: "Hello"}))
		assert.ErrorIs(t, repo.SavePost(ctx, &models.Post{Title: "Hello"}), ErrConstraint)

		require.NoError(t, repo.SaveRole(ctx, &models.Role{Name: "Admin"}))
		assert.ErrorIs(t, repo.SaveRole(ctx, &models.Role{Name: "Admin"}), ErrConstraint)

		users, err := repo.FindAllUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("RequiredColumns", func(t *testing.T) {
		repo := fresh(t)

		assert.ErrorIs(t, repo.SaveUser(ctx, newUser("Ana", "Silva", "")), ErrConstraint)
		assert.ErrorIs(t, repo.SaveUser(ctx, newUser("", "Silva", "ana@x.com")), ErrConstraint)
		assert.ErrorIs(t, repo.SavePost(ctx, &models.Post{Content: "no title"}), ErrConstraint)
		assert.ErrorIs(t, repo.SaveRole(ctx, &models.Role{}), ErrConstraint)
	})

	t.Run("PostAuthorReference", func(t *testing.T) {
		repo := fresh(t)

		author := newUser("Ana", "Silva", "ana@x.com")
		require.NoError(t, repo.SaveUser(ctx, author))

		withAuthor := &models.Post{Title: "Hello", Content: "...", AuthorID: &author.ID}
		require.NoError(t, repo.SavePost(ctx, withAuthor))
		orphan := &models.Post{Title: "Alone"}
		require.NoError(t, repo.SavePost(ctx, orphan))

		got, err := repo.FindPostByID(ctx, withAuthor.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.AuthorID)
		assert.Equal(t, author.ID, *got.AuthorID)
		assert.Equal(t, "...", got.Content)
		assert.Nil(t, got.Author)

		got, err = repo.FindPostByTitle(ctx, "Alone")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.AuthorID)

		got.Title = "Alone again"
		got.Content = "edited"
		require.NoError(t, repo.SavePost(ctx, got))
		posts, err := repo.FindAllPosts(ctx)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "Alone again", posts[1].Title)
		assert.Equal(t, "edited", posts[1].Content)

		require.NoError(t, repo.DeletePost(ctx, withAuthor.ID))
		got, err = repo.FindPostByID(ctx, withAuthor.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RoleMembers", func(t *testing.T) {
		repo := fresh(t)

		admin := &models.Role{Name: "Admin"}
		require.NoError(t, repo.SaveRole(ctx, admin))
		ana := newUser("Ana", "Silva", "ana@x.com")
		bia := newUser("Bia", "Souza", "bia@x.com")
		require.NoError(t, repo.SaveUser(ctx, ana))
		require.NoError(t, repo.SaveUser(ctx, bia))

		ids, err := repo.RoleMemberIDs(ctx, admin.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, repo.LinkUserRole(ctx, ana.ID, admin.ID))
		require.NoError(t, repo.LinkUserRole(ctx, bia.ID, admin.ID))
		require.NoError(t, repo.LinkUserRole(ctx, bia.ID, admin.ID))
		assert.ErrorIs(t, repo.LinkUserRole(ctx, 999, admin.ID), ErrConstraint)

		ids, err = repo.RoleMemberIDs(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{ana.ID, bia.ID}, ids)

		require.NoError(t, repo.DeleteUser(ctx, ana.ID))
		ids, err = repo.RoleMemberIDs(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{bia.ID}, ids)

		admin.Name = "Administrador"
		require.NoError(t, repo.SaveRole(ctx, admin))
		renamed, err := repo.FindRoleByName(ctx, "Administrador")
		require.NoError(t, err)
		require.NotNil(t, renamed)
		assert.Equal(t, admin.ID, renamed.ID)

		require.NoError(t, repo.DeleteRole(ctx, admin.ID))
		ids, err = repo.RoleMemberIDs(ctx, admin.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
