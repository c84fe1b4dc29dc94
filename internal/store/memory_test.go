package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exemplo/exemplo-api/internal/models"
)

func TestMemoryStore(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.SaveUser(ctx, newUser("F", "L", fmt.Sprintf("u%d@x.com", i))))
		}(i)
	}
	wg.Wait()

	users, err := s.FindAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 50)
	for i, u := range users {
		assert.Equal(t, int64(i+1), u.ID)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	role := &models.Role{Name: "Admin", Usuarios: []models.User{{ID: 7}}}
	require.NoError(t, s.SaveRole(ctx, role))

	got, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Usuarios)

	got.Name = "changed"
	again, err := s.FindRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", again.Name)
}
