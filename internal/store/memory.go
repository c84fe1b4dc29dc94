package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/exemplo/exemplo-api/internal/models"
)

// memTable holds the rows of one entity type. Callers hold MemoryStore.mu.
type memTable[T any] struct {
	tbl  table[T]
	seq  int64
	rows map[int64]T
}

func newMemTable[T any](tbl table[T]) *memTable[T] {
	return &memTable[T]{tbl: tbl, rows: make(map[int64]T)}
}

func (m *memTable[T]) all() []T {
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rows[id])
	}
	return out
}

func (m *memTable[T]) byID(id int64) *T {
	v, ok := m.rows[id]
	if !ok {
		return nil
	}
	return &v
}

func (m *memTable[T]) byKey(key string) *T {
	for _, v := range m.rows {
		if m.tbl.key(&v) == key {
			return &v
		}
	}
	return nil
}

func (m *memTable[T]) save(v *T) error {
	if err := m.tbl.check(v); err != nil {
		return err
	}
	id := m.tbl.id(v)
	if other := m.byKey(m.tbl.key(v)); other != nil && m.tbl.id(other) != id {
		return fmt.Errorf("%w: %s.%s %q already exists", ErrConstraint, m.tbl.name, m.tbl.keyField, m.tbl.key(v))
	}

	if id == 0 {
		m.seq++
		id = m.seq
		m.tbl.setID(v, id)
	} else {
		stored, ok := m.rows[id]
		if !ok {
			return fmt.Errorf("update %s %d: %w", m.tbl.name, id, ErrNotFound)
		}
		m.tbl.keep(&stored, v)
	}
	m.rows[id] = *v
	return nil
}

// MemoryStore keeps everything in process memory. It is meant for local
// runs and tests; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	users   *memTable[models.User]
	posts   *memTable[models.Post]
	roles   *memTable[models.Role]
	members map[int64]map[int64]struct{} // roleID -> userIDs
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   newMemTable(usersTable),
		posts:   newMemTable(postsTable),
		roles:   newMemTable(rolesTable),
		members: make(map[int64]map[int64]struct{}),
	}
}

func (s *MemoryStore) FindAllUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.all(), nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.byID(id), nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.byKey(email), nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.save(u)
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users.rows, id)
	for _, users := range s.members {
		delete(users, id)
	}
	return nil
}

func (s *MemoryStore) FindAllPosts(ctx context.Context) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts.all(), nil
}

func (s *MemoryStore) FindPostByID(ctx context.Context, id int64) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts.byID(id), nil
}

func (s *MemoryStore) FindPostByTitle(ctx context.Context, title string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts.byKey(title), nil
}

func (s *MemoryStore) SavePost(ctx context.Context, p *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *p
	stored.Author = nil
	if p.AuthorID != nil {
		authorID := *p.AuthorID
		stored.AuthorID = &authorID
	}
	if err := s.posts.save(&stored); err != nil {
		return err
	}
	p.ID = stored.ID
	return nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts.rows, id)
	return nil
}

func (s *MemoryStore) FindAllRoles(ctx context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles.all(), nil
}

func (s *MemoryStore) FindRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles.byID(id), nil
}

func (s *MemoryStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles.byKey(name), nil
}

func (s *MemoryStore) SaveRole(ctx context.Context, r *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := models.Role{ID: r.ID, Name: r.Name}
	if err := s.roles.save(&stored); err != nil {
		return err
	}
	r.ID = stored.ID
	return nil
}

func (s *MemoryStore) DeleteRole(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles.rows, id)
	delete(s.members, id)
	return nil
}

func (s *MemoryStore) RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.members[roleID]))
	for id := range s.members[roleID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) LinkUserRole(ctx context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users.byID(userID) == nil || s.roles.byID(roleID) == nil {
		return fmt.Errorf("%w: %s references a missing row", ErrConstraint, membershipTable)
	}
	if s.members[roleID] == nil {
		s.members[roleID] = make(map[int64]struct{})
	}
	s.members[roleID][userID] = struct{}{}
	return nil
}
