package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/exemplo/exemplo-api/internal/models"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// maxWatchAttempts bounds the optimistic-lock loop of a single save.
const maxWatchAttempts = 3

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// redisTable lays one entity type out as
//
//	<name>:seq         id sequence
//	<name>:<id>        BSON encoded row
//	<name>:ids         sorted set of ids
//	<name>:by_<field>  natural key -> id
type redisTable[T any] struct {
	tbl table[T]
	rdb *redis.Client
}

func (r *redisTable[T]) seqKey() string   { return r.tbl.name + ":seq" }
func (r *redisTable[T]) idsKey() string   { return r.tbl.name + ":ids" }
func (r *redisTable[T]) indexKey() string { return r.tbl.name + ":by_" + r.tbl.keyField }

func (r *redisTable[T]) rowKey(id int64) string {
	return r.tbl.name + ":" + strconv.FormatInt(id, 10)
}

func (r *redisTable[T]) get(ctx context.Context, c getter, id int64) (*T, error) {
	data, err := c.Get(ctx, r.rowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.rowKey(id), err)
	}
	var v T
	if err := bson.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", r.rowKey(id), err)
	}
	return &v, nil
}

func (r *redisTable[T]) all(ctx context.Context) ([]T, error) {
	ids, err := r.rdb.ZRange(ctx, r.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", r.tbl.name, err)
	}
	out := make([]T, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.tbl.name + ":" + id
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", r.tbl.name, err)
	}
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			continue
		}
		var v T
		if err := bson.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("redis decode %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *redisTable[T]) byID(ctx context.Context, id int64) (*T, error) {
	return r.get(ctx, r.rdb, id)
}

func (r *redisTable[T]) byKey(ctx context.Context, key string) (*T, error) {
	id, err := r.rdb.HGet(ctx, r.indexKey(), key).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis lookup %s: %w", r.indexKey(), err)
	}
	return r.get(ctx, r.rdb, id)
}

func (r *redisTable[T]) save(ctx context.Context, v *T) error {
	if err := r.tbl.check(v); err != nil {
		return err
	}

	id := r.tbl.id(v)
	isNew := id == 0
	if isNew {
		next, err := r.rdb.Incr(ctx, r.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("redis next id %s: %w", r.tbl.name, err)
		}
		id = next
	}

	row := *v
	r.tbl.setID(&row, id)
	key := r.tbl.key(&row)

	txf := func(tx *redis.Tx) error {
		var oldKey string
		if !isNew {
			stored, err := r.get(ctx, tx, id)
			if err != nil {
				return err
			}
			if stored == nil {
				return fmt.Errorf("update %s %d: %w", r.tbl.name, id, ErrNotFound)
			}
			r.tbl.keep(stored, &row)
			oldKey = r.tbl.key(stored)
		}

		owner, err := tx.HGet(ctx, r.indexKey(), key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis lookup %s: %w", r.indexKey(), err)
		}
		if err == nil && owner != id {
			return fmt.Errorf("%w: %s.%s %q already exists", ErrConstraint, r.tbl.name, r.tbl.keyField, key)
		}

		data, err := bson.Marshal(&row)
		if err != nil {
			return fmt.Errorf("redis encode %s: %w", r.rowKey(id), err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.rowKey(id), data, 0)
			pipe.ZAdd(ctx, r.idsKey(), redis.Z{Score: float64(id), Member: id})
			if oldKey != "" && oldKey != key {
				pipe.HDel(ctx, r.indexKey(), oldKey)
			}
			pipe.HSet(ctx, r.indexKey(), key, id)
			return nil
		})
		return err
	}

	if err := r.watch(ctx, txf, id); err != nil {
		return err
	}
	*v = row
	return nil
}

// watch runs txf with the natural-key index and the row under WATCH,
// starting over when another client touches either before EXEC.
func (r *redisTable[T]) watch(ctx context.Context, txf func(*redis.Tx) error, id int64) error {
	for i := 0; i < maxWatchAttempts; i++ {
		err := r.rdb.Watch(ctx, txf, r.indexKey(), r.rowKey(id))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis %s: %w", r.rowKey(id), redis.TxFailedErr)
}

func (r *redisTable[T]) delete(ctx context.Context, id int64) error {
	txf := func(tx *redis.Tx) error {
		stored, err := r.get(ctx, tx, id)
		if err != nil || stored == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.rowKey(id))
			pipe.ZRem(ctx, r.idsKey(), id)
			pipe.HDel(ctx, r.indexKey(), r.tbl.key(stored))
			return nil
		})
		return err
	}
	if err := r.watch(ctx, txf, id); err != nil {
		return fmt.Errorf("redis delete %s: %w", r.rowKey(id), err)
	}
	return nil
}

// RedisStore handles users, posts and roles in Redis. Memberships are kept
// as a pair of sets, cargos:<id>:usuarios and usuarios:<id>:cargos.
type RedisStore struct {
	rdb   *redis.Client
	users *redisTable[models.User]
	posts *redisTable[models.Post]
	roles *redisTable[models.Role]
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:   rdb,
		users: &redisTable[models.User]{tbl: usersTable, rdb: rdb},
		posts: &redisTable[models.Post]{tbl: postsTable, rdb: rdb},
		roles: &redisTable[models.Role]{tbl: rolesTable, rdb: rdb},
	}
}

func membersKey(roleID int64) string { return fmt.Sprintf("cargos:%d:usuarios", roleID) }
func rolesOfKey(userID int64) string { return fmt.Sprintf("usuarios:%d:cargos", userID) }

func (s *RedisStore) FindAllUsers(ctx context.Context) ([]models.User, error) {
	return s.users.all(ctx)
}

func (s *RedisStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.users.byID(ctx, id)
}

func (s *RedisStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.byKey(ctx, email)
}

func (s *RedisStore) SaveUser(ctx context.Context, u *models.User) error {
	return s.users.save(ctx, u)
}

func (s *RedisStore) DeleteUser(ctx context.Context, id int64) error {
	if err := s.users.delete(ctx, id); err != nil {
		return err
	}
	return s.unlink(ctx, rolesOfKey(id), id, membersKey)
}

func (s *RedisStore) FindAllPosts(ctx context.Context) ([]models.Post, error) {
	return s.posts.all(ctx)
}

func (s *RedisStore) FindPostByID(ctx context.Context, id int64) (*models.Post, error) {
	return s.posts.byID(ctx, id)
}

func (s *RedisStore) FindPostByTitle(ctx context.Context, title string) (*models.Post, error) {
	return s.posts.byKey(ctx, title)
}

func (s *RedisStore) SavePost(ctx context.Context, p *models.Post) error {
	return s.posts.save(ctx, p)
}

func (s *RedisStore) DeletePost(ctx context.Context, id int64) error {
	return s.posts.delete(ctx, id)
}

func (s *RedisStore) FindAllRoles(ctx context.Context) ([]models.Role, error) {
	return s.roles.all(ctx)
}

func (s *RedisStore) FindRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	return s.roles.byID(ctx, id)
}

func (s *RedisStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.roles.byKey(ctx, name)
}

func (s *RedisStore) SaveRole(ctx context.Context, r *models.Role) error {
	return s.roles.save(ctx, r)
}

func (s *RedisStore) DeleteRole(ctx context.Context, id int64) error {
	if err := s.roles.delete(ctx, id); err != nil {
		return err
	}
	return s.unlink(ctx, membersKey(id), id, rolesOfKey)
}

// unlink drops the set at key and removes id from every reverse set it
// points at.
func (s *RedisStore) unlink(ctx context.Context, key string, id int64, reverse func(int64) string) error {
	others, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis unlink %s: %w", key, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, other := range others {
			otherID, err := strconv.ParseInt(other, 10, 64)
			if err != nil {
				return fmt.Errorf("redis unlink %s: %w", key, err)
			}
			pipe.SRem(ctx, reverse(otherID), id)
		}
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis unlink %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, membersKey(roleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis role members: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis role members: %w", err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *RedisStore) LinkUserRole(ctx context.Context, userID, roleID int64) error {
	user, err := s.users.byID(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.roles.byID(ctx, roleID)
	if err != nil {
		return err
	}
	if user == nil || role == nil {
		return fmt.Errorf("%w: %s references a missing row", ErrConstraint, membershipTable)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, membersKey(roleID), userID)
		pipe.SAdd(ctx, rolesOfKey(userID), roleID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis link user role: %w", err)
	}
	return nil
}
