package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/exemplo/exemplo-api/internal/models"
)

// mongoTable stores one entity type as documents keyed by an int64 _id.
type mongoTable[T any] struct {
	tbl      table[T]
	col      *mongo.Collection
	counters *mongo.Collection
}

func (m *mongoTable[T]) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": m.tbl.name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo next id %s: %w", m.tbl.name, err)
	}
	return counter.Seq, nil
}

func (m *mongoTable[T]) all(ctx context.Context) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", m.tbl.name, err)
	}
	defer cur.Close(ctx)

	docs := []T{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", m.tbl.name, err)
	}
	return docs, nil
}

func (m *mongoTable[T]) findOne(ctx context.Context, filter bson.M) (*T, error) {
	var doc T
	err := m.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", m.tbl.name, err)
	}
	return &doc, nil
}

func (m *mongoTable[T]) byID(ctx context.Context, id int64) (*T, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoTable[T]) byKey(ctx context.Context, key string) (*T, error) {
	return m.findOne(ctx, bson.M{m.tbl.keyField: key})
}

func (m *mongoTable[T]) save(ctx context.Context, v *T) error {
	if err := m.tbl.check(v); err != nil {
		return err
	}

	id := m.tbl.id(v)
	if id == 0 {
		next, err := m.nextID(ctx)
		if err != nil {
			return err
		}
		m.tbl.setID(v, next)
		if _, err := m.col.InsertOne(ctx, v); err != nil {
			m.tbl.setID(v, 0)
			return mongoWrap("insert "+m.tbl.name, err)
		}
		return nil
	}

	stored, err := m.byID(ctx, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("update %s %d: %w", m.tbl.name, id, ErrNotFound)
	}
	m.tbl.keep(stored, v)
	if _, err := m.col.ReplaceOne(ctx, bson.M{"_id": id}, v); err != nil {
		return mongoWrap("update "+m.tbl.name, err)
	}
	return nil
}

func (m *mongoTable[T]) delete(ctx context.Context, id int64) error {
	if _, err := m.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo delete %s: %w", m.tbl.name, err)
	}
	return nil
}

func mongoWrap(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongo %s: %w: %v", op, ErrConstraint, err)
	}
	return fmt.Errorf("mongo %s: %w", op, err)
}

type membership struct {
	UsuarioID int64 `bson:"usuario_id"`
	CargoID   int64 `bson:"cargo_id"`
}

// MongoStore handles users, posts and roles in MongoDB. Integer ids come
// from a counters collection.
type MongoStore struct {
	users   *mongoTable[models.User]
	posts   *mongoTable[models.Post]
	roles   *mongoTable[models.Role]
	members *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	counters := db.Collection("counters")
	return &MongoStore{
		users:   &mongoTable[models.User]{tbl: usersTable, col: db.Collection(usersTable.name), counters: counters},
		posts:   &mongoTable[models.Post]{tbl: postsTable, col: db.Collection(postsTable.name), counters: counters},
		roles:   &mongoTable[models.Role]{tbl: rolesTable, col: db.Collection(rolesTable.name), counters: counters},
		members: db.Collection(membershipTable),
	}
}

// EnsureIndexes creates the unique indexes on the natural keys and on the
// membership pairs.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := []struct {
		col   *mongo.Collection
		model mongo.IndexModel
	}{
		{s.users.col, mongo.IndexModel{Keys: bson.D{{Key: usersTable.keyField, Value: 1}}, Options: unique}},
		{s.posts.col, mongo.IndexModel{Keys: bson.D{{Key: postsTable.keyField, Value: 1}}, Options: unique}},
		{s.roles.col, mongo.IndexModel{Keys: bson.D{{Key: rolesTable.keyField, Value: 1}}, Options: unique}},
		{s.members, mongo.IndexModel{Keys: bson.D{{Key: "cargo_id", Value: 1}, {Key: "usuario_id", Value: 1}}, Options: unique}},
	}
	for _, idx := range indexes {
		if _, err := idx.col.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("mongo create index on %s: %w", idx.col.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) FindAllUsers(ctx context.Context) ([]models.User, error) {
	return s.users.all(ctx)
}

func (s *MongoStore) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.users.byID(ctx, id)
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.byKey(ctx, email)
}

func (s *MongoStore) SaveUser(ctx context.Context, u *models.User) error {
	return s.users.save(ctx, u)
}

func (s *MongoStore) DeleteUser(ctx context.Context, id int64) error {
	if err := s.users.delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.members.DeleteMany(ctx, bson.M{"usuario_id": id}); err != nil {
		return fmt.Errorf("mongo delete memberships: %w", err)
	}
	return nil
}

func (s *MongoStore) FindAllPosts(ctx context.Context) ([]models.Post, error) {
	return s.posts.all(ctx)
}

func (s *MongoStore) FindPostByID(ctx context.Context, id int64) (*models.Post, error) {
	return s.posts.byID(ctx, id)
}

func (s *MongoStore) FindPostByTitle(ctx context.Context, title string) (*models.Post, error) {
	return s.posts.byKey(ctx, title)
}

func (s *MongoStore) SavePost(ctx context.Context, p *models.Post) error {
	return s.posts.save(ctx, p)
}

func (s *MongoStore) DeletePost(ctx context.Context, id int64) error {
	return s.posts.delete(ctx, id)
}

func (s *MongoStore) FindAllRoles(ctx context.Context) ([]models.Role, error) {
	return s.roles.all(ctx)
}

func (s *MongoStore) FindRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	return s.roles.byID(ctx, id)
}

func (s *MongoStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.roles.byKey(ctx, name)
}

func (s *MongoStore) SaveRole(ctx context.Context, r *models.Role) error {
	return s.roles.save(ctx, r)
}

func (s *MongoStore) DeleteRole(ctx context.Context, id int64) error {
	if err := s.roles.delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.members.DeleteMany(ctx, bson.M{"cargo_id": id}); err != nil {
		return fmt.Errorf("mongo delete memberships: %w", err)
	}
	return nil
}

func (s *MongoStore) RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	opts := options.Find().SetSort(bson.D{{Key: "usuario_id", Value: 1}})
	cur, err := s.members.Find(ctx, bson.M{"cargo_id": roleID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find memberships: %w", err)
	}
	defer cur.Close(ctx)

	var links []membership
	if err := cur.All(ctx, &links); err != nil {
		return nil, fmt.Errorf("mongo find memberships: %w", err)
	}
	ids := make([]int64, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.UsuarioID)
	}
	return ids, nil
}

func (s *MongoStore) LinkUserRole(ctx context.Context, userID, roleID int64) error {
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

	link := membership{UsuarioID: userID, CargoID: roleID}
	_, err = s.members.UpdateOne(ctx, link, bson.M{"$set": link}, options.Update().SetUpsert(true))
	if err != nil {
		return mongoWrap("link user role", err)
	}
	return nil
}
