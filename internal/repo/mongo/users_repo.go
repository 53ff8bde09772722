package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const CollectionUsers = "users"

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password"`
	Name         string             `bson:"name"`
	Role         string             `bson:"role"`
	Course       string             `bson:"course,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d userDoc) toUser() user.User {
	return user.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Role:         user.Role(d.Role),
		Course:       d.Course,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type UsersRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewUsersRepo(database *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		coll: database.Collection(CollectionUsers),
		prom: prom,
	}
}

// EnsureIndexes creates the unique email index that backs ErrEmailTaken.
func (r *UsersRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("users_role_created"),
		},
	})
	return err
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return user.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return user.ErrEmailTaken
	default:
		return err
	}
}

// idFilter returns false for ids that cannot be an ObjectID; those can never
// match a record.
func idFilter(id string, role user.Role) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}

	filter := bson.M{"_id": oid}
	if role != "" {
		filter["role"] = string(role)
	}
	return filter, true
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var doc userDoc

	err := r.observe("users.find_by_email", func() error {
		return r.coll.FindOne(ctx, bson.M{"email": user.NormalizeEmail(email)}).Decode(&doc)
	})
	if err != nil {
		return user.User{}, mapErr(err)
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) FindByID(ctx context.Context, id string) (user.User, error) {
	filter, ok := idFilter(id, "")
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc

	err := r.observe("users.find_by_id", func() error {
		return r.coll.FindOne(ctx, filter).Decode(&doc)
	})
	if err != nil {
		return user.User{}, mapErr(err)
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	// Mongo stores milliseconds
	now := time.Now().UTC().Truncate(time.Millisecond)

	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Email:        user.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		Course:       u.Course,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.observe("users.insert", func() error {
		_, e := r.coll.InsertOne(ctx, doc)
		return e
	})
	if err != nil {
		return user.User{}, mapErr(err)
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) UpdateFields(ctx context.Context, id string, role user.Role, patch user.Patch) (user.User, error) {
	filter, ok := idFilter(id, role)
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Course != nil {
		set["course"] = *patch.Course
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc

	err := r.observe("users.update_fields", func() error {
		return r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	})
	if err != nil {
		return user.User{}, mapErr(err)
	}

	return doc.toUser(), nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string, role user.Role) error {
	filter, ok := idFilter(id, role)
	if !ok {
		return user.ErrNotFound
	}

	var res *mongo.DeleteResult

	err := r.observe("users.delete", func() error {
		var e error
		res, e = r.coll.DeleteOne(ctx, filter)
		return e
	})
	if err != nil {
		return mapErr(err)
	}

	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	var docs []userDoc

	err := r.observe("users.list_by_role", func() error {
		cur, e := r.coll.Find(ctx, bson.M{"role": string(role)}, opts)
		if e != nil {
			return e
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}

	out := make([]user.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toUser())
	}
	return out, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}
