package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUserStore struct {
	coll *mongo.Collection
}

type userDoc struct {
	UID       string    `bson:"_id"`
	Email     string    `bson:"email"`
	PassHash  string    `bson:"pass_hash"`
	CreatedAt time.Time `bson:"created_at"`
}

// NewMongoUserStore uses coll in db on an already connected client. The
// client is owned by the caller.
func NewMongoUserStore(ctx context.Context, cli *mongo.Client, db, coll string) (*MongoUserStore, error) {
	c := cli.Database(db).Collection(coll)
	_, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoUserStore{coll: c}, nil
}

// Add inserts a new user. Returns ErrUserExists if the uid or email is taken.
func (s *MongoUserStore) Add(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	_, err := s.coll.InsertOne(ctx, userDoc{UID: u.UID, Email: u.Email, PassHash: u.PassHash, CreatedAt: u.CreatedAt})
	if mongo.IsDuplicateKeyError(err) {
		return ErrUserExists
	}
	return err
}

func (s *MongoUserStore) FindByUID(ctx context.Context, uid string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": uid})
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter any) (*User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &User{UID: doc.UID, Email: doc.Email, PassHash: doc.PassHash, CreatedAt: doc.CreatedAt}, nil
}
