package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panchalshubham0608/securekey/internal/crypto"
)

type MongoConfig struct {
	URI                string
	Database           string
	MetadataCollection string
	ItemsCollection    string
	LegacyCollection   string
}

func (c *MongoConfig) setDefaults() {
	if c.Database == "" {
		c.Database = "securekey"
	}
	if c.MetadataCollection == "" {
		c.MetadataCollection = "crypto_meta"
	}
	if c.ItemsCollection == "" {
		c.ItemsCollection = "vault_items"
	}
	if c.LegacyCollection == "" {
		c.LegacyCollection = "keys"
	}
}

type MongoStore struct {
	client *mongo.Client
	meta   *mongo.Collection
	items  *mongo.Collection
	legacy *mongo.Collection
}

// Connect dials MongoDB and verifies the connection with a short ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	cli, err := Connect(ctx, cfg.URI)
	if err != nil {
		return nil, err
	}
	s, err := NewMongoStoreWithClient(ctx, cli, cfg)
	if err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func NewMongoStoreWithClient(ctx context.Context, cli *mongo.Client, cfg MongoConfig) (*MongoStore, error) {
	cfg.setDefaults()
	db := cli.Database(cfg.Database)
	s := &MongoStore{
		client: cli,
		meta:   db.Collection(cfg.MetadataCollection),
		items:  db.Collection(cfg.ItemsCollection),
		legacy: db.Collection(cfg.LegacyCollection),
	}

	// (owner, account, username) is unique per vault.
	if _, err := s.items.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "account", Value: 1}, {Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	_, _ = s.legacy.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "migrated", Value: 1}},
	})
	return s, nil
}

func (s *MongoStore) GetMetadata(ctx context.Context, uid string) (CryptoMetadata, error) {
	var md CryptoMetadata
	err := s.meta.FindOne(ctx, bson.M{"_id": uid}).Decode(&md)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return CryptoMetadata{}, ErrNotFound
	}
	return md, err
}

func (s *MongoStore) CreateMetadata(ctx context.Context, md CryptoMetadata) error {
	if md.UID == "" {
		return errors.New("empty uid")
	}
	_, err := s.meta.InsertOne(ctx, md)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MongoStore) FindItems(ctx context.Context, f ItemFilter) ([]VaultItem, error) {
	filter := bson.M{"owner": f.Owner}
	if f.Account != "" {
		filter["account"] = f.Account
	}
	if f.Username != "" {
		filter["username"] = f.Username
	}
	cur, err := s.items.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []VaultItem
	for cur.Next(ctx) {
		var it VaultItem
		if err := cur.Decode(&it); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, cur.Err()
}

func (s *MongoStore) GetItem(ctx context.Context, owner, id string) (VaultItem, error) {
	var it VaultItem
	err := s.items.FindOne(ctx, bson.M{"_id": id, "owner": owner}).Decode(&it)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return VaultItem{}, ErrNotFound
	}
	return it, err
}

func (s *MongoStore) AddItem(ctx context.Context, it VaultItem) (string, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.History == nil {
		it.History = []HistoryEntry{}
	}
	_, err := s.items.InsertOne(ctx, it)
	if mongo.IsDuplicateKeyError(err) {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", err
	}
	return it.ID, nil
}

func (s *MongoStore) UpdatePassword(ctx context.Context, owner, id string, pw crypto.Envelope, prev HistoryEntry, at time.Time) error {
	res, err := s.items.UpdateOne(
		ctx,
		bson.M{"_id": id, "owner": owner},
		bson.M{
			"$set": bson.M{
				"encryptedPassword": pw,
				"updatedAt":         at,
			},
			"$push": bson.M{"history": prev},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteItem(ctx context.Context, owner, id string) error {
	res, err := s.items.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) FindLegacy(ctx context.Context, owner string, pendingOnly bool) ([]LegacyItem, error) {
	filter := bson.M{"owner": owner}
	if pendingOnly {
		filter["migrated"] = bson.M{"$ne": true}
	}
	cur, err := s.legacy.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []LegacyItem
	for cur.Next(ctx) {
		var it LegacyItem
		if err := cur.Decode(&it); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, cur.Err()
}

func (s *MongoStore) AddLegacy(ctx context.Context, it LegacyItem) (string, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	_, err := s.legacy.InsertOne(ctx, it)
	if mongo.IsDuplicateKeyError(err) {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", err
	}
	return it.ID, nil
}

func (s *MongoStore) MarkMigrated(ctx context.Context, id string, at time.Time) error {
	res, err := s.legacy.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"migrated": true, "migratedAt": at},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
