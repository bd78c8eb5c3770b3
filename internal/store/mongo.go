package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo backs the store with an external document store. Like the memory
// backend it enforces expiry manually on read: a document whose expiresAt
// has passed is invisible even before any background cleanup removes it.
type Mongo struct {
	client *mongo.Client
	kv     *mongo.Collection
	lists  *mongo.Collection
	now    func() time.Time
}

type mongoKVDoc struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	ExpiresAt time.Time `bson:"expiresAt,omitempty"`
}

type mongoListDoc struct {
	Key       string    `bson:"key"`
	Value     []byte    `bson:"value"`
	Seq       int64     `bson:"seq"`
	ExpiresAt time.Time `bson:"expiresAt,omitempty"`
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}
	db := client.Database(database)
	return &Mongo{
		client: client,
		kv:     db.Collection("kv"),
		lists:  db.Collection("lists"),
		now:    time.Now,
	}, nil
}

func (m *Mongo) live(expiresAt time.Time) bool {
	return expiresAt.IsZero() || m.now().Before(expiresAt)
}

func (m *Mongo) Get(ctx context.Context, key string) ([]byte, error) {
	var doc mongoKVDoc
	err := m.kv.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !m.live(doc.ExpiresAt) {
		_, _ = m.kv.DeleteOne(ctx, bson.M{"_id": key})
		return nil, ErrNotFound
	}
	return doc.Value, nil
}

func (m *Mongo) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	doc := mongoKVDoc{Key: key, Value: value}
	if ttl > 0 {
		doc.ExpiresAt = m.now().Add(ttl)
	}
	_, err := m.kv.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) Delete(ctx context.Context, key string) error {
	if _, err := m.kv.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return err
	}
	_, err := m.lists.DeleteMany(ctx, bson.M{"key": key})
	return err
}

func (m *Mongo) ListAppend(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	doc := mongoListDoc{Key: key, Value: value, Seq: m.now().UnixNano()}
	if ttl > 0 {
		doc.ExpiresAt = m.now().Add(ttl)
	}
	_, err := m.lists.InsertOne(ctx, doc)
	return err
}

func (m *Mongo) ListRange(ctx context.Context, key string) ([][]byte, error) {
	filter := bson.M{
		"key": key,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$exists": false}},
			bson.M{"expiresAt": bson.M{"$gt": m.now()}},
		},
	}
	cur, err := m.lists.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out [][]byte
	for cur.Next(ctx) {
		var doc mongoListDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Value)
	}
	return out, cur.Err()
}

func (m *Mongo) ListTrim(ctx context.Context, key string, max int) error {
	// Count live docs and delete the oldest beyond max.
	items, err := m.ListRange(ctx, key)
	if err != nil {
		return err
	}
	excess := len(items) - max
	if excess <= 0 {
		return nil
	}
	cur, err := m.lists.Find(ctx, bson.M{"key": key},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}).SetLimit(int64(excess)))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	var ids bson.A
	for cur.Next(ctx) {
		var doc struct {
			ID any `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = m.lists.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
