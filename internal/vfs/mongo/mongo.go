// Package mongo implements vfs.FS against a MongoDB collection, one
// document per extent object, generalized from a whole-file document
// schema down to the engine's simpler name -> bytes object model.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

type extentDocument struct {
	Name string `bson:"_id"`
	Data []byte `bson:"data"`
}

// Backend is a vfs.FS backed by a MongoDB collection.
type Backend struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects to uri and opens database/collection for extent storage.
func New(ctx context.Context, uri, database, collection string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo backend: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo backend: ping: %w", err)
	}
	return &Backend{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Get implements vfs.FS.
func (b *Backend) Get(ctx context.Context, name string) ([]byte, error) {
	var doc extentDocument
	err := b.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrIO)
	}
	return doc.Data, nil
}

// Put implements vfs.FS.
func (b *Backend) Put(ctx context.Context, name string, data []byte) error {
	opts := options.Replace().SetUpsert(true)
	_, err := b.collection.ReplaceOne(ctx, bson.M{"_id": name}, extentDocument{Name: name, Data: data}, opts)
	if err != nil {
		return fmt.Errorf("put %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Delete implements vfs.FS.
func (b *Backend) Delete(ctx context.Context, name string) error {
	if _, err := b.collection.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("delete %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Exists implements vfs.FS.
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	count, err := b.collection.CountDocuments(ctx, bson.M{"_id": name})
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", name, vfs.ErrIO)
	}
	return count > 0, nil
}

// Close implements vfs.FS.
func (b *Backend) Close() error {
	return b.client.Disconnect(context.Background())
}
