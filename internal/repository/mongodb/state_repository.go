package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const stateCollection = "client_state"

type stateDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// StateRepository stores small key-value client state documents in MongoDB.
type StateRepository struct {
	client   *mongo.Client
	dbName   string
	collName string
}

// NewStateRepository connects to MongoDB and verifies the connection.
func NewStateRepository(ctx context.Context, uri string, dbName string) (*StateRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &StateRepository{
		client:   client,
		dbName:   dbName,
		collName: stateCollection,
	}, nil
}

// Read returns the stored value for key. The boolean is false when no
// document exists.
func (r *StateRepository) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var doc stateDocument
	err := r.collection().FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return []byte(doc.Value), true, nil
}

// Write upserts the value for key.
func (r *StateRepository) Write(ctx context.Context, key string, value []byte) error {
	doc := stateDocument{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	_, err := r.collection().ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *StateRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *StateRepository) collection() *mongo.Collection {
	return r.client.Database(r.dbName).Collection(r.collName)
}
