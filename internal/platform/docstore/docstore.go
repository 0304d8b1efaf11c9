// Package docstore provides MongoDB connection management for the document
// store backend.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DocStore wraps a MongoDB client and the database content lives in.
type DocStore struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// New connects to MongoDB and pings the primary.
func New(ctx context.Context, url, database string) (*DocStore, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is empty")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database name is empty")
	}

	opts := options.Client().
		ApplyURI(url).
		SetAppName("pai-content").
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &DocStore{Client: client, DB: client.Database(database)}, nil
}

// EnsureIndexes creates the given indexes on a collection. Existing indexes
// with the same definition are left alone.
func (d *DocStore) EnsureIndexes(ctx context.Context, collection string, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := d.DB.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating indexes on %s: %w", collection, err)
	}
	return nil
}

// Close disconnects the client.
func (d *DocStore) Close(ctx context.Context) error {
	return d.Client.Disconnect(ctx)
}

// HealthCheck verifies the connection is alive.
func (d *DocStore) HealthCheck(ctx context.Context) error {
	return d.Client.Ping(ctx, readpref.Primary())
}
