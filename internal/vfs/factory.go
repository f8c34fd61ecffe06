package vfs

import (
	"context"
	"fmt"

	"github.com/jamesmcclain/s3bd-go/internal/credentials"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/local"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/memory"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/mongo"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/postgres"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/s3"
)

// BackendType names a concrete vfs.FS implementation.
type BackendType string

const (
	BackendTypeS3       BackendType = "s3"
	BackendTypeLocal    BackendType = "local"
	BackendTypeMemory   BackendType = "memory"
	BackendTypePostgres BackendType = "postgres"
	BackendTypeMongo    BackendType = "mongo"
)

// Config holds the union of connection parameters for every backend type.
// Only the fields relevant to Type need be set.
type Config struct {
	Type BackendType

	// S3
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Creds    *credentials.Credentials

	// Local
	LocalDir string

	// Postgres
	PostgresConnStr string
	PostgresTable   string

	// MongoDB
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// New builds the FS named by cfg.Type.
func New(ctx context.Context, cfg Config) (FS, error) {
	switch cfg.Type {
	case BackendTypeS3:
		return s3.New(ctx, s3.Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Creds:    cfg.S3Creds,
		})

	case BackendTypeLocal:
		dir := cfg.LocalDir
		if dir == "" {
			return nil, fmt.Errorf("vfs: local backend requires a directory")
		}
		return local.New(dir)

	case BackendTypeMemory:
		return memory.New(), nil

	case BackendTypePostgres:
		if cfg.PostgresConnStr == "" {
			return nil, fmt.Errorf("vfs: postgres backend requires a connection string")
		}
		table := cfg.PostgresTable
		if table == "" {
			table = "extents"
		}
		return postgres.New(cfg.PostgresConnStr, table)

	case BackendTypeMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("vfs: mongo backend requires a URI")
		}
		database := cfg.MongoDatabase
		if database == "" {
			database = "s3bd"
		}
		collection := cfg.MongoCollection
		if collection == "" {
			collection = "extents"
		}
		return mongo.New(ctx, cfg.MongoURI, database, collection)

	default:
		return nil, fmt.Errorf("vfs: unknown backend type %q", cfg.Type)
	}
}
