// Command s3bd mounts a virtual block device backed by a pluggable object
// store, caching extents in a local scratch file and flushing dirty data
// back to the store in the background.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/jamesmcclain/s3bd-go/internal/config"
	"github.com/jamesmcclain/s3bd-go/internal/credentials"
	"github.com/jamesmcclain/s3bd-go/internal/engine"
	"github.com/jamesmcclain/s3bd-go/internal/maintenance"
	"github.com/jamesmcclain/s3bd-go/internal/mount"
	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

func main() {
	var (
		mountpoint = flag.String("mountpoint", "", "Mount point directory")
		backend    = flag.String("backend", "s3", "Backend type: s3, local, memory, postgres, mongo")
		configPath = flag.String("config", "", "Path to an optional YAML config file")

		bucket   = flag.String("bucket", "", "S3 bucket name (s3 backend)")
		region   = flag.String("region", "us-east-1", "AWS region (s3 backend)")
		endpoint = flag.String("endpoint", "", "S3 endpoint URL, for LocalStack or other S3-compatible services (s3 backend)")

		passwdFile = flag.String("passwd_file", "", "Path to passwd file (s3 backend)")

		localDir = flag.String("local_dir", "", "Directory to store extent objects in (local backend)")

		postgresConnStr = flag.String("postgres_conn", "", "Postgres connection string (postgres backend)")
		postgresTable   = flag.String("postgres_table", "", "Postgres table name (postgres backend)")

		mongoURI        = flag.String("mongo_uri", "", "MongoDB connection URI (mongo backend)")
		mongoDatabase   = flag.String("mongo_database", "", "MongoDB database name (mongo backend)")
		mongoCollection = flag.String("mongo_collection", "", "MongoDB collection name (mongo backend)")

		cacheMegabytes     = flag.Int("cache_megabytes", 0, "LRU cache capacity in megabytes (0 uses config/default)")
		scratchDir         = flag.String("scratch_dir", "", "Directory for the scratch file (empty uses config/default)")
		scratchDescriptors = flag.Int("scratch_descriptors", 0, "Scratch descriptor pool size (0 uses the package default)")
		keepScratchFile    = flag.Bool("keep_scratch_file", false, "Keep the scratch file on disk instead of unlinking it")

		maintenanceSchedule = flag.String("maintenance_schedule", "*/5 * * * *", "Cron schedule for the maintenance reporting job")
		debug               = flag.Bool("debug", false, "Panic on invariant violations instead of returning an error")
		readOnly            = flag.Bool("read-only", false, "Mount read-only: device mode 0400 instead of 0600, writes rejected")
	)
	flag.Parse()

	if *mountpoint == "" {
		log.Fatal("mountpoint is required")
	}

	sessionID := uuid.NewString()
	log.SetPrefix(fmt.Sprintf("[%s] ", sessionID))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *cacheMegabytes > 0 {
		cfg.CacheMegabytes = *cacheMegabytes
	}
	if *scratchDir != "" {
		cfg.ScratchDir = *scratchDir
	}
	if *keepScratchFile {
		cfg.KeepScratchFile = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendFS, err := buildBackend(ctx, *backend, backendFlags{
		bucket:     *bucket,
		region:     *region,
		endpoint:   *endpoint,
		passwdFile: *passwdFile,

		localDir: *localDir,

		postgresConnStr: *postgresConnStr,
		postgresTable:   *postgresTable,

		mongoURI:        *mongoURI,
		mongoDatabase:   *mongoDatabase,
		mongoCollection: *mongoCollection,
	})
	if err != nil {
		log.Fatalf("Failed to build backend: %v", err)
	}

	engineCfg := cfg.EngineConfig()
	engineCfg.Backend = backendFS
	engineCfg.ScratchDescriptors = *scratchDescriptors
	engineCfg.Debug = *debug

	eng, err := engine.New(engineCfg)
	if err != nil {
		log.Fatalf("Failed to construct engine: %v", err)
	}
	defer eng.Close()

	job, err := maintenance.New(eng, *maintenanceSchedule)
	if err != nil {
		log.Fatalf("Failed to schedule maintenance job: %v", err)
	}
	job.Start()
	defer job.Stop()

	errc := make(chan error, 1)
	go func() { errc <- eng.Run(ctx) }()

	fmt.Printf("Mounting device at %s (backend=%s, read-only=%v)\n", *mountpoint, *backend, *readOnly)
	if err := mount.Mount(ctx, *mountpoint, eng, *readOnly); err != nil {
		log.Fatalf("Failed to mount filesystem: %v", err)
	}

	if err := <-errc; err != nil {
		log.Fatalf("Engine stopped with error: %v", err)
	}
}

type backendFlags struct {
	bucket     string
	region     string
	endpoint   string
	passwdFile string

	localDir string

	postgresConnStr string
	postgresTable   string

	mongoURI        string
	mongoDatabase   string
	mongoCollection string
}

func buildBackend(ctx context.Context, kind string, f backendFlags) (vfs.FS, error) {
	switch vfs.BackendType(kind) {
	case vfs.BackendTypeS3:
		creds := credentials.NewCredentials()
		var err error
		if f.passwdFile != "" {
			err = creds.LoadFromPasswdFile(f.passwdFile)
		} else {
			err = creds.LoadFromEnvironment()
		}
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		if f.bucket == "" {
			return nil, fmt.Errorf("s3 backend requires -bucket")
		}
		return vfs.New(ctx, vfs.Config{
			Type:       vfs.BackendTypeS3,
			S3Bucket:   f.bucket,
			S3Region:   f.region,
			S3Endpoint: f.endpoint,
			S3Creds:    creds,
		})

	case vfs.BackendTypeLocal:
		return vfs.New(ctx, vfs.Config{Type: vfs.BackendTypeLocal, LocalDir: f.localDir})

	case vfs.BackendTypeMemory:
		return vfs.New(ctx, vfs.Config{Type: vfs.BackendTypeMemory})

	case vfs.BackendTypePostgres:
		return vfs.New(ctx, vfs.Config{
			Type:            vfs.BackendTypePostgres,
			PostgresConnStr: f.postgresConnStr,
			PostgresTable:   f.postgresTable,
		})

	case vfs.BackendTypeMongo:
		return vfs.New(ctx, vfs.Config{
			Type:            vfs.BackendTypeMongo,
			MongoURI:        f.mongoURI,
			MongoDatabase:   f.mongoDatabase,
			MongoCollection: f.mongoCollection,
		})

	default:
		return nil, fmt.Errorf("unknown backend type %q", kind)
	}
}
