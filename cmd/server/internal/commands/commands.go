package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/account"
	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/logqueue"
	"github.com/askanna-io/askanna-core/internal/notify"
	"github.com/askanna-io/askanna-core/internal/packages"
	"github.com/askanna-io/askanna-core/internal/run"
	"github.com/askanna-io/askanna-core/internal/settings"
	"github.com/askanna-io/askanna-core/internal/storage"
	"github.com/askanna-io/askanna-core/internal/store"
	memorystore "github.com/askanna-io/askanna-core/internal/store/memory"
	postgresstore "github.com/askanna-io/askanna-core/internal/store/postgres"
	"github.com/askanna-io/askanna-core/internal/tracking"
)

type Globals struct {
	Debug   bool
	Version string
}

// invitationTTL is how long a signed invitation token stays acceptable.
const invitationTTL = 7 * 24 * time.Hour

// StoreFlags selects the persistence and blob backends. The memory store is
// for development only; runs and files do not survive a restart.
type StoreFlags struct {
	StoreType   string `help:"store type (memory or postgres)" default:"postgres" env:"ASKANNA_STORE_TYPE" enum:"memory,postgres"`
	AutoMigrate bool   `help:"apply pending schema migrations on startup" default:"true" env:"ASKANNA_AUTO_MIGRATE" negatable:""`
	StorageType string `help:"blob storage backend (filesystem or s3)" default:"filesystem" env:"ASKANNA_STORAGE_TYPE" enum:"filesystem,s3"`
}

// core is the wired service graph shared by every command.
type core struct {
	cfg      settings.Settings
	store    store.Store
	rdb      *redis.Client
	locks    lock.Locker
	files    *filestore.Service
	logs     *logqueue.Queue
	tracking *tracking.Service
	notify   *notify.Dispatcher
	runs     *run.Service
	packages *packages.Service
	accounts *account.Service
}

// buildCore wires the full service graph from flags and environment
// settings. The caller must invoke close when done.
func buildCore(ctx context.Context, flags StoreFlags) (*core, error) {
	cfg := settings.Load()

	var st store.Store
	switch flags.StoreType {
	case "memory":
		log.Warn().Msg("Using in-memory store, data will not survive a restart")
		st = memorystore.NewStore()
	case "postgres":
		pg, err := postgresstore.New(ctx, &postgresstore.PoolConfig{
			ConnString:  cfg.DatabaseURL,
			AutoMigrate: flags.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		st = pg
	default:
		return nil, fmt.Errorf("unknown store type %q", flags.StoreType)
	}
	if err := st.Start(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	locks := lock.NewRedsync(rdb)

	var backend storage.Backend
	switch flags.StorageType {
	case "filesystem":
		fs, err := storage.NewFileSystem(cfg.StorageRoot)
		if err != nil {
			return nil, err
		}
		backend = fs
	case "s3":
		s3b, err := storage.NewS3(ctx, storage.S3Options{
			Endpoint:  cfg.ObjectStoreEndpoint,
			Region:    cfg.ObjectStoreRegion,
			Bucket:    cfg.ObjectStoreBucket,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
		})
		if err != nil {
			return nil, err
		}
		backend = s3b
	default:
		return nil, fmt.Errorf("unknown storage type %q", flags.StorageType)
	}

	files := filestore.NewService(st, backend, locks)
	logs := logqueue.New(rdb, files, st, locks, cfg.LogFlushLockTTL)
	tr := tracking.NewService(st, locks)

	mailer := notify.NewSMTPMailer(cfg.SMTPServer, cfg.SMTPFrom, cfg.SMTPPass, cfg.SMTPFrom)
	dispatcher := notify.NewDispatcher(st, files, logs, mailer)

	runs := run.NewService(st, files, logs, tr, dispatcher, run.NewRedisDispatcher(rdb), locks)
	pkgs := packages.NewService(st, files, cfg.DefaultTimezone)

	if cfg.TokenSigningSecret == "" {
		log.Warn().Msg("ASKANNA_TOKEN_SIGNING_SECRET is empty, invitation tokens are forgeable")
	}
	signer := account.NewInvitationSigner([]byte(cfg.TokenSigningSecret), invitationTTL)
	accounts := account.NewService(st, signer, cfg.MaxInvitationResend)

	return &core{
		cfg:      cfg,
		store:    st,
		rdb:      rdb,
		locks:    locks,
		files:    files,
		logs:     logs,
		tracking: tr,
		notify:   dispatcher,
		runs:     runs,
		packages: pkgs,
		accounts: accounts,
	}, nil
}

// close releases the store pool and the redis connection.
func (c *core) close() {
	if err := c.store.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop store")
	}
	if err := c.rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close redis client")
	}
}
