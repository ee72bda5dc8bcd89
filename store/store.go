// Package store adapts the durable relational store, the blob store and the
// row-change feed used by the chat and document clients.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nzlov/roomsync/chat"
	"github.com/nzlov/roomsync/docs"
)

var ErrNotFound = errors.New("not found")

var (
	_ chat.Store        = (*Messages)(nil)
	_ chat.PageSource   = (*Messages)(nil)
	_ chat.ReadStore    = (*Messages)(nil)
	_ chat.Directory    = (*Messages)(nil)
	_ chat.BlobStore    = (*Blobs)(nil)
	_ chat.ChangeSource = (*Feed)(nil)
	_ docs.Store        = (*Docs)(nil)
	_ docs.Blobs        = (*Blobs)(nil)
)

const (
	// UploadBucket is where chat attachments are stored.
	UploadBucket = "chat-uploads"
	CoverBucket  = "docs"
)

type Config struct {
	DB        string      `json:"db"`
	DBLog     bool        `json:"dblog"`
	PublicURL string      `json:"public_url" yaml:"public_url" mapstructure:"public_url"`
	Redis     RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

type RedisConfig struct {
	Enable  bool   `json:"enable" yaml:"enable" mapstructure:"enable"`
	Host    string `json:"host" yaml:"host" mapstructure:"host"`
	Channel string `json:"channel" yaml:"channel" mapstructure:"channel"`
}

// Store bundles the adapters over one database connection.
type Store struct {
	DB       *gorm.DB
	Messages *Messages
	Docs     *Docs
	Blobs    *Blobs
	Covers   *Blobs
	Feed     *Feed

	rdb *redis.Client
}

// Open connects to postgres (and redis when enabled) and migrates the schema.
func Open(cfg Config) (*Store, error) {
	loglevel := logger.Error
	if cfg.DBLog {
		loglevel = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DB), &gorm.Config{
		CreateBatchSize: 10,
		Logger: logger.New(zap.NewStdLog(zap.L()), logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      loglevel,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var rdb *redis.Client
	var feed *Feed
	if cfg.Redis.Enable {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Host,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			PoolSize:     10,
			PoolTimeout:  30 * time.Second,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		feed = NewFeed(rdb, cfg.Redis.Channel)
		zap.S().Info("store change feed on redis:", cfg.Redis.Host, feed.channel)
	}

	s, err := New(db, feed, cfg.PublicURL)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	s.rdb = rdb
	return s, nil
}

// New migrates db and builds the adapters. feed may be nil, in which case
// mutations are not announced.
func New(db *gorm.DB, feed *Feed, publicURL string) (*Store, error) {
	if err := db.AutoMigrate(new(Chat), new(ChatParticipant), new(Message), new(Doc), new(Blob)); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{
		DB:       db,
		Messages: NewMessages(db, feed),
		Docs:     &Docs{db: db},
		Blobs:    NewBlobs(db, UploadBucket, publicURL),
		Covers:   NewBlobs(db, CoverBucket, publicURL),
		Feed:     feed,
	}, nil
}

func (s *Store) Close() error {
	if s.rdb != nil {
		s.rdb.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func trimmed(s string) string { return strings.TrimSpace(s) }
