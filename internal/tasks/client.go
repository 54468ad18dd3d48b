package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog/log"
)

// Client is a backlite queue backed by its own SQLite file.
type Client struct {
	queue   *backlite.Client
	db      *sql.DB
	workers int
	running atomic.Bool
}

// TasksDBPath places the queue next to mainDBPath: "data/devapi.db" becomes
// "data/devapi-tasks.db".
func TasksDBPath(mainDBPath string) string {
	ext := filepath.Ext(mainDBPath)
	return strings.TrimSuffix(mainDBPath, ext) + "-tasks" + ext
}

func openQueueDB(path string, workers int) (*sql.DB, error) {
	// WAL so request handlers can enqueue while workers hold a transaction
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}
	db.SetMaxOpenConns(workers + 4)
	db.SetMaxIdleConns(workers + 1)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// NewClient opens the queue database beside mainDBPath and installs the
// backlite schema. Queues are registered with Register before Start.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	db, err := openQueueDB(TasksDBPath(mainDBPath), cfg.Workers)
	if err != nil {
		return nil, err
	}

	queue, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          queueLogger{},
	})
	if err == nil {
		err = queue.Install()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up task queue: %w", err)
	}

	return &Client{queue: queue, db: db, workers: cfg.Workers}, nil
}

func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.queue.Register(q)
	}
}

// Start runs the workers until ctx is cancelled or Stop is called. Calls
// after the first are no-ops.
func (c *Client) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	log.Info().Int("workers", c.workers).Msg("Mail outbox started")
	c.queue.Start(ctx)
}

// Stop waits for running tasks until ctx is done. It reports whether every
// worker finished in time; a queue that never started counts as finished.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.running.Load() {
		return true
	}
	if !c.queue.Stop(ctx) {
		log.Warn().Msg("Mail outbox stopped before all tasks finished")
		return false
	}
	log.Info().Msg("Mail outbox stopped")
	return true
}

// Ping checks that the queue database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the queue database. Call it after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Add begins enqueueing tasks; call Save on the result.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.queue.Add(tasks...)
}

// queueLogger sends backlite's logs to zerolog.
type queueLogger struct{}

func (queueLogger) Info(message string, params ...any) {
	log.Debug().Fields(params).Msg(message)
}

func (queueLogger) Error(message string, params ...any) {
	log.Error().Fields(params).Msg(message)
}
