package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// SQLite is a Backend over a SQLite database file, letting several
// processes on one host share a cache without a server.
type SQLite struct {
	db        *sql.DB
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Backend = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the cache database at dbPath.
// If dbPath is empty or ":memory:", a private in-memory database is used.
func NewSQLite(ctx context.Context, dbPath string, opts ...Option) (*SQLite, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite cache %s", dbPath)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "prepare sqlite cache %s", dbPath)
		}
	}

	childCtx, cancel := context.WithCancel(ctx)
	c := &SQLite{
		db:     db,
		ctx:    childCtx,
		cancel: cancel,
		cfg:    applyOptions(opts),
	}

	c.waitGroup.Add(1)
	go c.run()

	return c, nil
}

func (c *SQLite) Probe(ctx context.Context) error {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	if err := c.db.PingContext(qctx); err != nil {
		return errors.Mark(errors.Wrap(err, "sqlite ping"), ErrBackend)
	}
	return nil
}

func (c *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	var data []byte
	var expiresAt int64
	err := c.db.QueryRowContext(qctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, backendError(err, "sqlite get", key)
	}

	if expiresAt <= c.cfg.now().UnixNano() {
		// Lazily delete expired entry.
		_, _ = c.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ? AND expires_at = ?`, key, expiresAt)
		return nil, false, nil
	}
	return data, true, nil
}

func (c *SQLite) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.defaultExpires
	}
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	expiresAt := c.cfg.now().Add(ttl).UnixNano()
	_, err := c.db.ExecContext(qctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return backendError(err, "sqlite set", key)
	}
	return nil
}

func (c *SQLite) Delete(ctx context.Context, key string) error {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	if _, err := c.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return backendError(err, "sqlite del", key)
	}
	return nil
}

// Close stops the sweeper and closes the database.
func (c *SQLite) Close() error {
	var dbErr error
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
		dbErr = c.db.Close()
	})
	return dbErr
}

func (c *SQLite) sweep(ctx context.Context) {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	_, _ = c.db.ExecContext(qctx, `DELETE FROM cache WHERE expires_at <= ?`, c.cfg.now().UnixNano())
}

func (c *SQLite) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep(c.ctx)
		}
	}
}
