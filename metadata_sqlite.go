package overlayfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteMarkerSchema = `
CREATE TABLE IF NOT EXISTS markers (
	path     TEXT PRIMARY KEY,
	contents TEXT NOT NULL DEFAULT ''
) WITHOUT ROWID;
`

// SQLiteConfig holds the parameters for opening a SQLite-backed metadata
// store. Path is required; all other fields have defaults.
type SQLiteConfig struct {
	// Path is the filesystem path to the database file, created if it
	// does not exist. Use "file:markers?mode=memory&cache=shared" with
	// PoolSize 1 for an in-memory store in tests.
	Path string

	// PoolSize is the number of connections in the pool. If zero or
	// negative, defaults to 4. SQLite serializes writes regardless of
	// pool size; extra connections only help concurrent readers.
	PoolSize int

	// Logger receives operational messages. If nil, logging is discarded.
	Logger *slog.Logger
}

// SQLiteMetadataStore keeps markers in a single SQLite table keyed by
// path. It is an alternative to DiskMetadataStore when marker counts are
// large enough that one-file-per-marker becomes a burden on the backing
// disk.
type SQLiteMetadataStore struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// OpenSQLiteMetadataStore opens the database, applies WAL and
// busy-timeout pragmas to every connection, and creates the marker table.
// The caller must Close the store when done.
func OpenSQLiteMetadataStore(cfg SQLiteConfig) (*SQLiteMetadataStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("overlayfs: sqlite metadata store: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return err
				}
			}
			return sqlitex.ExecuteScript(conn, sqliteMarkerSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("overlayfs: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite metadata store opened", "path", cfg.Path, "pool_size", poolSize)
	return &SQLiteMetadataStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *SQLiteMetadataStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteMetadataStore) Exists(p string) (bool, error) {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	found := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM markers WHERE path = :path", &sqlitex.ExecOptions{
		Named: map[string]any{":path": p},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	return found, err
}

func (s *SQLiteMetadataStore) CreateMarker(p string) error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn,
		"INSERT INTO markers (path) VALUES (:path) ON CONFLICT (path) DO NOTHING",
		&sqlitex.ExecOptions{Named: map[string]any{":path": p}})
}

func (s *SQLiteMetadataStore) RemoveMarker(p string) error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, "DELETE FROM markers WHERE path = :path",
		&sqlitex.ExecOptions{Named: map[string]any{":path": p}})
}

func (s *SQLiteMetadataStore) ReadMarkerContents(p string) ([]byte, error) {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var contents []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT contents FROM markers WHERE path = :path", &sqlitex.ExecOptions{
		Named: map[string]any{":path": p},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			contents = []byte(stmt.ColumnText(0))
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("overlayfs: marker %s: %w", p, fs.ErrNotExist)
	}
	return contents, nil
}

func (s *SQLiteMetadataStore) WriteMarkerContents(p string, data []byte) error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn,
		"INSERT INTO markers (path, contents) VALUES (:path, :contents) "+
			"ON CONFLICT (path) DO UPDATE SET contents = excluded.contents",
		&sqlitex.ExecOptions{Named: map[string]any{":path": p, ":contents": string(data)}})
}
