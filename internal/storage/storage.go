// Package storage provides SQLite-backed persistence for HTLC swap
// orders, Fusion orders, the cross-chain message log and the resolver
// table. Of these, only the resolver table is loaded back into the
// coordinator at startup.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hostbridge/coordinator/internal/config"
)

// Storage wraps a SQLite connection with the coordinator's schema.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (and if needed creates) the coordinator's SQLite database.
func New(cfg config.StorageConfig) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "coordinator.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection, for callers that need raw access.
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS swap_orders (
		order_id              TEXT PRIMARY KEY,
		ethereum_sender       TEXT NOT NULL,
		recipient             TEXT NOT NULL,
		amount                INTEGER NOT NULL,
		original_amount       INTEGER NOT NULL,
		hashlock              TEXT NOT NULL UNIQUE,
		timelock              INTEGER NOT NULL,
		completed             INTEGER NOT NULL DEFAULT 0,
		refunded              INTEGER NOT NULL DEFAULT 0,
		created_at            INTEGER NOT NULL,
		cross_chain_id        TEXT,
		transfer_block_height INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_swap_orders_hashlock ON swap_orders(hashlock);

	CREATE TABLE IF NOT EXISTS fusion_orders (
		id                        INTEGER PRIMARY KEY,
		src_mint                  TEXT NOT NULL,
		dst_mint                  TEXT NOT NULL,
		maker                     TEXT NOT NULL,
		src_amount                TEXT NOT NULL,
		min_dst_amount            TEXT NOT NULL,
		estimated_dst_amount      TEXT NOT NULL,
		expiration_time           INTEGER NOT NULL,
		auction_start_time        INTEGER NOT NULL,
		auction_end_time          INTEGER NOT NULL,
		auction_start_price       TEXT NOT NULL,
		auction_end_price         TEXT NOT NULL,
		cancellation_auction_secs INTEGER NOT NULL DEFAULT 0,
		protocol_fee_bps          INTEGER NOT NULL DEFAULT 0,
		integrator_fee_bps        INTEGER NOT NULL DEFAULT 0,
		surplus_bps               INTEGER NOT NULL DEFAULT 0,
		max_cancel_premium        TEXT NOT NULL DEFAULT '0',
		hashlock_secret_hash      TEXT,
		hashlock_revealed         INTEGER NOT NULL DEFAULT 0,
		hashlock_reveal_time      INTEGER NOT NULL DEFAULT 0,
		timelock_finality_secs    INTEGER NOT NULL DEFAULT 0,
		timelock_exclusive_secs   INTEGER NOT NULL DEFAULT 0,
		timelock_cancel_secs      INTEGER NOT NULL DEFAULT 0,
		status                    TEXT NOT NULL,
		status_reason             TEXT,
		created_at                INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fusion_orders_maker ON fusion_orders(maker);
	CREATE INDEX IF NOT EXISTS idx_fusion_orders_status ON fusion_orders(status);

	CREATE TABLE IF NOT EXISTS cross_chain_messages (
		order_id     TEXT PRIMARY KEY,
		message_type TEXT NOT NULL,
		source_chain TEXT NOT NULL,
		target_chain TEXT NOT NULL,
		timestamp    INTEGER NOT NULL,
		payload      BLOB,
		received_at  INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resolvers (
		principal  TEXT PRIMARY KEY,
		authorized INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
