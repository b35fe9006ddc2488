package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/echodesk/pkg/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLConfig holds configuration for a SQL-backed store.
type SQLConfig struct {
	// Driver is one of "sqlite" (pure Go), "sqlite3" (cgo) or "postgres".
	Driver string
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns a local sqlite configuration.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Driver:          "sqlite",
		DSN:             "file:echodesk.db?_pragma=busy_timeout(5000)",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQLStore implements Store on database/sql. Content blocks are stored as a
// JSON column; seq preserves append order.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// DialectFor maps a database/sql driver name to its Dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// NewSQLStore opens the database, verifies the connection and applies the schema.
func NewSQLStore(ctx context.Context, config SQLConfig) (*SQLStore, error) {
	d, err := DialectFor(config.Driver)
	if err != nil {
		return nil, err
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewSQLStoreFromDB(db, d)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreFromDB wraps an existing connection.
func NewSQLStoreFromDB(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the messages table if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_messages (
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// bind rewrites ? placeholders for the active dialect.
func (s *SQLStore) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *SQLStore) Append(ctx context.Context, conversationID string, msg models.Message) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	history, err := s.queryHistory(ctx, tx, conversationID)
	if err != nil {
		return err
	}
	issued := map[string]struct{}{}
	for _, prior := range history {
		for _, block := range prior.Content {
			if block.Type == models.BlockToolUse {
				issued[block.ID] = struct{}{}
			}
		}
	}
	if err := checkToolResults(issued, msg); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.bind(`
		INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		conversationID, len(history)+1, string(msg.Role), string(content), createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) queryHistory(ctx context.Context, q querier, conversationID string) ([]models.Message, error) {
	rows, err := q.QueryContext(ctx, s.bind(`
		SELECT role, content, created_at FROM conversation_messages
		WHERE conversation_id = ? ORDER BY seq ASC`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			role    string
			content string
			created time.Time
		)
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg := models.Message{Role: models.Role(role), CreatedAt: created}
		if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}

func (s *SQLStore) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	history, err := s.queryHistory(ctx, s.db, conversationID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.Message{}
	}
	return history, nil
}

func (s *SQLStore) Clear(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM conversation_messages WHERE conversation_id = ?`), conversationID)
	if err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT conversation_id FROM conversation_messages ORDER BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
