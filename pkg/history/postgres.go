package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ilyaksco/telebot-gemini/pkg/logger"
)

const chatHistoryTable = "chat_history"

// PostgresStore keeps chat history in a single Postgres table:
//
//	CREATE TABLE IF NOT EXISTS chat_history (
//	    id                BIGSERIAL PRIMARY KEY,
//	    chat_id           BIGINT      NOT NULL,
//	    role              TEXT        NOT NULL,
//	    content           TEXT        NOT NULL,
//	    message_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX IF NOT EXISTS chat_history_chat_id_ts_idx
//	    ON chat_history (chat_id, message_timestamp DESC);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, chatID int64, role, content string) bool {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+chatHistoryTable+` (chat_id, role, content, message_timestamp)
		 VALUES ($1, $2, $3, $4)`,
		chatID, role, content, time.Now().UTC(),
	)
	if err != nil {
		logger.ErrorCF("history", "Failed to append turn", map[string]interface{}{
			"chat_id": chatID,
			"role":    role,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *PostgresStore) ReadTurns(ctx context.Context, chatID int64, limit int) []Turn {
	// Newest rows first so LIMIT keeps the tail of the conversation; the
	// slice is reversed afterwards to restore chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM `+chatHistoryTable+`
		 WHERE chat_id = $1
		 ORDER BY message_timestamp DESC
		 LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		logger.ErrorCF("history", "Failed to read turns", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return nil
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			continue
		}
		turns = append(turns, t)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}

func (s *PostgresStore) Reset(ctx context.Context, chatID int64) bool {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+chatHistoryTable+` WHERE chat_id = $1`, chatID)
	if err != nil {
		logger.ErrorCF("history", "Failed to reset history", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Open returns the Postgres store when a DSN is configured, or the Disabled
// store otherwise. A connection failure also degrades to Disabled so the bot
// still answers, just without memory.
func Open(dsn string) Store {
	if dsn == "" {
		logger.WarnC("history", "No Postgres DSN configured, chat history disabled")
		return Disabled{}
	}
	store, err := NewPostgresStore(dsn)
	if err != nil {
		logger.ErrorCF("history", "Failed to connect, chat history disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return Disabled{}
	}
	logger.InfoC("history", "Chat history store connected")
	return store
}
