// Package history persists per-chat conversation turns so the model can see
// prior context across process restarts.
package history

import "context"

// Turn is one role-tagged message in a chat's history. Role is "user" or
// "model".
type Turn struct {
	Role    string
	Content string
}

// Store reads and appends role-tagged turns per chat. Implementations must
// tolerate being called for chats they have never seen.
type Store interface {
	// AppendTurn records one turn. Returns false when the turn could not be
	// stored; callers log and continue, a history miss never blocks a reply.
	AppendTurn(ctx context.Context, chatID int64, role, content string) bool

	// ReadTurns returns up to limit most recent turns, oldest first.
	ReadTurns(ctx context.Context, chatID int64, limit int) []Turn

	// Reset removes all turns for the chat. Returns false on storage error
	// or when the store is disabled.
	Reset(ctx context.Context, chatID int64) bool

	Close() error
}

// Disabled is the no-op store used when no DSN is configured. Reads return
// nothing and writes report failure, matching a bot that simply has no
// memory.
type Disabled struct{}

func (Disabled) AppendTurn(context.Context, int64, string, string) bool { return false }
func (Disabled) ReadTurns(context.Context, int64, int) []Turn           { return nil }
func (Disabled) Reset(context.Context, int64) bool                      { return false }
func (Disabled) Close() error                                           { return nil }
