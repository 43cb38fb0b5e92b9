// Package chatstore persists the append-only ChatMessage log bound to a
// Chat file, addressed by the catalog's chat id.
package chatstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
)

// Store is the ChatMessage log consumed by the Chat Actor (append) and the
// Context Assembler (read, via the narrower contextbuilder.HistoryReader
// view of this interface).
type Store interface {
	Append(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error)
	Messages(ctx context.Context, chatID string) ([]domain.ChatMessage, error)
}

// PGStore is the Postgres-backed Store with a per-chat in-memory read
// cache, invalidated on every Append.
type PGStore struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string][]domain.ChatMessage // chat_id -> ordered messages
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, cache: make(map[string][]domain.ChatMessage)}
}

func (s *PGStore) Append(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	metaJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "marshal message metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, chat_id, role, content, metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		msg.ID, msg.ChatID, msg.Role, msg.Content, metaJSON, msg.CreatedAt)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "append chat message")
	}

	s.mu.Lock()
	delete(s.cache, msg.ChatID) // invalidate; next Messages() reloads in order
	s.mu.Unlock()

	return &msg, nil
}

func (s *PGStore) Messages(ctx context.Context, chatID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	if cached, ok := s.cache[chatID]; ok {
		out := make([]domain.ChatMessage, len(cached))
		copy(out, cached)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, metadata, created_at
		 FROM chat_messages WHERE chat_id=$1 ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "query chat messages")
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan chat message")
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Storage, err, "iterate chat messages")
	}

	s.mu.Lock()
	cached := make([]domain.ChatMessage, len(out))
	copy(cached, out)
	s.cache[chatID] = cached
	s.mu.Unlock()

	return out, nil
}

func scanMessage(row pgx.Row) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	var metaJSON []byte
	if err := row.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &metaJSON, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
