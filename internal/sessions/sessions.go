// Package sessions implements the Session Store: the durable per-chat
// AgentSession record shadowing a Chat Actor's status, heartbeat, model,
// and mode.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
)

// NewSession is the caller-supplied shape for starting or resuming an
// interaction on a chat.
type NewSession struct {
	WorkspaceID string
	ChatID      string
	UserID      string
	AgentType   domain.AgentType
	Model       string
	Mode        domain.Mode
}

const StaleThreshold = 120 * time.Second

// Store is the Session Store contract consumed by the Chat Actor and the
// Registry's background cleanup task.
type Store interface {
	GetOrCreate(ctx context.Context, req NewSession) (*domain.AgentSession, error)
	UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, errorMessage *string) error
	UpdateTask(ctx context.Context, id string, task *string) error
	UpdateMetadata(ctx context.Context, id string, model *string, mode *domain.Mode, agentType *domain.AgentType) error
	Heartbeat(ctx context.Context, id string) error
	CleanupStale(ctx context.Context) ([]domain.AgentSession, error)
	Stats(ctx context.Context, workspaceID string) (map[domain.SessionStatus]int, error)
	GetByChatID(ctx context.Context, chatID string) (*domain.AgentSession, error)
}

// PGStore is the Postgres-backed Store with an in-memory hot cache keyed
// by chat id.
type PGStore struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string]*domain.AgentSession // chat_id -> session
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, cache: make(map[string]*domain.AgentSession)}
}

const sessionColumns = `id, workspace_id, chat_id, user_id, agent_type, model, mode, status, current_task, error_message, created_at, updated_at, last_heartbeat, completed_at`

func scanSession(row pgx.Row) (*domain.AgentSession, error) {
	var s domain.AgentSession
	err := row.Scan(&s.ID, &s.WorkspaceID, &s.ChatID, &s.UserID, &s.AgentType, &s.Model, &s.Mode, &s.Status,
		&s.CurrentTask, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt, &s.LastHeartbeat, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreate: no row -> create Idle; a
// terminal row -> reset to Idle, clearing error/task/completed_at; an
// active row -> Conflict.
func (s *PGStore) GetOrCreate(ctx context.Context, req NewSession) (*domain.AgentSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "begin tx")
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM agent_sessions WHERE chat_id=$1 FOR UPDATE`, req.ChatID)
	existing, err := scanSession(row)

	if err == pgx.ErrNoRows {
		sess := &domain.AgentSession{
			ID:            uuid.Must(uuid.NewV7()).String(),
			WorkspaceID:   req.WorkspaceID,
			ChatID:        req.ChatID,
			UserID:        req.UserID,
			AgentType:     req.AgentType,
			Model:         req.Model,
			Mode:          req.Mode,
			Status:        domain.StatusIdle,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
			LastHeartbeat: time.Now(),
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO agent_sessions (id, workspace_id, chat_id, user_id, agent_type, model, mode, status, created_at, updated_at, last_heartbeat)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9,$9)`,
			sess.ID, sess.WorkspaceID, sess.ChatID, sess.UserID, sess.AgentType, sess.Model, sess.Mode, sess.Status, sess.CreatedAt)
		if err != nil {
			return nil, errs.Wrap(errs.Storage, err, "insert session")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "commit")
		}
		s.putCache(sess)
		return sess, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "scan session")
	}

	if err := checkReusable(existing.Status); err != nil {
		return nil, errs.WithDetails(err, map[string]any{"session_id": existing.ID, "status": existing.Status})
	}

	existing.UserID = req.UserID
	existing.AgentType = req.AgentType
	existing.Model = req.Model
	existing.Mode = req.Mode
	existing.Status = domain.StatusIdle
	existing.CurrentTask = nil
	existing.ErrorMessage = nil
	existing.CompletedAt = nil
	existing.UpdatedAt = time.Now()
	existing.LastHeartbeat = time.Now()

	_, err = tx.Exec(ctx,
		`UPDATE agent_sessions SET user_id=$1, agent_type=$2, model=$3, mode=$4, status=$5,
		 current_task=NULL, error_message=NULL, completed_at=NULL, updated_at=$6, last_heartbeat=$6
		 WHERE id=$7`,
		existing.UserID, existing.AgentType, existing.Model, existing.Mode, existing.Status, existing.UpdatedAt, existing.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "reset session")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errs.Wrap(errs.Storage, err, "commit")
	}
	s.putCache(existing)
	return existing, nil
}

// checkReusable implements the get_or_create reuse rule behind the
// single-live-session invariant: only a terminal session (Completed,
// Error, Cancelled) may be reclaimed by a new interaction. Idle, Running,
// and Paused are all "Active" and conflict — an Idle row left behind by a
// crash stays stuck until CleanupStale reclaims it on heartbeat staleness,
// never silently reused.
func checkReusable(status domain.SessionStatus) *errs.Error {
	if status.IsActive() {
		return errs.New(errs.Conflict, "chat already has an active session")
	}
	return nil
}

// legalTransitions enumerates the session FSM edges the service layer
// enforces on UpdateStatus.
var legalTransitions = map[domain.SessionStatus]map[domain.SessionStatus]bool{
	domain.StatusIdle: {
		domain.StatusRunning:   true,
		domain.StatusCancelled: true,
	},
	domain.StatusRunning: {
		domain.StatusPaused:    true,
		domain.StatusCompleted: true,
		domain.StatusError:     true,
		domain.StatusCancelled: true,
	},
	domain.StatusPaused: {
		domain.StatusIdle:      true,
		domain.StatusCompleted: true,
		domain.StatusError:     true,
		domain.StatusCancelled: true,
	},
	// Completed -> Idle is the actor's own end-of-turn reset: a finished
	// turn hands the session straight back so the live actor keeps serving
	// the chat. Error/Cancelled stay strictly terminal; only GetOrCreate
	// reclaims those.
	domain.StatusCompleted: {
		domain.StatusIdle: true,
	},
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, errorMessage *string) error {
	s.mu.RLock()
	var current domain.SessionStatus
	for _, sess := range s.cache {
		if sess.ID == id {
			current = sess.Status
			break
		}
	}
	s.mu.RUnlock()

	if current != "" && !legalTransitions[current][status] && current != status {
		return errs.Newf(errs.Conflict, "illegal transition %s -> %s", current, status)
	}

	var completedAt any
	if status == domain.StatusCompleted || status == domain.StatusError {
		completedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions SET status=$1, error_message=$2, updated_at=now(),
		 completed_at=COALESCE($3, completed_at) WHERE id=$4`,
		status, errorMessage, completedAt, id)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "update status")
	}

	s.mu.Lock()
	for chatID, sess := range s.cache {
		if sess.ID == id {
			sess.Status = status
			sess.ErrorMessage = errorMessage
			sess.UpdatedAt = time.Now()
			s.cache[chatID] = sess
			break
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *PGStore) UpdateTask(ctx context.Context, id string, task *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE agent_sessions SET current_task=$1, updated_at=now() WHERE id=$2`, task, id)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "update task")
	}
	return nil
}

func (s *PGStore) UpdateMetadata(ctx context.Context, id string, model *string, mode *domain.Mode, agentType *domain.AgentType) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions SET
		 model=COALESCE($1, model), mode=COALESCE($2, mode), agent_type=COALESCE($3, agent_type), updated_at=now()
		 WHERE id=$4`,
		model, mode, agentType, id)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "update metadata")
	}
	return nil
}

func (s *PGStore) Heartbeat(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE agent_sessions SET last_heartbeat=now() WHERE id=$1`, id)
	if err != nil {
		return errs.Wrap(errs.Storage, err, "heartbeat")
	}
	return nil
}

// CleanupStale deletes sessions whose last_heartbeat exceeds StaleThreshold
// and whose status is non-terminal, returning the deleted rows so the
// Registry can stop their actors.
func (s *PGStore) CleanupStale(ctx context.Context) ([]domain.AgentSession, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM agent_sessions
		 WHERE last_heartbeat < now() - ($1 || ' seconds')::interval
		 AND status IN ('idle','running','paused')
		 RETURNING `+sessionColumns,
		int(StaleThreshold.Seconds()))
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "cleanup stale")
	}
	defer rows.Close()

	var out []domain.AgentSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan deleted session")
		}
		out = append(out, *sess)
		s.mu.Lock()
		delete(s.cache, sess.ChatID)
		s.mu.Unlock()
	}
	return out, rows.Err()
}

func (s *PGStore) Stats(ctx context.Context, workspaceID string) (map[domain.SessionStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM agent_sessions WHERE workspace_id=$1 GROUP BY status`, workspaceID)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "stats")
	}
	defer rows.Close()

	out := make(map[domain.SessionStatus]int)
	for rows.Next() {
		var status domain.SessionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errs.Wrap(errs.Storage, err, "scan stats row")
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *PGStore) GetByChatID(ctx context.Context, chatID string) (*domain.AgentSession, error) {
	if sess, ok := s.getCache(chatID); ok {
		return sess, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM agent_sessions WHERE chat_id=$1`, chatID)
	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, errs.New(errs.NotFound, "no session for chat")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Storage, err, "get by chat id")
	}
	s.putCache(sess)
	return sess, nil
}

func (s *PGStore) getCache(chatID string) (*domain.AgentSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.cache[chatID]
	return sess, ok
}

func (s *PGStore) putCache(sess *domain.AgentSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[sess.ChatID] = sess
}
