// Package registry implements the Actor Registry + Event Bus: it
// keeps at most one live Chat Actor per chat id, exposes per-chat
// subscription for the HTTP SSE surface, and runs the background sweep
// that reconciles stale AgentSession rows with live actor goroutines.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/clawdesk/clawbench/internal/actor"
	"github.com/clawdesk/clawbench/internal/chatstore"
	"github.com/clawdesk/clawbench/internal/contextbuilder"
	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/modelgateway"
	"github.com/clawdesk/clawbench/internal/sessions"
	"github.com/clawdesk/clawbench/internal/tools"
	"github.com/clawdesk/clawbench/internal/vfs"
)

// Deps bundles the collaborators every spawned Actor needs; the Registry
// owns exactly one of each and threads them into every Actor it spawns.
type Deps struct {
	Sessions  sessions.Store
	Chats     chatstore.Store
	Files     vfs.Store
	ToolCat   *tools.Registry
	Gateway   *modelgateway.Gateway
	Assembler *contextbuilder.Assembler

	HeartbeatInterval   time.Duration
	InactivityTimeout   time.Duration
	MaxIterations       int
	TokenBudget         int
	MailboxSize         int
	BroadcastBufferSize int

	// CleanupInterval is the fixed-interval fallback sweep cadence,
	// used whenever CleanupCron is empty or invalid.
	CleanupInterval time.Duration
	// CleanupCron, if set and valid per gronx, gates the sweep tick beyond
	// the fixed interval: a tick only runs CleanupStale when the cron
	// expression is also due.
	CleanupCron string
}

// SpawnRequest carries the caller-supplied identity needed the first time a
// chat's Actor is spawned; a subsequent GetOrSpawn for an
// already-live chat ignores everything but ChatID.
type SpawnRequest struct {
	WorkspaceID string
	ChatID      string
	UserID      string
	AgentType   domain.AgentType
	Model       string
	Mode        domain.Mode
}

type entry struct {
	actor  *actor.Actor
	bus    *eventBus
	cancel context.CancelFunc
}

// Registry is the process-wide keyed store of live Chat Actors.
type Registry struct {
	deps Deps

	mu      sync.Mutex
	actors  map[string]*entry // chat_id -> entry
	spawnMu sync.Map          // chat_id -> *sync.Mutex, serializes concurrent GetOrSpawn

	stopCleanup context.CancelFunc
}

func New(deps Deps) *Registry {
	if deps.CleanupInterval <= 0 {
		deps.CleanupInterval = 30 * time.Second
	}
	return &Registry{deps: deps, actors: make(map[string]*entry)}
}

func (r *Registry) spawnLock(chatID string) *sync.Mutex {
	m, _ := r.spawnMu.LoadOrStore(chatID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// GetOrSpawn returns the live Actor for req.ChatID, spawning one (and its
// backing AgentSession, via sessions.Store.GetOrCreate) if none is
// currently running. Concurrent calls for the same chat id are serialized
// by a per-chat mutex so exactly one Actor is ever spawned.
func (r *Registry) GetOrSpawn(ctx context.Context, req SpawnRequest) (*actor.Actor, error) {
	lock := r.spawnLock(req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	var bus *eventBus
	if e, ok := r.actors[req.ChatID]; ok {
		if e.actor != nil {
			r.mu.Unlock()
			return e.actor, nil
		}
		// An entry with no live actor holds the bus Subscribe created
		// before the first send (or left behind by an exited actor); keep
		// it so those subscribers see the new actor's events.
		bus = e.bus
	}
	r.mu.Unlock()

	sess, err := r.deps.Sessions.GetOrCreate(ctx, sessions.NewSession{
		WorkspaceID: req.WorkspaceID,
		ChatID:      req.ChatID,
		UserID:      req.UserID,
		AgentType:   req.AgentType,
		Model:       req.Model,
		Mode:        req.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: get or create session: %w", err)
	}

	if bus == nil {
		bus = newEventBus(r.deps.BroadcastBufferSize)
	}
	actorCtx, cancel := context.WithCancel(context.Background())

	var a *actor.Actor
	a = actor.New(actor.Deps{
		WorkspaceID:       req.WorkspaceID,
		ChatID:            req.ChatID,
		UserID:            req.UserID,
		SessionID:         sess.ID,
		Sessions:          r.deps.Sessions,
		Chats:             r.deps.Chats,
		Files:             r.deps.Files,
		ToolCat:           r.deps.ToolCat,
		Gateway:           r.deps.Gateway,
		Assembler:         r.deps.Assembler,
		HeartbeatInterval: r.deps.HeartbeatInterval,
		InactivityTimeout: r.deps.InactivityTimeout,
		MaxIterations:     r.deps.MaxIterations,
		TokenBudget:       r.deps.TokenBudget,
		MailboxSize:       r.deps.MailboxSize,
		Publish:           bus.broadcast,
		OnExit:            func() { r.release(req.ChatID, a) },
	}, sess.Mode)

	go a.Run(actorCtx)

	r.mu.Lock()
	r.actors[req.ChatID] = &entry{actor: a, bus: bus, cancel: cancel}
	r.mu.Unlock()

	return a, nil
}

// release clears the live-actor slot once an Actor's Run loop exits
// (terminal turn, inactivity, or Stop), keeping the bus so attached SSE
// subscribers survive into a respawn. Guarded on identity so a release
// racing a fresh spawn never evicts the newcomer.
func (r *Registry) release(chatID string, a *actor.Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.actors[chatID]; ok && e.actor == a {
		e.actor = nil
		e.cancel = nil
	}
}

// Send dispatches cmd to chatID's Actor, spawning it first if necessary.
func (r *Registry) Send(ctx context.Context, req SpawnRequest, cmd actor.Command) error {
	a, err := r.GetOrSpawn(ctx, req)
	if err != nil {
		return err
	}
	return a.Send(ctx, cmd)
}

// SendExisting dispatches cmd to chatID's Actor only if one is already
// live, never spawning one. Used for Cancel/Stop commands, where spawning a
// fresh Actor for an already-terminal chat would incorrectly reset its
// AgentSession back to Idle via GetOrCreate.
func (r *Registry) SendExisting(ctx context.Context, chatID string, cmd actor.Command) (bool, error) {
	r.mu.Lock()
	e, ok := r.actors[chatID]
	r.mu.Unlock()
	if !ok || e.actor == nil {
		return false, nil
	}
	return true, e.actor.Send(ctx, cmd)
}

// Busy reports whether chatID currently has a turn in flight (Running or
// Paused), used by the HTTP surface to reject a concurrent send with
// Conflict before even touching the Actor. An Idle session is not busy: it
// is the resting state between turns and must keep accepting messages.
func (r *Registry) Busy(ctx context.Context, chatID string) (bool, error) {
	sess, err := r.deps.Sessions.GetByChatID(ctx, chatID)
	if err != nil {
		return false, nil // no session yet => not busy
	}
	return sess.Status == domain.StatusRunning || sess.Status == domain.StatusPaused, nil
}

// Subscribe registers a new SSE listener on chatID's event bus, spawning
// the bus (but not the Actor) lazily so a client may connect before the
// first message is sent.
func (r *Registry) Subscribe(chatID, subscriberID string) (<-chan domain.Event, func()) {
	r.mu.Lock()
	e, ok := r.actors[chatID]
	if !ok {
		e = &entry{bus: newEventBus(r.deps.BroadcastBufferSize)}
		r.actors[chatID] = e
	}
	bus := e.bus
	r.mu.Unlock()

	ch := bus.subscribe(subscriberID)
	return ch, func() { bus.unsubscribe(subscriberID) }
}

// stopGraceTimeout bounds how long a stopping Actor may keep running its
// current turn before it is hard-cancelled.
const stopGraceTimeout = 30 * time.Second

// Stop shuts down chatID's live Actor and closes its bus: graceful after
// the current turn (or immediate if idle) via a Stop command through the
// mailbox, falling back to hard-cancelling the actor's context only if it
// is unresponsive. It is a no-op if no Actor is currently spawned for
// chatID.
func (r *Registry) Stop(chatID string) {
	r.mu.Lock()
	e, ok := r.actors[chatID]
	if ok {
		delete(r.actors, chatID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	finish := func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.bus.closeAll()
	}

	if e.actor == nil {
		finish()
		return
	}
	ack := make(chan error, 1)
	if err := e.actor.Send(context.Background(), actor.Command{Kind: actor.CmdStop, Ack: ack}); err != nil {
		// Mailbox full or actor already gone.
		finish()
		return
	}
	go func() {
		select {
		case <-ack:
		case <-time.After(stopGraceTimeout):
		}
		finish()
	}()
}

// RunCleanup runs the background sweep loop until ctx is cancelled: every
// CleanupInterval tick, if CleanupCron is unset or due, it calls
// sessions.Store.CleanupStale and Stops the Actor for every session it
// reclaims.
func (r *Registry) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(r.deps.CleanupInterval)
	defer ticker.Stop()

	cronValid := r.deps.CleanupCron != "" && gronx.IsValid(r.deps.CleanupCron)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cronValid {
				due, err := gronx.New().IsDue(r.deps.CleanupCron)
				if err != nil || !due {
					continue
				}
			}
			stale, err := r.deps.Sessions.CleanupStale(ctx)
			if err != nil {
				continue
			}
			for _, sess := range stale {
				r.Stop(sess.ChatID)
			}
		}
	}
}
