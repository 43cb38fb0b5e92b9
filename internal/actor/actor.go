// Package actor implements the Chat Actor: one long-lived goroutine per
// chat driving the Think -> Act -> Observe turn pipeline over the Model
// Gateway and Tool Catalog.
package actor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawdesk/clawbench/internal/chatstore"
	"github.com/clawdesk/clawbench/internal/contextbuilder"
	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/modelgateway"
	"github.com/clawdesk/clawbench/internal/otelx"
	"github.com/clawdesk/clawbench/internal/sessions"
	"github.com/clawdesk/clawbench/internal/tools"
	"github.com/clawdesk/clawbench/internal/vfs"
)

const (
	defaultHeartbeatInterval = 20 * time.Second // sessions are stale after 120s without one
	defaultInactivityTimeout = 30 * time.Minute
	defaultMaxIterations     = 20
	defaultTokenBudget       = 32_000
)

// CommandKind enumerates the mailbox message variants.
type CommandKind string

const (
	CmdSend   CommandKind = "send"
	CmdCancel CommandKind = "cancel"
	CmdStop   CommandKind = "stop"
)

// Command is one mailbox entry. Ack, if non-nil, is closed once the
// command has been fully processed (send accepted and handled, or
// cancel/stop applied) so a synchronous caller can wait on it.
type Command struct {
	Kind        CommandKind
	Message     string
	Attachments []domain.Attachment
	Model       string
	Persona     string
	Ack         chan error
}

// Deps bundles the Actor's collaborators, all already scoped/constructed
// by the caller (the Registry).
type Deps struct {
	WorkspaceID string
	ChatID      string
	UserID      string
	SessionID   string

	Sessions  sessions.Store
	Chats     chatstore.Store
	Files     vfs.Store
	ToolCat   *tools.Registry
	Gateway   *modelgateway.Gateway
	Assembler *contextbuilder.Assembler

	HeartbeatInterval time.Duration
	InactivityTimeout time.Duration
	MaxIterations     int
	TokenBudget       int
	MailboxSize       int

	// Publish broadcasts one Event to every subscriber of this chat; wired
	// by the Registry's per-chat bus.
	Publish func(domain.Event)

	// OnExit is invoked once when Run returns, letting the Registry drop
	// its live-actor slot so the next send respawns (and, for a terminal
	// session row, resets it via GetOrCreate).
	OnExit func()
}

// Actor is one chat's live Think->Act->Observe loop, mailbox-driven. The
// mailbox loop itself never blocks on a turn: turns run on their own
// goroutine so a Cancel arriving mid-turn can trip the cancellation token
// within bounded time.
type Actor struct {
	deps    Deps
	mailbox chan Command

	mu             sync.Mutex
	mode           domain.Mode
	activePlanPath string
	cancelTurn     context.CancelFunc
	seq            uint64
	turnDone       chan struct{} // non-nil while a turn is in flight
	exitAfterTurn  bool          // set when a turn ends in a terminal session state
}

func New(deps Deps, initialMode domain.Mode) *Actor {
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = defaultHeartbeatInterval
	}
	if deps.InactivityTimeout <= 0 {
		deps.InactivityTimeout = defaultInactivityTimeout
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = defaultMaxIterations
	}
	if deps.TokenBudget <= 0 {
		deps.TokenBudget = defaultTokenBudget
	}
	if deps.MailboxSize <= 0 {
		deps.MailboxSize = 8
	}
	return &Actor{deps: deps, mailbox: make(chan Command, deps.MailboxSize), mode: initialMode}
}

// Send enqueues a command without blocking: a full mailbox fails with
// Conflict rather than stalling the sender.
func (a *Actor) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case a.mailbox <- cmd:
		return nil
	default:
		return errs.New(errs.Conflict, "actor mailbox is full")
	}
}

// Run drives the mailbox loop until Stop is received, ctx is cancelled, or
// the actor goes inactivityTimeout without a command. Turns run on their
// own goroutine; the loop keeps draining the mailbox while one is in
// flight so Cancel is handled immediately. A second Send while a turn is
// running fails with Conflict (the HTTP surface already rejects it
// earlier via the session's Running status).
func (a *Actor) Run(ctx context.Context) {
	if a.deps.OnExit != nil {
		defer a.deps.OnExit()
	}
	heartbeat := time.NewTicker(a.deps.HeartbeatInterval)
	defer heartbeat.Stop()
	inactivity := time.NewTimer(a.deps.InactivityTimeout)
	defer inactivity.Stop()

	var stopAck chan error
	stopping := false

	for {
		a.mu.Lock()
		turnDone := a.turnDone
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			a.cancelActive()
			return

		case <-heartbeat.C:
			if a.deps.SessionID != "" {
				_ = a.deps.Sessions.Heartbeat(ctx, a.deps.SessionID)
			}

		case <-inactivity.C:
			if turnDone != nil {
				// A turn is still running; not idle.
				inactivity.Reset(a.deps.InactivityTimeout)
				continue
			}
			// Idle -> Cancelled is a legal edge: marking the row terminal
			// lets the next spawn's GetOrCreate reuse it immediately
			// instead of waiting out the stale-heartbeat window.
			if a.deps.SessionID != "" {
				_ = a.deps.Sessions.UpdateStatus(ctx, a.deps.SessionID, domain.StatusCancelled, nil)
			}
			a.emit(domain.Event{Kind: domain.EventStopped, Reason: "inactivity_timeout"})
			return

		case <-turnDone: // nil channel blocks forever when no turn is live
			a.mu.Lock()
			a.turnDone = nil
			exit := a.exitAfterTurn
			a.mu.Unlock()
			if stopping {
				ackClose(stopAck, nil)
				return
			}
			if exit {
				// The turn left the session in a terminal state; exit so
				// the Registry respawns through GetOrCreate's reset path.
				return
			}

		case cmd, ok := <-a.mailbox:
			if !ok {
				return
			}
			if !inactivity.Stop() {
				select {
				case <-inactivity.C:
				default:
				}
			}
			inactivity.Reset(a.deps.InactivityTimeout)

			switch cmd.Kind {
			case CmdStop:
				if turnDone == nil {
					if a.deps.SessionID != "" {
						_ = a.deps.Sessions.UpdateStatus(ctx, a.deps.SessionID, domain.StatusCancelled, nil)
					}
					ackClose(cmd.Ack, nil)
					return
				}
				// Graceful: finish the current turn first.
				stopping = true
				stopAck = cmd.Ack
			case CmdCancel:
				// Idempotent; cancelling with no live turn is a no-op
				// success.
				a.cancelActive()
				ackClose(cmd.Ack, nil)
			case CmdSend:
				if turnDone != nil || stopping {
					ackClose(cmd.Ack, errs.New(errs.Conflict, "a turn is already running for this chat"))
					continue
				}
				done := make(chan struct{})
				a.mu.Lock()
				a.turnDone = done
				a.mu.Unlock()
				go func(cmd Command) {
					defer close(done)
					ackClose(cmd.Ack, a.handleSend(ctx, cmd))
				}(cmd)
			}
		}
	}
}

func ackClose(ack chan error, err error) {
	if ack == nil {
		return
	}
	ack <- err
	close(ack)
}

func (a *Actor) cancelActive() {
	a.mu.Lock()
	cancel := a.cancelTurn
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Actor) nextSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return a.seq
}

func (a *Actor) emit(ev domain.Event) {
	if a.deps.Publish == nil {
		return
	}
	ev.Seq = a.nextSeq()
	a.deps.Publish(ev)
}

// handleSend runs exactly one turn to completion (or cancellation/error),
// implementing the turn pipeline: append user message, build context,
// stream the model, execute requested tool calls strictly serially to
// keep filesystem effect ordering deterministic, and persist the final
// assistant message.
func (a *Actor) handleSend(ctx context.Context, cmd Command) error {
	ctx, span := otelx.Tracer("actor").Start(ctx, "chat.turn")
	defer span.End()

	turnCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelTurn = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.cancelTurn = nil
		a.mu.Unlock()
		cancel()
	}()

	if err := a.deps.Sessions.UpdateStatus(turnCtx, a.deps.SessionID, domain.StatusRunning, nil); err != nil {
		return err
	}

	userMsg := domain.ChatMessage{
		ChatID:   a.deps.ChatID,
		Role:     domain.RoleUser,
		Content:  cmd.Message,
		Metadata: domain.MessageMetadata{Attachments: cmd.Attachments},
	}
	if _, err := a.deps.Chats.Append(turnCtx, userMsg); err != nil {
		return a.fail(err)
	}

	persona := cmd.Persona
	systemPrompt, err := a.deps.Assembler.Build(turnCtx, a.deps.WorkspaceID, a.deps.ChatID, persona, a.deps.TokenBudget)
	if err != nil {
		return a.fail(err)
	}

	providerMessages, err := a.loadProviderMessages(turnCtx)
	if err != nil {
		return a.fail(err)
	}

	toolDefs := a.toolDefinitions()
	model := cmd.Model

	var totalUsage domain.Usage
	var finalContent string

	for iteration := 0; iteration < a.deps.MaxIterations; iteration++ {
		req := modelgateway.ChatRequest{
			Model:        model,
			SystemPrompt: systemPrompt,
			Messages:     providerMessages,
			Tools:        toolDefs,
		}

		stream, err := a.deps.Gateway.ChatStream(turnCtx, model, req)
		if err != nil {
			return a.fail(err)
		}

		var textBuf strings.Builder
		calledTool := false

		for {
			item, more, err := stream.Next(turnCtx)
			if err != nil {
				if turnCtx.Err() != nil {
					a.emit(domain.Event{Kind: domain.EventStopped, Reason: "cancelled", Partial: textBuf.String()})
					_ = a.deps.Sessions.UpdateStatus(context.Background(), a.deps.SessionID, domain.StatusCancelled, nil)
					a.markTerminal()
					return nil
				}
				return a.fail(err)
			}

			switch item.Kind {
			case modelgateway.ItemTextChunk:
				textBuf.WriteString(item.Text)
				a.emit(domain.Event{Kind: domain.EventChunk, Text: item.Text})

			case modelgateway.ItemToolCallRequest:
				calledTool = true
				assistantText := textBuf.String()
				textBuf.Reset()

				record, toolMsg, err := a.runTool(turnCtx, item)
				if err != nil {
					return a.fail(err)
				}

				providerMessages = append(providerMessages,
					modelgateway.Message{Role: string(domain.RoleAssistant), Content: assistantText},
					toolMsg,
				)

				assistantRecord := domain.ChatMessage{
					ChatID:   a.deps.ChatID,
					Role:     domain.RoleAssistant,
					Content:  assistantText,
					Metadata: domain.MessageMetadata{ToolCalls: []domain.ToolCallRecord{record}},
				}
				if _, err := a.deps.Chats.Append(turnCtx, assistantRecord); err != nil {
					return a.fail(err)
				}

			case modelgateway.ItemFinal:
				finalContent = textBuf.String()
				totalUsage.PromptTokens += item.Usage.PromptTokens
				totalUsage.CompletionTokens += item.Usage.CompletionTokens
				totalUsage.TotalTokens += item.Usage.TotalTokens
				totalUsage.CachedTokens += item.Usage.CachedTokens

			case modelgateway.ItemProviderError:
				return a.fail(errs.NewProvider(item.ProviderErrKind, item.ProviderErrMsg))
			}

			if !more {
				break
			}
		}

		if !calledTool {
			break
		}
	}

	final := domain.ChatMessage{
		ChatID:   a.deps.ChatID,
		Role:     domain.RoleAssistant,
		Content:  finalContent,
		Metadata: domain.MessageMetadata{Usage: &totalUsage},
	}
	if _, err := a.deps.Chats.Append(turnCtx, final); err != nil {
		return a.fail(err)
	}

	// Transition to Completed, then reset to Idle so the live
	// actor keeps accepting the chat's next message without a respawn.
	if err := a.deps.Sessions.UpdateStatus(turnCtx, a.deps.SessionID, domain.StatusCompleted, nil); err != nil {
		return a.fail(err)
	}
	if err := a.deps.Sessions.UpdateStatus(turnCtx, a.deps.SessionID, domain.StatusIdle, nil); err != nil {
		return a.fail(err)
	}
	a.emit(domain.Event{Kind: domain.EventDone, Usage: &totalUsage})
	return nil
}

func (a *Actor) markTerminal() {
	a.mu.Lock()
	a.exitAfterTurn = true
	a.mu.Unlock()
}

func (a *Actor) fail(cause error) error {
	msg := cause.Error()
	a.emit(domain.Event{Kind: domain.EventError, Message: msg})
	_ = a.deps.Sessions.UpdateStatus(context.Background(), a.deps.SessionID, domain.StatusError, &msg)
	a.markTerminal()
	return cause
}

// runTool executes one requested tool call to completion before the turn
// pipeline resumes pulling from the stream. Tools are never preempted
// mid-operation; cancellation takes effect between calls.
func (a *Actor) runTool(ctx context.Context, item modelgateway.StreamItem) (domain.ToolCallRecord, modelgateway.Message, error) {
	// Tools run to completion once started: a Cancel arriving mid-call must
	// not abort the in-flight catalog or blob operation. Detach from the
	// turn's cancellation here; the next stream pull observes it instead.
	ctx = context.WithoutCancel(ctx)

	a.emit(domain.Event{Kind: domain.EventToolCallStart, ToolName: item.ToolCallName, ToolArgs: item.ToolCallArgs})

	a.mu.Lock()
	cfg := domain.ToolConfig{PlanMode: a.mode == domain.ModePlan, ActivePlanPath: a.activePlanPath}
	a.mu.Unlock()

	inv := tools.Invocation{
		WorkspaceID: a.deps.WorkspaceID,
		UserID:      a.deps.UserID,
		Config:      cfg,
		Args:        item.ToolCallArgs,
	}

	result, err := a.deps.ToolCat.Dispatch(ctx, tools.Name(item.ToolCallName), inv, func() bool {
		return a.targetIsPlanFile(ctx, item.ToolCallArgs)
	})
	if err != nil {
		result = tools.ErrorResult(err.Error())
	}

	a.handleCooperativeResult(result)

	record := domain.ToolCallRecord{Name: item.ToolCallName, Args: item.ToolCallArgs, Result: result.ForUser, Error: result.Err}
	a.emit(domain.Event{Kind: domain.EventToolCallEnd, ToolName: item.ToolCallName, ToolResult: result.ForUser, ToolError: result.Err})

	toolMsg := modelgateway.Message{Role: string(domain.RoleTool), Content: result.ForLLM, ToolCallID: item.ToolCallID}
	return record, toolMsg, nil
}

// handleCooperativeResult interprets ask_user/exit_plan_mode's structured
// {action: ...} payload: only the actor, which owns session mode,
// may act on it.
func (a *Actor) handleCooperativeResult(result tools.Result) {
	if result.IsError {
		return
	}
	payload, ok := result.ForUser.(map[string]any)
	if !ok {
		return
	}
	switch payload["action"] {
	case "exit_plan_mode":
		// activePlanPath is a Build-mode concept: the approved plan now
		// being executed, threaded into every ToolConfig so tools can
		// reference it.
		planPath, _ := payload["plan_path"].(string)
		a.mu.Lock()
		a.mode = domain.ModeBuild
		a.activePlanPath = planPath
		a.mu.Unlock()
	case "ask_user":
		a.mu.Lock()
		a.mode = domain.ModePlan
		a.mu.Unlock()
		a.emit(domain.Event{Kind: domain.EventStopped, Reason: "awaiting_user_input"})
	}
}

// targetIsPlanFile reports whether every mutation target named by args is a
// Plan file: in plan mode, file modification is restricted to ".plan" files
// only. The extension check covers files the call itself is about to
// create; an existing catalog entry of Plan type also qualifies.
func (a *Actor) targetIsPlanFile(ctx context.Context, args map[string]any) bool {
	found := false
	for _, key := range []string{"path", "src", "dst"} {
		target, _ := args[key].(string)
		if target == "" {
			continue
		}
		found = true
		if !a.isPlanPath(ctx, target) {
			return false
		}
	}
	return found
}

func (a *Actor) isPlanPath(ctx context.Context, target string) bool {
	norm := vfs.Normalize(target)
	if strings.HasSuffix(norm, ".plan") {
		return true
	}
	if a.deps.Files == nil {
		return false
	}
	file, err := a.deps.Files.Resolve(ctx, a.deps.WorkspaceID, norm)
	if err != nil {
		return false
	}
	return file.Type == domain.FileTypePlan
}

func (a *Actor) toolDefinitions() []modelgateway.ToolDefinition {
	defs := a.deps.ToolCat.List()
	out := make([]modelgateway.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, modelgateway.ToolDefinition{Name: string(d.Name), Description: d.Description, Parameters: d.Schema})
	}
	return out
}

// loadProviderMessages converts the persisted chat history into the
// Model Gateway's provider-agnostic Message shape, seeding a fresh turn.
func (a *Actor) loadProviderMessages(ctx context.Context) ([]modelgateway.Message, error) {
	history, err := a.deps.Chats.Messages(ctx, a.deps.ChatID)
	if err != nil {
		return nil, fmt.Errorf("actor: load history: %w", err)
	}
	out := make([]modelgateway.Message, 0, len(history))
	for _, m := range history {
		out = append(out, modelgateway.Message{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}

// NewID generates a time-ordered identifier for entities the Actor creates
// outside of a store's own id assignment (e.g. correlation ids in events).
func NewID() string { return uuid.Must(uuid.NewV7()).String() }
