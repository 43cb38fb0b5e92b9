// Package domain holds the core data model shared by the Virtual
// Filesystem, Tool Catalog, Session Store, and Chat Actor, independent of
// any storage backend.
package domain

import "time"

// FileType enumerates the kinds of catalog entries.
type FileType string

const (
	FileTypeFolder   FileType = "folder"
	FileTypeDocument FileType = "document"
	FileTypeChat     FileType = "chat"
	FileTypePlan     FileType = "plan"
	FileTypeCanvas   FileType = "canvas"
	FileTypeOther    FileType = "other"
)

// Permission is a coarse per-file access marker. Concrete role and
// permission CRUD belongs to the workspacesvc collaborator; the catalog
// only carries the field.
type Permission string

const (
	PermissionOwner Permission = "owner"
	PermissionWrite Permission = "write"
	PermissionRead  Permission = "read"
)

// File is a catalog entry: a path-addressed node in a workspace's virtual
// filesystem tree.
type File struct {
	ID         string
	WorkspaceID string
	Path       string // normalized, absolute
	Name       string
	Slug       string
	Type       FileType
	IsVirtual  bool
	IsRemote   bool
	Permission Permission
	ParentID   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

func (f *File) IsFolder() bool  { return f.Type == FileTypeFolder }
func (f *File) IsDeleted() bool { return f.DeletedAt != nil }

// FileVersion is an immutable content snapshot on a branch of a File.
type FileVersion struct {
	ID        string
	FileID    string
	VersionNo int64 // strictly increasing per file on a given branch
	Author    string
	Branch    string // default "main"
	Content   []byte
	AppData   []byte // optional opaque sidecar
	Hash      string // deterministic content hash, the CAS handle
	CreatedAt time.Time
}

const MainBranch = "main"

// Role is the author/speaker of a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Attachment references a File, optionally pinned to a specific version.
type Attachment struct {
	FileID    string
	VersionID *string
}

// ToolCallRecord is a persisted record of one tool invocation inside a
// message's metadata.
type ToolCallRecord struct {
	Name   string
	Args   map[string]any
	Result any
	Error  string
}

// Usage is a token-usage accounting record, echoed back on Final/Done.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
}

// MessageMetadata carries everything about a ChatMessage beyond its text.
type MessageMetadata struct {
	Attachments []Attachment
	ToolCalls   []ToolCallRecord
	Usage       *Usage
}

// ChatMessage is an append-only entry bound to a Chat file.
type ChatMessage struct {
	ID        string
	ChatID    string
	Role      Role
	Content   string
	Metadata  MessageMetadata
	CreatedAt time.Time
}

// AgentType enumerates the kinds of agent a session can run.
type AgentType string

const (
	AgentAssistant AgentType = "assistant"
	AgentPlanner   AgentType = "planner"
	AgentBuilder   AgentType = "builder"
)

// Mode controls which files the Tool Catalog will let tools mutate.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModePlan  Mode = "plan"
	ModeBuild Mode = "build"
)

// SessionStatus is one state of the AgentSession FSM.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
	StatusCancelled SessionStatus = "cancelled"
)

// IsActive reports whether status is one of {Idle, Running, Paused}.
func (s SessionStatus) IsActive() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// IsTerminal reports whether status is one of {Completed, Error, Cancelled}.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// AgentSession is the durable shadow of one Chat Actor.
type AgentSession struct {
	ID              string
	WorkspaceID     string
	ChatID          string
	UserID          string
	AgentType       AgentType
	Model           string // "provider:model"
	Mode            Mode
	Status          SessionStatus
	CurrentTask     *string
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeat   time.Time
	CompletedAt     *time.Time
}

// ToolConfig is the execution-context object passed to every tool call.
type ToolConfig struct {
	PlanMode       bool
	ActivePlanPath string
}

// EventKind enumerates the bus Event variants.
type EventKind string

const (
	EventChunk         EventKind = "chunk"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventError         EventKind = "error"
	EventStopped       EventKind = "stopped"
	EventDone          EventKind = "done"
)

// Event is one frame published on a chat's broadcast bus.
type Event struct {
	Kind EventKind
	Seq  uint64

	// Chunk
	Text string

	// ToolCallStart / ToolCallEnd
	ToolName   string
	ToolArgs   map[string]any
	ToolResult any
	ToolError  string

	// Error
	Message string

	// Stopped
	Reason  string
	Partial string

	// Done
	Usage *Usage
}
