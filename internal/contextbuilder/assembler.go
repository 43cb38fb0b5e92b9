// Package contextbuilder implements the Context Assembler: it turns
// a persona, a chat's message history, and its referenced files into a
// single token-bounded prompt string.
package contextbuilder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/vfs"
)

// Priority orders fragments for greedy budget fitting.
type Priority int

const (
	PriorityEssential Priority = iota
	PriorityHigh
	PriorityMedium
)

// Fragment is a unit of text with a priority, the Assembler's internal
// currency (glossary: "Fragment (context)").
type Fragment struct {
	Region   string // "persona" | "file_context" | "history"
	Text     string
	Priority Priority
	Position int // chat-order position, for tie-breaking among same-priority fragments
}

// HistoryReader is the minimal message-history dependency the Assembler
// needs; sessions/catalog own the real implementation.
type HistoryReader interface {
	Messages(ctx context.Context, chatID string) ([]domain.ChatMessage, error)
}

const charsPerToken = 4

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Assembler builds bounded prompts's algorithm.
type Assembler struct {
	history HistoryReader
	files   vfs.Store
}

func NewAssembler(history HistoryReader, files vfs.Store) *Assembler {
	return &Assembler{history: history, files: files}
}

// Build runs the full algorithm: persona -> file_context -> history, in
// that fixed output order, greedily fit by priority within tokenBudget.
func (a *Assembler) Build(ctx context.Context, workspaceID, chatID, persona string, tokenBudget int) (string, error) {
	messages, err := a.history.Messages(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("contextbuilder: load history: %w", err)
	}

	personaFrag := Fragment{Region: "persona", Text: persona, Priority: PriorityEssential}

	fileFrags := a.buildFileFragments(ctx, workspaceID, messages, tokenBudget)
	historyFrag := buildHistoryFragment(messages)

	budget := tokenBudget
	budget -= estimateTokens(personaFrag.Text)

	fitFiles, budget := fitNewestFirst(fileFrags, budget)
	historyText, _ := fitHistory(historyFrag, budget)

	var b strings.Builder
	b.WriteString(personaFrag.Text)
	if len(fitFiles) > 0 {
		b.WriteString("\n\n")
		for i, f := range fitFiles {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(f.Text)
		}
	}
	if historyText != "" {
		b.WriteString("\n\n")
		b.WriteString(historyText)
	}
	return b.String(), nil
}

// buildFileFragments resolves every attachment across messages to a
// File+Version, building one fragment per (file_id, version_id), deduped
// keeping the latest occurrence, and silently omitting files from a
// different workspace (workspace isolation).
func (a *Assembler) buildFileFragments(ctx context.Context, workspaceID string, messages []domain.ChatMessage, tokenBudget int) []Fragment {
	type key struct{ fileID, versionID string }
	seen := make(map[key]int) // key -> index in frags, keeping the latest occurrence
	var frags []Fragment

	for pos, m := range messages {
		for _, att := range m.Metadata.Attachments {
			file, version, err := a.resolveAttachment(ctx, workspaceID, att)
			if err != nil || file == nil {
				continue
			}
			if file.WorkspaceID != workspaceID {
				continue // workspace isolation
			}
			k := key{file.ID, version.ID}
			var text string
			if isImagePath(file.Path) {
				text = describeImage(file.Path, version.Content)
			} else {
				text = fmt.Sprintf("<file_context>File: %s\n%s</file_context>", file.Path, string(version.Content))
			}
			text = capFileFragment(text, tokenBudget)
			frag := Fragment{Region: "file_context", Text: text, Priority: PriorityHigh, Position: pos}
			if idx, ok := seen[k]; ok {
				frags[idx] = frag // keep latest occurrence
				continue
			}
			seen[k] = len(frags)
			frags = append(frags, frag)
		}
	}
	return frags
}

const fragmentTruncationMark = "\n[truncated]</file_context>"

// capFileFragment bounds a single file fragment to half the total token
// budget so one huge attachment can still appear (truncated from the tail)
// instead of being skipped whole, while never starving the history region.
func capFileFragment(text string, tokenBudget int) string {
	maxChars := tokenBudget / 2 * charsPerToken
	if maxChars <= len(fragmentTruncationMark) || len(text) <= maxChars {
		return text
	}
	return text[:maxChars-len(fragmentTruncationMark)] + fragmentTruncationMark
}

func (a *Assembler) resolveAttachment(ctx context.Context, workspaceID string, att domain.Attachment) (*domain.File, *domain.FileVersion, error) {
	file, err := a.files.ResolveByID(ctx, workspaceID, att.FileID)
	if err != nil {
		return nil, nil, err
	}
	if att.VersionID != nil {
		version, err := a.files.ReadVersion(ctx, file, *att.VersionID)
		if err != nil {
			return nil, nil, err
		}
		return file, version, nil
	}
	_, version, err := a.files.ReadContent(ctx, file)
	if err != nil {
		return nil, nil, err
	}
	return file, version, nil
}

func buildHistoryFragment(messages []domain.ChatMessage) Fragment {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(roleLabel(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return Fragment{Region: "history", Text: b.String(), Priority: PriorityMedium}
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return "User"
	case domain.RoleAssistant:
		return "Assistant"
	case domain.RoleSystem:
		return "System"
	case domain.RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// fitNewestFirst greedily includes high-priority fragments newest first
// (ties broken by position), stopping once budget is exhausted.
func fitNewestFirst(frags []Fragment, budget int) ([]Fragment, int) {
	sorted := append([]Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position > sorted[j].Position })

	var out []Fragment
	for _, f := range sorted {
		cost := estimateTokens(f.Text)
		if cost > budget {
			continue
		}
		out = append(out, f)
		budget -= cost
	}
	// Restore chat order for readability in the final prompt.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, budget
}

// fitHistory includes the history fragment whole if it fits; otherwise
// truncates from the oldest end (the start of the text) until it fits.
func fitHistory(frag Fragment, budget int) (string, int) {
	if frag.Text == "" || budget <= 0 {
		return "", budget
	}
	if estimateTokens(frag.Text) <= budget {
		return frag.Text, budget - estimateTokens(frag.Text)
	}

	maxChars := budget * charsPerToken
	lines := strings.Split(frag.Text, "\n")
	// Drop oldest lines (from the front) until the remainder fits.
	for len(lines) > 0 && estimateTokens(strings.Join(lines, "\n")) > budget {
		lines = lines[1:]
	}
	text := strings.Join(lines, "\n")
	if len(text) > maxChars {
		text = text[len(text)-maxChars:]
	}
	return text, 0
}
