package tools

import (
	"context"
	"strings"

	"github.com/clawdesk/clawbench/internal/vfs"
)

// memoryRecord is the parsed shape of a memory file: a strict
// "---\nkey: value\n---\nbody" frontmatter block parsed once into a
// structured record.
type memoryRecord struct {
	Path      string `json:"path"`
	Title     string `json:"title,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Category  string `json:"category,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Body      string `json:"body,omitempty"`
}

func parseFrontmatter(path, content string) memoryRecord {
	rec := memoryRecord{Path: path}
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		rec.Body = content
		return rec
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		rec.Body = content
		return rec
	}
	for _, line := range lines[1:end] {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "title":
			rec.Title = val
		case "category":
			rec.Category = val
		case "updated_at":
			rec.UpdatedAt = val
		case "tags":
			val = strings.Trim(val, "[]")
			for _, t := range strings.Split(val, ",") {
				t = strings.Trim(strings.TrimSpace(t), `"'`)
				if t != "" {
					rec.Tags = append(rec.Tags, t)
				}
			}
		}
	}
	rec.Body = strings.Join(lines[end+1:], "\n")
	return rec
}

// RegisterMemoryTools wires memory_list/memory_read, scoped to
// memories/user/ and memories/global/ under the workspace.
func RegisterMemoryTools(reg *Registry, store vfs.Store) {
	reg.Register(Definition{
		Name:        ToolMemoryList,
		Description: "List memory files under memories/user/ or memories/global/ with parsed frontmatter.",
		Schema:      schema(props{"scope": strProp("'user' or 'global'. Default both.")}, nil),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			scope, _ := argString(inv.Args, "scope", false)
			scopes := []string{"user", "global"}
			if scope != "" {
				if scope != "user" && scope != "global" {
					return ErrorResult("scope must be 'user' or 'global'"), nil
				}
				scopes = []string{scope}
			}
			var recs []memoryRecord
			for _, sc := range scopes {
				entries, err := store.List(ctx, inv.WorkspaceID, "/memories/"+sc, true)
				if err != nil {
					continue
				}
				for _, e := range entries {
					if e.File.IsFolder() {
						continue
					}
					content, _, err := store.ReadContent(ctx, &e.File)
					if err != nil {
						continue
					}
					recs = append(recs, parseFrontmatter(e.File.Path, string(content)))
				}
			}
			var b strings.Builder
			for _, r := range recs {
				b.WriteString(r.Path)
				if r.Title != "" {
					b.WriteString(" — " + r.Title)
				}
				b.WriteString("\n")
			}
			return NewResult(b.String(), recs), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolMemoryRead,
		Description: "Read one memory file's parsed frontmatter and body.",
		Schema:      schema(props{"path": strProp("Memory file path.")}, []string{"path"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			norm := vfs.Normalize(path)
			if !strings.HasPrefix(norm, "/memories/user/") && !strings.HasPrefix(norm, "/memories/global/") {
				return ErrorResult("path must be under memories/user/ or memories/global/"), nil
			}
			file, err := store.Resolve(ctx, inv.WorkspaceID, path)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			content, _, err := store.ReadContent(ctx, file)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			rec := parseFrontmatter(path, string(content))
			return NewResult(rec.Body, rec), nil
		},
	})
}
