package tools

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/clawdesk/clawbench/internal/vfs"
)

// RegisterFilesystemTools wires ls/read/read_multiple_files/write/edit/rm/
// mv/touch/mkdir/file_info against store. Every tool receives workspaceID
// from inv.WorkspaceID only. Argument paths are normalized and never
// trusted to carry workspace scope themselves, and every access routes
// through vfs.Store rather than raw os calls.
func RegisterFilesystemTools(reg *Registry, store vfs.Store) {
	reg.Register(Definition{
		Name:        ToolLs,
		Description: "List folder entries: name, kind, size, updated_at.",
		Schema: schema(props{
			"path":      strProp("Folder path to list."),
			"recursive": boolProp("List recursively. Default false."),
		}, nil),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			recursive := argBool(inv.Args, "recursive", false)
			entries, err := store.List(ctx, inv.WorkspaceID, path, recursive)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult(renderListing(entries), entries), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolRead,
		Description: "Read a file's latest content, optionally a line slice. Returns total_lines and a content hash usable as edit's last_read_hash.",
		Schema: schema(props{
			"path":   strProp("File path."),
			"offset": intProp("Line offset; negative means from end."),
			"limit":  intProp("Max lines to return."),
		}, []string{"path"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			return readOne(ctx, store, inv.WorkspaceID, inv.Args)
		},
	})

	reg.Register(Definition{
		Name:        ToolReadMultipleFiles,
		Description: "Batched read; each path succeeds or fails independently.",
		Schema: schema(props{
			"paths": arrProp("Paths to read."),
		}, []string{"paths"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			paths, err := argStringSlice(inv.Args, "paths")
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			type entry struct {
				Path   string `json:"path"`
				OK     bool   `json:"ok"`
				Text   string `json:"text,omitempty"`
				Error  string `json:"error,omitempty"`
			}
			out := make([]entry, 0, len(paths))
			for _, p := range paths {
				res, rerr := readOne(ctx, store, inv.WorkspaceID, map[string]any{"path": p})
				if rerr != nil || res.IsError {
					msg := ""
					if rerr != nil {
						msg = rerr.Error()
					} else {
						msg = res.Err
					}
					out = append(out, entry{Path: p, OK: false, Error: msg})
					continue
				}
				out = append(out, entry{Path: p, OK: true, Text: res.ForLLM})
			}
			return NewResult(renderBatch(out), out), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolWrite,
		Description: "Create or version a file; auto-creates parent folders. Rejected on folders and virtual files.",
		Schema: schema(props{
			"path":    strProp("File path."),
			"content": strProp("New file content."),
		}, []string{"path", "content"}),
		Mutates: true,
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if existing, rerr := store.Resolve(ctx, inv.WorkspaceID, path); rerr == nil && existing.IsVirtual {
				return ErrorResult("cannot write to a virtual file"), nil
			}
			content, err := argString(inv.Args, "content", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			file, version, err := store.Write(ctx, inv.WorkspaceID, path, []byte(content), inv.UserID)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult("wrote "+file.Path+" (hash "+version.Hash+")", map[string]any{
				"path": file.Path, "file_id": file.ID, "version_id": version.ID, "hash": version.Hash,
			}), nil
		},
	})

	reg.Register(Definition{
		Name: ToolEdit,
		Description: "Apply a Replace({old,new}) or Insert({insert_line,insert_content}) edit. " +
			"last_read_hash turns it into a compare-and-swap against Conflict.",
		Schema: schema(props{
			"path":           strProp("File path."),
			"old":            strProp("Exact text to replace; must match exactly once."),
			"new":            strProp("Replacement text."),
			"insert_line":    intProp("0-indexed line to insert before."),
			"insert_content": strProp("Content to insert."),
			"last_read_hash": strProp("Expected current hash for CAS."),
		}, []string{"path"}),
		Mutates: true,
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if existing, rerr := store.Resolve(ctx, inv.WorkspaceID, path); rerr == nil {
				if existing.IsVirtual {
					return ErrorResult("cannot edit a virtual file"), nil
				}
				if existing.IsFolder() {
					return ErrorResult("cannot edit a folder"), nil
				}
			}

			old, _ := argString(inv.Args, "old", false)
			newText, _ := argString(inv.Args, "new", false)
			insertContent, hasInsert := inv.Args["insert_content"]
			lastHash, _ := argString(inv.Args, "last_read_hash", false)

			var op vfs.EditOp
			if hasInsert {
				content, _ := insertContent.(string)
				op = vfs.EditOp{InsertLine: argInt(inv.Args, "insert_line", 0), InsertContent: content}
			} else {
				if old == "" {
					return ErrorResult("edit requires either {old,new} or {insert_line,insert_content}"), nil
				}
				op = vfs.EditOp{IsReplace: true, Old: old, New: newText}
			}

			version, err := store.Edit(ctx, inv.WorkspaceID, path, op, inv.UserID, lastHash)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult("edited "+path+" (hash "+version.Hash+")", map[string]any{
				"path": path, "version_id": version.ID, "hash": version.Hash,
			}), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolRm,
		Description: "Soft-delete a file.",
		Schema:      schema(props{"path": strProp("File path.")}, []string{"path"}),
		Mutates:     true,
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if existing, rerr := store.Resolve(ctx, inv.WorkspaceID, path); rerr == nil && existing.IsVirtual {
				return ErrorResult("cannot remove a virtual file"), nil
			}
			if err := store.Rm(ctx, inv.WorkspaceID, path); err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult("removed "+path, nil), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolMv,
		Description: "Atomically rename/move a file; fails if destination exists.",
		Schema: schema(props{
			"src": strProp("Source path."),
			"dst": strProp("Destination path."),
		}, []string{"src", "dst"}),
		Mutates: true,
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			src, err := argString(inv.Args, "src", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			dst, err := argString(inv.Args, "dst", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if existing, rerr := store.Resolve(ctx, inv.WorkspaceID, src); rerr == nil && existing.IsVirtual {
				return ErrorResult("cannot move a virtual file"), nil
			}
			file, err := store.Mv(ctx, inv.WorkspaceID, src, dst)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult("moved to "+file.Path, file), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolTouch,
		Description: "Create an empty file if absent, else update its mtime.",
		Schema:      schema(props{"path": strProp("File path.")}, []string{"path"}),
		Mutates:     true,
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if existing, rerr := store.Resolve(ctx, inv.WorkspaceID, path); rerr == nil && existing.IsVirtual {
				return ErrorResult("cannot touch a virtual file"), nil
			}
			file, err := store.Touch(ctx, inv.WorkspaceID, path)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult("touched "+file.Path, file), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolMkdir,
		Description: "Idempotently create a folder including its ancestors.",
		Schema:      schema(props{"path": strProp("Folder path.")}, []string{"path"}),
		Mutates:     true,
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			file, err := store.Mkdir(ctx, inv.WorkspaceID, path)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			return NewResult("created "+file.Path, file), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolFileInfo,
		Description: "Metadata plus latest-version hash and size.",
		Schema:      schema(props{"path": strProp("File path.")}, []string{"path"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			path, err := argString(inv.Args, "path", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			file, err := store.Resolve(ctx, inv.WorkspaceID, path)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			info := map[string]any{
				"path": file.Path, "type": file.Type, "is_virtual": file.IsVirtual,
				"permission": file.Permission, "updated_at": file.UpdatedAt,
			}
			if !file.IsFolder() {
				if _, v, err := store.ReadContent(ctx, file); err == nil {
					info["hash"] = v.Hash
					info["size"] = len(v.Content)
				}
			}
			return NewResult(renderFileInfo(info), info), nil
		},
	})
}

func readOne(ctx context.Context, store vfs.Store, workspaceID string, args map[string]any) (Result, error) {
	path, err := argString(args, "path", true)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	file, err := store.Resolve(ctx, workspaceID, path)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	if file.IsFolder() {
		return ErrorResult("cannot read content of a folder; use ls"), nil
	}
	content, version, err := store.ReadContent(ctx, file)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	lines := strings.Split(string(content), "\n")
	totalLines := len(lines)
	offset := argInt(args, "offset", 0)
	limit := argInt(args, "limit", 0)
	lines = sliceLines(lines, offset, limit)

	text := strings.Join(lines, "\n")
	return NewResult(text, map[string]any{
		"content":     text,
		"total_lines": totalLines,
		"hash":        version.Hash,
	}), nil
}

func sliceLines(lines []string, offset, limit int) []string {
	n := len(lines)
	start := offset
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	return lines[start:end]
}

func renderListing(entries []vfs.FileEntry) string {
	var b bytes.Buffer
	for _, e := range entries {
		kind := "file"
		if e.File.IsFolder() {
			kind = "folder"
		}
		fmt.Fprintf(&b, "%s\t%s\t%d\n", e.File.Name, kind, e.Size)
	}
	return b.String()
}

func renderFileInfo(info map[string]any) string {
	var b bytes.Buffer
	for _, k := range []string{"path", "type", "size", "hash", "updated_at"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}
	return b.String()
}

func renderBatch(entries any) string {
	// batch tools return a structured ForUser payload; the prose form is
	// assembled per-entry by readOne for successes, so there is nothing
	// additional to render here for the model-facing text.
	return fmt.Sprintf("%v", entries)
}
