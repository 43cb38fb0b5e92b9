package tools

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/clawdesk/clawbench/internal/vfs"
)

// RegisterGlobAndFindTools wires glob and find as pure in-process catalog
// walkers: no shell-out to the host `find` binary, which eliminates the
// GNU/BSD flag portability concern entirely.
func RegisterGlobAndFindTools(reg *Registry, store vfs.Store) {
	reg.Register(Definition{
		Name:        ToolGlob,
		Description: "Filename discovery within the workspace via a glob pattern.",
		Schema:      schema(props{"pattern": strProp("Glob pattern, matched against full normalized path.")}, []string{"pattern"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			pattern, err := argString(inv.Args, "pattern", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			entries, err := store.List(ctx, inv.WorkspaceID, "/", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			var matched []string
			for _, e := range entries {
				if ok, _ := filepath.Match(pattern, e.File.Path); ok {
					matched = append(matched, e.File.Path)
				}
			}
			return NewResult(strings.Join(matched, "\n"), matched), nil
		},
	})

	reg.Register(Definition{
		Name: ToolFind,
		Description: "Metadata-filtered discovery within the workspace: name, path prefix, file_type, min_size, max_size.",
		Schema: schema(props{
			"name":      strProp("Substring to match against file name."),
			"path":      strProp("Path prefix to restrict the search to."),
			"file_type": strProp("Restrict to one file_type (folder, document, chat, plan, canvas, other)."),
			"min_size":  intProp("Minimum content size in bytes."),
			"max_size":  intProp("Maximum content size in bytes."),
			"recursive": boolProp("Recurse into subfolders. Default true."),
		}, nil),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			root, _ := argString(inv.Args, "path", false)
			if root == "" {
				root = "/"
			}
			recursive := argBool(inv.Args, "recursive", true)
			name, _ := argString(inv.Args, "name", false)
			fileType, _ := argString(inv.Args, "file_type", false)
			minSize := argInt(inv.Args, "min_size", -1)
			maxSize := argInt(inv.Args, "max_size", -1)

			entries, err := store.List(ctx, inv.WorkspaceID, root, recursive)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			var out []vfs.FileEntry
			for _, e := range entries {
				if name != "" && !strings.Contains(e.File.Name, name) {
					continue
				}
				if fileType != "" && string(e.File.Type) != fileType {
					continue
				}
				if minSize >= 0 && e.Size < int64(minSize) {
					continue
				}
				if maxSize >= 0 && e.Size > int64(maxSize) {
					continue
				}
				out = append(out, e)
			}
			return NewResult(renderListing(out), out), nil
		},
	})
}
