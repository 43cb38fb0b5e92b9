package tools

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/clawdesk/clawbench/internal/vfs"
)

const defaultGrepLimit = 50

type grepMatch struct {
	Path          string   `json:"path"`
	LineNo        int      `json:"line_no"`
	Line          string   `json:"line"`
	BeforeContext []string `json:"before_context,omitempty"`
	AfterContext  []string `json:"after_context,omitempty"`
}

// RegisterGrepTool wires grep: regex search over file contents within the
// workspace, default cap 50 matches ("limit:0" unlimited), context lines
// returned as arrays per match.
func RegisterGrepTool(reg *Registry, store vfs.Store) {
	reg.Register(Definition{
		Name:        ToolGrep,
		Description: "Regex search over file contents within the workspace. Default cap 50 matches; limit:0 is unlimited.",
		Schema: schema(props{
			"pattern":        strProp("Regular expression to search for."),
			"path_pattern":   strProp("Optional glob restricting which paths are searched."),
			"context":        intProp("Lines of context on both sides of each match."),
			"before_context": intProp("Lines of context before each match."),
			"after_context":  intProp("Lines of context after each match."),
			"limit":          intProp("Max matches; 0 means unlimited. Default 50."),
		}, []string{"pattern"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			pattern, err := argString(inv.Args, "pattern", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return ErrorResult("invalid regex: " + err.Error()), nil
			}
			pathPattern, _ := argString(inv.Args, "path_pattern", false)

			ctxLines := argInt(inv.Args, "context", 0)
			before := argInt(inv.Args, "before_context", ctxLines)
			after := argInt(inv.Args, "after_context", ctxLines)
			limit := argInt(inv.Args, "limit", defaultGrepLimit)

			entries, err := store.List(ctx, inv.WorkspaceID, "/", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}

			var matches []grepMatch
			for _, e := range entries {
				if e.File.IsFolder() {
					continue
				}
				if pathPattern != "" {
					if ok, _ := filepath.Match(pathPattern, e.File.Path); !ok {
						continue
					}
				}
				content, _, rerr := store.ReadContent(ctx, &e.File)
				if rerr != nil {
					continue
				}
				lines := strings.Split(string(content), "\n")
				for i, line := range lines {
					if !re.MatchString(line) {
						continue
					}
					m := grepMatch{Path: e.File.Path, LineNo: i + 1, Line: line}
					if before > 0 {
						start := i - before
						if start < 0 {
							start = 0
						}
						m.BeforeContext = append([]string{}, lines[start:i]...)
					}
					if after > 0 {
						end := i + 1 + after
						if end > len(lines) {
							end = len(lines)
						}
						m.AfterContext = append([]string{}, lines[i+1:end]...)
					}
					matches = append(matches, m)
					if limit > 0 && len(matches) >= limit {
						break
					}
				}
				if limit > 0 && len(matches) >= limit {
					break
				}
			}

			return NewResult(renderGrep(matches), matches), nil
		},
	})
}

func renderGrep(matches []grepMatch) string {
	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m.Path)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(m.LineNo))
		b.WriteString(": ")
		b.WriteString(m.Line)
		b.WriteString("\n")
	}
	return b.String()
}

