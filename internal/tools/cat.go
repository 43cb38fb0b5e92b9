package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/clawdesk/clawbench/internal/vfs"
)

const maxCatFiles = 20

var squeezeBlankRe = regexp.MustCompile(`\n{3,}`)

// RegisterCatTool wires cat, matching the Unix cat flag set: -n
// (number_lines), -E ($ line ends), -T (tabs as ^I), -s (squeeze_blank).
func RegisterCatTool(reg *Registry, store vfs.Store) {
	reg.Register(Definition{
		Name: ToolCat,
		Description: "Concatenate up to 20 files with Unix cat-style formatting. " +
			"Line numbers reflect true file position when offset is used.",
		Schema: schema(props{
			"paths":         arrProp("Files to concatenate, max 20."),
			"show_headers":  boolProp("Print a '==> path <==' header per file."),
			"number_lines":  boolProp("Prefix each line with its line number."),
			"show_ends":     boolProp("Append $ at end of each line."),
			"show_tabs":     boolProp("Render tabs as ^I."),
			"squeeze_blank": boolProp("Collapse runs of blank lines to one."),
			"offset":        intProp("Line offset; negative means from end."),
			"limit":         intProp("Max lines per file."),
		}, []string{"paths"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			paths, err := argStringSlice(inv.Args, "paths")
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			if len(paths) > maxCatFiles {
				return ErrorResult(fmt.Sprintf("cat accepts at most %d files, got %d", maxCatFiles, len(paths))), nil
			}

			opts := catOptions{
				showHeaders:  argBool(inv.Args, "show_headers", len(paths) > 1),
				numberLines:  argBool(inv.Args, "number_lines", false),
				showEnds:     argBool(inv.Args, "show_ends", false),
				showTabs:     argBool(inv.Args, "show_tabs", false),
				squeezeBlank: argBool(inv.Args, "squeeze_blank", false),
				offset:       argInt(inv.Args, "offset", 0),
				limit:        argInt(inv.Args, "limit", 0),
			}

			type entry struct {
				Path  string `json:"path"`
				OK    bool   `json:"ok"`
				Text  string `json:"text,omitempty"`
				Error string `json:"error,omitempty"`
			}

			var b strings.Builder
			entries := make([]entry, 0, len(paths))
			for _, p := range paths {
				file, rerr := store.Resolve(ctx, inv.WorkspaceID, p)
				if rerr != nil {
					entries = append(entries, entry{Path: p, Error: rerr.Error()})
					continue
				}
				if file.IsFolder() {
					entries = append(entries, entry{Path: p, Error: "cannot cat a folder"})
					continue
				}
				content, _, rerr := store.ReadContent(ctx, file)
				if rerr != nil {
					entries = append(entries, entry{Path: p, Error: rerr.Error()})
					continue
				}
				formatted := formatCat(string(content), opts)
				if opts.showHeaders {
					fmt.Fprintf(&b, "==> %s <==\n", p)
				}
				b.WriteString(formatted)
				b.WriteString("\n")
				entries = append(entries, entry{Path: p, OK: true, Text: formatted})
			}
			return NewResult(b.String(), entries), nil
		},
	})
}

type catOptions struct {
	showHeaders, numberLines, showEnds, showTabs, squeezeBlank bool
	offset, limit                                              int
}

func formatCat(content string, opts catOptions) string {
	lines := strings.Split(content, "\n")
	baseLineNo := opts.offset
	if baseLineNo < 0 {
		baseLineNo = len(lines) + baseLineNo
	}
	if baseLineNo < 0 {
		baseLineNo = 0
	}
	sliced := sliceLines(lines, opts.offset, opts.limit)

	if opts.squeezeBlank {
		joined := strings.Join(sliced, "\n")
		joined = squeezeBlankRe.ReplaceAllString(joined, "\n\n")
		sliced = strings.Split(joined, "\n")
	}

	var b strings.Builder
	for i, line := range sliced {
		if opts.showTabs {
			line = strings.ReplaceAll(line, "\t", "^I")
		}
		if opts.numberLines {
			fmt.Fprintf(&b, "%6d\t", baseLineNo+i+1)
		}
		b.WriteString(line)
		if opts.showEnds {
			b.WriteString("$")
		}
		if i != len(sliced)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
