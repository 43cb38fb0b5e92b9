package tools

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// RegisterWebTools wires web_fetch/web_search as explicitly best-effort,
// non-core tools: excluded from the hard-guarantee
// invariants, backed by net/http plus a minimal HTML-to-text reducer
// rather than a headless browser.
func RegisterWebTools(reg *Registry, httpClient *http.Client) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	reg.Register(Definition{
		Name:        ToolWebFetch,
		Description: "Best-effort fetch of a URL, reduced to plain text. Not part of the hard-guarantee tool set.",
		Schema:      schema(props{"url": strProp("URL to fetch.")}, []string{"url"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			url, err := argString(inv.Args, "url", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return ErrorResult("fetch failed: " + err.Error()), nil
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return ErrorResult("read body failed: " + err.Error()), nil
			}
			text := htmlToText(string(body))
			return NewResult(text, map[string]any{"url": url, "status": resp.StatusCode, "text": text}), nil
		},
	})

	reg.Register(Definition{
		Name:        ToolWebSearch,
		Description: "Best-effort web search via a text-based search endpoint. Brittle by nature; not part of the hard-guarantee tool set.",
		Schema:      schema(props{"query": strProp("Search query.")}, []string{"query"}),
		Run: func(ctx context.Context, inv Invocation) (Result, error) {
			query, err := argString(inv.Args, "query", true)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				"https://lite.duckduckgo.com/lite/?q="+url.QueryEscape(query), nil)
			if err != nil {
				return ErrorResult(err.Error()), nil
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return ErrorResult("search failed: " + err.Error()), nil
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return ErrorResult("read body failed: " + err.Error()), nil
			}
			text := htmlToText(string(body))
			return NewResult(text, map[string]any{"query": query, "text": text}), nil
		},
	})
}

var (
	tagRe   = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	blankRe = regexp.MustCompile(`\n{3,}`)
)

func htmlToText(html string) string {
	text := tagRe.ReplaceAllString(html, "\n")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
