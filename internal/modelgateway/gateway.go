// Package modelgateway implements the Model Gateway: a uniform
// streaming-chat interface over one or more upstream providers.
package modelgateway

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/otelx"
)

// Message is one entry in a chat request sent to a provider.
type Message struct {
	Role    string
	Content string
	// ToolCallID links a RoleTool message back to the ToolCallRequest it answers.
	ToolCallID string
}

// ToolDefinition is the JSON-Schema shape of one tool, as surfaced to a
// provider's native tool-calling support.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is the provider-agnostic request shape built by the Chat Actor.
type ChatRequest struct {
	Model        string // bare model name, provider-specific (prefix already stripped)
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
}

// StreamItemKind enumerates the StreamItem variants.
type StreamItemKind string

const (
	ItemTextChunk       StreamItemKind = "text_chunk"
	ItemToolCallRequest StreamItemKind = "tool_call_request"
	ItemFinal           StreamItemKind = "final"
	ItemProviderError   StreamItemKind = "provider_error"
)

// Usage echoes capability/accounting fields back on Final.
type Usage struct {
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	CachedTokens      int
	SupportsReasoning bool
	SupportsToolCalls bool
}

// StreamItem is one pulled element of a ChatStream.
type StreamItem struct {
	Kind StreamItemKind

	Text string // ItemTextChunk

	ToolCallName string         // ItemToolCallRequest
	ToolCallArgs map[string]any // ItemToolCallRequest
	ToolCallID   string         // ItemToolCallRequest

	Usage Usage // ItemFinal

	ProviderErrKind errs.ProviderKind // ItemProviderError
	ProviderErrMsg  string
}

// ChatStream is a single-consumer, pullable, cancellable stream of
// StreamItems. Next blocks until an item is ready or ctx is cancelled; the
// caller "drops the receiver" simply by cancelling ctx and no longer
// calling Next.
type ChatStream interface {
	Next(ctx context.Context) (StreamItem, bool, error)
}

// Provider is one upstream chat model backend.
type Provider interface {
	Name() string
	DefaultModel() string
	ChatStream(ctx context.Context, req ChatRequest) (ChatStream, error)
}

// ParseModelID splits a "provider:model" identifier; a bare name resolves
// against defaultProvider. It does not check that the provider exists:
// Gateway.ChatStream rejects an unknown provider with a Validation error
// (there is no separate InvalidModel kind).
func ParseModelID(id, defaultProvider string) (provider, model string, err error) {
	if idx := strings.Index(id, ":"); idx >= 0 {
		return id[:idx], id[idx+1:], nil
	}
	if defaultProvider == "" {
		return "", "", errs.New(errs.Validation, "no default provider configured for bare model id")
	}
	return defaultProvider, id, nil
}

// Gateway is the provider registry + dispatch point the Chat Actor drives.
type Gateway struct {
	providers       map[string]Provider
	defaultProvider string
	limiter         *Limiters
}

func NewGateway(defaultProvider string, limiter *Limiters) *Gateway {
	return &Gateway{providers: make(map[string]Provider), defaultProvider: defaultProvider, limiter: limiter}
}

func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
}

// Validate enforces the startup contract: at least one provider
// configured and the default provider present.
func (g *Gateway) Validate() error {
	if len(g.providers) == 0 {
		return fmt.Errorf("modelgateway: no providers configured")
	}
	if _, ok := g.providers[g.defaultProvider]; !ok {
		return fmt.Errorf("modelgateway: default provider %q not registered", g.defaultProvider)
	}
	return nil
}

// ChatStream resolves modelID, applies the per-provider rate limiter, and
// opens a stream on the resolved provider.
func (g *Gateway) ChatStream(ctx context.Context, modelID string, req ChatRequest) (ChatStream, error) {
	providerName, model, err := ParseModelID(modelID, g.defaultProvider)
	if err != nil {
		return nil, err
	}
	p, ok := g.providers[providerName]
	if !ok {
		return nil, errs.Newf(errs.Validation, "unknown provider %q", providerName)
	}
	if g.limiter != nil && !g.limiter.Allow(providerName) {
		return nil, errs.NewProvider(errs.ProviderRateLimited, "local rate limit exceeded for provider "+providerName)
	}
	ctx, span := otelx.Tracer("gateway").Start(ctx, "provider.open_stream")
	span.SetAttributes(attribute.String("provider", providerName), attribute.String("model", model))
	defer span.End()

	req.Model = model
	return p.ChatStream(ctx, req)
}
