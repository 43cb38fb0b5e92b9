package modelgateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/clawdesk/clawbench/internal/errs"
)

// OpenAICompatible talks the OpenAI chat-completions streaming wire shape,
// hand-rolled over net/http + encoding/json (no vendor SDK), keeping the
// Gateway provider-agnostic.
// httpDoer is the minimal client dependency, satisfied by *http.Client and
// by OpenRouterCompatible's header-injecting wrapper.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OpenAICompatible struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	client       httpDoer
}

func NewOpenAICompatible(name, baseURL, apiKey, defaultModel string, client httpDoer) *OpenAICompatible {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAICompatible{name: name, baseURL: baseURL, apiKey: apiKey, defaultModel: defaultModel, client: client}
}

func (p *OpenAICompatible) Name() string         { return p.name }
func (p *OpenAICompatible) DefaultModel() string { return p.defaultModel }

type openAIChatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
	Tools    []openAITool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAICompatible) ChatStream(ctx context.Context, req ChatRequest) (ChatStream, error) {
	messages := make([]openAIChatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, openAIChatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID})
	}

	var tools []openAITool
	for _, t := range req.Tools {
		var tool openAITool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		tools = append(tools, tool)
	}

	body, err := json.Marshal(openAIRequest{Model: req.Model, Messages: messages, Tools: tools, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("modelgateway: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("modelgateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.NewProvider(errs.ProviderUnavailable, err.Error())
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, errs.NewProvider(errs.ProviderRateLimited, "provider rate limited the request")
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, errs.NewProvider(errs.ProviderProtocol, fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	return &openAISSEStream{scanner: bufio.NewScanner(resp.Body), closer: resp.Body}, nil
}

// openAISSEStream adapts an OpenAI-compatible "data: {...}" SSE body into
// the Gateway's pullable StreamItem sequence.
type openAISSEStream struct {
	scanner *bufio.Scanner
	closer  interface{ Close() error }
}

func (s *openAISSEStream) Next(ctx context.Context) (StreamItem, bool, error) {
	for {
		select {
		case <-ctx.Done():
			s.closer.Close()
			return StreamItem{}, false, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				s.closer.Close()
				return StreamItem{}, false, errs.NewProvider(errs.ProviderProtocol, err.Error())
			}
			s.closer.Close()
			return StreamItem{}, false, nil
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.closer.Close()
			return StreamItem{Kind: ItemFinal}, true, nil
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			return StreamItem{Kind: ItemFinal, Usage: Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}}, true, nil
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if len(delta.ToolCalls) > 0 {
			tc := delta.ToolCalls[0]
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			return StreamItem{Kind: ItemToolCallRequest, ToolCallName: tc.Function.Name, ToolCallArgs: args, ToolCallID: tc.ID}, true, nil
		}
		if delta.Content != "" {
			return StreamItem{Kind: ItemTextChunk, Text: delta.Content}, true, nil
		}
	}
}
