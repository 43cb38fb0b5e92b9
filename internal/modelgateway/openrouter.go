package modelgateway

import "net/http"

// OpenRouterCompatible wraps OpenAICompatible with OpenRouter's base URL
// and the extra attribution headers it expects: an OpenAI-compatible wire
// format under a distinct provider name.
type OpenRouterCompatible struct {
	*OpenAICompatible
	appTitle string
}

func NewOpenRouterCompatible(baseURL, apiKey, defaultModel, appTitle string, client httpDoer) *OpenRouterCompatible {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	inner := NewOpenAICompatible("openrouter", baseURL, apiKey, defaultModel, &attributedClient{
		base:     client,
		appTitle: appTitle,
	})
	return &OpenRouterCompatible{OpenAICompatible: inner, appTitle: appTitle}
}

// attributedClient injects OpenRouter's recommended attribution headers on
// every request without the OpenAICompatible transport needing to know
// about them.
type attributedClient struct {
	base     httpDoer
	appTitle string
}

func (c *attributedClient) Do(req *http.Request) (*http.Response, error) {
	if c.appTitle != "" {
		req.Header.Set("X-Title", c.appTitle)
	}
	base := c.base
	if base == nil {
		base = http.DefaultClient
	}
	return base.Do(req)
}
