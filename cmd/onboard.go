package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawdesk/clawbench/internal/config"
)

// providerDefaults pairs a provider name with its default base URL and
// model, so onboarding only has to ask for the part a user actually knows:
// which provider and which API key env var to export.
var providerDefaults = map[string]struct{ BaseURL, Model, EnvKey string }{
	"openai":     {"https://api.openai.com/v1", "gpt-4o-mini", "CLAWBENCH_PROVIDER_OPENAI_KEY"},
	"openrouter": {"https://openrouter.ai/api/v1", "openai/gpt-4o-mini", "CLAWBENCH_PROVIDER_OPENROUTER_KEY"},
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	fmt.Println("clawbench setup")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	provider := prompt(reader, "Model provider [openai/openrouter]", "openai")
	defaults, ok := providerDefaults[provider]
	if !ok {
		return fmt.Errorf("onboard: unknown provider %q", provider)
	}
	model := prompt(reader, fmt.Sprintf("Default model [%s]", defaults.Model), defaults.Model)
	addr := prompt(reader, "HTTP listen address", ":8080")

	cfg := &config.Config{
		BlobStore: config.BlobStoreConfig{Backend: "local", LocalRoot: "./data/blobs"},
		Providers: []config.ProviderConfig{
			{Name: provider, BaseURL: defaults.BaseURL, Default: model},
		},
		Agents: config.AgentsConfig{
			Persona:               "You are a careful, workspace-scoped coding assistant.",
			TokenBudget:           4000,
			HeartbeatSeconds:      20,
			InactivityTimeoutSecs: 600,
			MailboxSize:           32,
			BroadcastBufferSize:   256,
			DefaultProvider:       provider,
		},
		Sessions: config.SessionCleanupConfig{IntervalSecs: 30, StaleThreshold: 120},
		Tracing:  config.TracingConfig{ServiceName: "clawbench"},
		HTTP:     config.HTTPConfig{Addr: addr, AccessTokenTTLSec: 900},
		Auth:     config.AuthConfig{RefreshTokenTTLSec: 2_592_000},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("onboard: marshal config: %w", err)
	}
	path := resolveConfigPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("onboard: write %s: %w", path, err)
	}

	fmt.Println()
	fmt.Printf("Wrote %s.\n", path)
	fmt.Println()
	fmt.Println("Before running `clawbench serve`, export the required secrets:")
	fmt.Printf("  export %s=<your-%s-api-key>\n", defaults.EnvKey, provider)
	fmt.Println("  export CLAWBENCH_DATABASE_DSN=postgres://...")
	fmt.Println("  export CLAWBENCH_AUTH_SECRET=<random-32-byte-secret>")
	return nil
}

func prompt(r *bufio.Reader, label, fallback string) string {
	fmt.Printf("%s: ", label)
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	return line
}
