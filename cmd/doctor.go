package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/clawdesk/clawbench/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("clawbench doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults, no file found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.DSN == "" {
		fmt.Println("    Status:      CLAWBENCH_DATABASE_DSN not set")
	} else {
		db, dbErr := sql.Open("pgx", cfg.Database.DSN)
		if dbErr != nil {
			fmt.Printf("    Status:      CONNECT FAILED (%s)\n", dbErr)
		} else {
			defer db.Close()
			if pingErr := db.Ping(); pingErr != nil {
				fmt.Printf("    Status:      CONNECT FAILED (%s)\n", pingErr)
			} else {
				fmt.Println("    Status:      OK")
			}
		}
	}

	fmt.Println()
	fmt.Println("  Auth:")
	if cfg.Auth.Secret == "" {
		fmt.Println("    Secret:      CLAWBENCH_AUTH_SECRET not set")
	} else {
		fmt.Println("    Secret:      configured")
	}

	fmt.Println()
	fmt.Println("  Model providers:")
	if len(cfg.Providers) == 0 {
		fmt.Println("    (none configured)")
	}
	for _, p := range cfg.Providers {
		status := "missing API key"
		if p.APIKey != "" {
			status = "key present"
		}
		def := ""
		if p.Name == cfg.Agents.DefaultProvider {
			def = " (default)"
		}
		fmt.Printf("    %-12s %s%s\n", p.Name+":", status, def)
	}

	fmt.Println()
	fmt.Println("  Blob store:")
	fmt.Printf("    Backend:     %s\n", cfg.BlobStore.Backend)
}
