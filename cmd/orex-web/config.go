package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/belkagoyda/orex-workspace/internal/web/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s (tls: %v)\n", cfg.Server.ListenAddr, cfg.Server.TLS.Enabled)
	fmt.Printf("  Business database: %s\n", cfg.Database.Driver)
	fmt.Printf("  Operator database: %s\n", cfg.AppDB.Path)
	fmt.Printf("  Gate store: %s\n", cfg.Gate.Store)
	if cfg.Gate.Store == "bolt" {
		fmt.Printf("    - %s\n", cfg.Gate.BoltPath)
	} else {
		fmt.Printf("    - allow-list: %s\n", cfg.Gate.AllowList)
		fmt.Printf("    - deny-list: %s\n", cfg.Gate.DenyList)
	}
	fmt.Printf("  Audit log: %s\n", cfg.Gate.AuditLog)
	fmt.Printf("  Max attempts: %d\n", cfg.Gate.MaxAttempts)
	fmt.Printf("  Exact allow-list match: %v\n", cfg.Gate.ExactMatchEnabled())
	fmt.Printf("  Allowed browsers: %v\n", cfg.Gate.AllowedBrowsers)
	fmt.Printf("  Templates: %s\n", cfg.Templates.Dir)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}
