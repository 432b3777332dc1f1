// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarahliz0715/Tandril-sub000/internal/app"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tandril",
	Short: "Bulk mutation pipeline for commerce platforms",
	Long: `tandril previews, executes, and undoes bulk mutations against
commerce platform stores. Every change is diffed before it runs and
snapshotted so it can be reverted.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(cfgFile)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunMigrations(cfgFile, "up")
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [N]",
	Short: "Rollback N migrations (default: 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := "1"
		if len(args) > 0 {
			steps = args[0]
		}
		return app.RunMigrations(cfgFile, "down:"+steps)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.RunMigrations(cfgFile, "status")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		app.PrintVersion()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validation error: %w", err)
		}
		fmt.Println("Configuration is valid")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (sensitive values masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg.PrintMasked()
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a token encryption key",
	Long: `Generate a fresh AES-256 key for security.encryption_key.

The key encrypts platform access tokens at rest. Changing it after
connections exist makes their stored tokens unreadable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.GenerateEncryptionKey()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: /etc/tandril/config.yaml or ./config.yaml)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
