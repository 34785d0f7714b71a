// Copyright 2025 The Mongowire Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package command implements the scramcheck CLI commands.
package command

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// GetRootCommand creates and returns the root command for scramcheck with
// all subcommands.
func GetRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "scramcheck",
		Short: "Exercise SCRAM authentication conversations against an in-process server",
		Long: `scramcheck runs the client side of a SCRAM authentication conversation
against a built-in server seeded with the same credentials, so mechanism
behavior, iteration counts, and username escaping can be inspected without a
running deployment.

Configuration:
  Flags may also be supplied through a YAML config file (--config-file) or
  environment variables with the SCRAMCHECK_ prefix; flags take precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Silence usage for application errors, but allow it for flag
			// errors; this runs after flag parsing.
			cmd.SilenceUsage = true
			return loadConfig(cmd)
		},
	}

	root.PersistentFlags().String("username", "user", "Username to authenticate as")
	root.PersistentFlags().String("password", "", "Password to authenticate with (required)")
	root.PersistentFlags().String("mechanism", "SCRAM-SHA-256", "SASL mechanism (SCRAM-SHA-1 or SCRAM-SHA-256)")
	root.PersistentFlags().Int("iterations", 4096, "PBKDF2 iteration count the server advertises")
	root.PersistentFlags().String("source", "admin", "Authentication database")
	root.PersistentFlags().Bool("skip-empty-exchange", true, "Whether the server honors skipEmptyExchange")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("config-file", "", "YAML config file with flag values")

	root.AddCommand(conversationCommand())
	root.AddCommand(speculativeCommand())

	return root
}

// loadConfig wires viper under the command flags: explicit flags win, then
// environment variables (SCRAMCHECK_ prefix), then the config file.
func loadConfig(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix("SCRAMCHECK")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return fmt.Errorf("failed to get config-file flag: %w", err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// Copy resolved values back onto flags the subcommands read.
	var flagErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil && flagErr == nil {
			flagErr = err
		}
	})
	return flagErr
}

// newLogger builds the structured logger the subcommands log through.
func newLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
