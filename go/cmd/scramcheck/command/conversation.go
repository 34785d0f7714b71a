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

package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mongowire/mongowire/go/common/fakemongodb"
	"github.com/mongowire/mongowire/go/common/mongoprotocol/auth"
	"github.com/mongowire/mongowire/go/common/mongoprotocol/scram"
)

func conversationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conversation",
		Short: "Run a full SCRAM conversation (saslStart + saslContinue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, false)
		},
	}
}

// checkOptions are the resolved flag values shared by the subcommands.
type checkOptions struct {
	username          string
	password          string
	mechanism         scram.Mechanism
	iterations        int
	source            string
	skipEmptyExchange bool
}

func resolveOptions(cmd *cobra.Command) (*checkOptions, error) {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	mechanismName, _ := cmd.Flags().GetString("mechanism")
	iterations, _ := cmd.Flags().GetInt("iterations")
	source, _ := cmd.Flags().GetString("source")
	skip, _ := cmd.Flags().GetBool("skip-empty-exchange")

	if password == "" {
		return nil, fmt.Errorf("--password is required (flag, SCRAMCHECK_PASSWORD, or config file)")
	}

	mechanism := scram.Mechanism(mechanismName)
	if mechanism != scram.ScramSHA1Mechanism && mechanism != scram.ScramSHA256Mechanism {
		return nil, fmt.Errorf("unsupported mechanism %q", mechanismName)
	}

	return &checkOptions{
		username:          username,
		password:          password,
		mechanism:         mechanism,
		iterations:        iterations,
		source:            source,
		skipEmptyExchange: skip,
	}, nil
}

// runCheck authenticates against the in-process server and logs the shape of
// the conversation. Passwords and derived keys are never logged.
func runCheck(cmd *cobra.Command, speculative bool) error {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	server := fakemongodb.NewServer(opts.username, opts.password)
	server.Iterations = opts.iterations
	server.SkipEmptyExchange = opts.skipEmptyExchange

	authenticator, err := auth.NewScramAuthenticator(opts.mechanism, &auth.Credential{
		Username: opts.username,
		Password: opts.password,
		Source:   opts.source,
	})
	if err != nil {
		logger.Error("failed to create authenticator", "error", err)
		return err
	}

	logger.Info("starting conversation",
		"mechanism", authenticator.Name(),
		"username", opts.username,
		"iterations", opts.iterations,
		"speculative", speculative,
	)

	cfg := &auth.Config{Connection: server, Logger: logger}
	if speculative {
		if err := prepareSpeculative(authenticator, server, cfg, logger); err != nil {
			return err
		}
	}

	if err := authenticator.Auth(context.Background(), cfg); err != nil {
		logger.Error("authentication failed", "error", err)
		return err
	}

	logger.Info("authentication succeeded",
		"sasl_start_commands", server.StartCount(),
		"sasl_continue_commands", server.ContinueCount(),
	)
	return nil
}

// prepareSpeculative embeds the first message into a handshake and feeds the
// server's handshake response into the config.
func prepareSpeculative(authenticator *auth.ScramAuthenticator, server *fakemongodb.Server, cfg *auth.Config, logger *slog.Logger) error {
	handshake, _, err := authenticator.PrepareHandshake(helloCommand())
	if err != nil {
		logger.Error("failed to prepare handshake", "error", err)
		return err
	}

	response, err := server.Handshake(handshake)
	if err != nil {
		logger.Error("handshake failed", "error", err)
		return err
	}
	logger.Debug("handshake completed with speculative payload")

	cfg.HandshakeResponse = response
	return nil
}
