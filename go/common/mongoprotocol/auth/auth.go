// Copyright 2025 The Mongowire Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// defaultAuthSource is the authentication database used when a credential
// does not name one.
const defaultAuthSource = "admin"

// Credential is one set of authentication credentials, immutable per
// attempt.
type Credential struct {
	// Username is the authentication identity.
	Username string

	// Password is the cleartext password. It never leaves the process; only
	// proofs derived from it go on the wire.
	Password string

	// Source is the authentication database. Empty means "admin".
	Source string
}

// source returns the authentication database, applying the default.
func (c *Credential) source() string {
	if c.Source == "" {
		return defaultAuthSource
	}
	return c.Source
}

// Connection submits commands on behalf of an authentication attempt.
// Implementations own framing, timeouts, and the BSON transport; a timeout
// surfaces as an ordinary error from RunCommand.
type Connection interface {
	// RunCommand submits cmd to "<database>.$cmd" and returns the server's
	// reply document.
	RunCommand(ctx context.Context, database string, cmd bsoncore.Document) (bsoncore.Document, error)
}

// Config carries the per-attempt collaborators into Auth.
type Config struct {
	// Connection is the connection being authenticated.
	Connection Connection

	// HandshakeResponse is the server's reply to the connection handshake,
	// if the caller performed one. When it contains a speculativeAuthenticate
	// sub-document, the conversation consumes it and skips saslStart.
	HandshakeResponse bsoncore.Document

	// Logger receives the package's diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// Authenticator authenticates a connection.
type Authenticator interface {
	// Name returns the SASL mechanism name.
	Name() string

	// Auth authenticates the connection described by cfg.
	Auth(ctx context.Context, cfg *Config) error
}

// SpeculativeAuthenticator is an Authenticator whose first message can ride
// on the connection handshake, saving one round trip.
type SpeculativeAuthenticator interface {
	// CreateSpeculativeConversation starts a conversation whose first
	// message is embedded into the handshake by the caller.
	CreateSpeculativeConversation() (SpeculativeConversation, error)
}

// SpeculativeConversation is an authentication conversation that can be
// merged with the connection handshake.
//
// FirstMessage returns the command document to embed as the handshake's
// speculativeAuthenticate field. Finish consumes the server's reply to that
// message and conducts the remainder of the conversation.
type SpeculativeConversation interface {
	FirstMessage() (bsoncore.Document, error)
	Finish(ctx context.Context, cfg *Config, firstResponse bsoncore.Document) error
}
