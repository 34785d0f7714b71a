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

package scram

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
)

// conversationStep tracks which message the conversation expects next.
// Methods must be called in order: FirstMessage, ProcessServerFirst,
// VerifyServerFinal.
type conversationStep int

const (
	stepFirst conversationStep = iota
	stepServerFirst
	stepServerFinal
	stepDone
)

// NonceGenerator produces the client nonce: printable ASCII with no commas.
// The default draws 24 bytes from crypto/rand and base64 encodes them; tests
// substitute a fixed nonce to pin known vectors.
type NonceGenerator func() (string, error)

// ClientConversation is the client side of one SCRAM exchange. It is created
// per authentication attempt and is not safe for concurrent use.
//
// The conversation is transport agnostic: callers move the returned strings
// in and out of whatever envelope their protocol uses (for MongoDB, the
// payload field of saslStart/saslContinue commands).
type ClientConversation struct {
	mechanism Mechanism
	username  string
	password  string
	logger    *slog.Logger

	// nonce is set exactly once, at construction, before any message is
	// built.
	nonce string

	step      conversationStep
	firstBare string

	// expectedServerSignature is retained between ProcessServerFirst and
	// VerifyServerFinal.
	expectedServerSignature []byte
}

// NewClientConversation creates a conversation for the given mechanism and
// credentials, generating the client nonce. Credential problems (an empty
// password with SCRAM-SHA-1) are reported here, before any I/O happens.
func NewClientConversation(m Mechanism, username, password string) (*ClientConversation, error) {
	return NewClientConversationWithNonce(m, username, password, generateNonce)
}

// NewClientConversationWithNonce is NewClientConversation with a caller
// supplied nonce source.
func NewClientConversationWithNonce(m Mechanism, username, password string, gen NonceGenerator) (*ClientConversation, error) {
	// Surface credential-shape errors eagerly; the prep result itself is
	// recomputed (cheaply) when the server-first message arrives.
	if _, err := PrepPassword(m, username, password, nil); err != nil {
		return nil, err
	}

	nonce, err := gen()
	if err != nil {
		return nil, err
	}

	return &ClientConversation{
		mechanism: m,
		username:  username,
		password:  password,
		nonce:     nonce,
	}, nil
}

// SetLogger routes the conversation's diagnostics (currently only the
// one-time SASLprep fallback warning) to the given logger instead of
// slog.Default.
func (c *ClientConversation) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// Mechanism returns the conversation's SASL mechanism.
func (c *ClientConversation) Mechanism() Mechanism {
	return c.mechanism
}

// Nonce returns the client nonce as it appears in the r= attribute.
func (c *ClientConversation) Nonce() string {
	return c.nonce
}

// Done reports whether the server's signature has been verified.
func (c *ClientConversation) Done() bool {
	return c.step == stepDone
}

// FirstMessageBare returns the client-first-message-bare:
// "n=<escaped username>,r=<nonce>".
func (c *ClientConversation) FirstMessageBare() string {
	if c.firstBare == "" {
		c.firstBare = clientFirstMessageBare(EncodeSaslName(c.username), c.nonce)
	}
	return c.firstBare
}

// FirstMessage returns the full client-first-message, GS2 header included.
// This is the saslStart payload, whether sent speculatively on the handshake
// or as its own command.
func (c *ClientConversation) FirstMessage() string {
	if c.step == stepFirst {
		c.step = stepServerFirst
	}
	return gs2Header + c.FirstMessageBare()
}

// ProcessServerFirst consumes the server-first-message and returns the
// client-final-message carrying the proof.
//
// It validates the iteration count (>= 4096) and the combined nonce (must
// extend the client nonce; a server echoing the literal "nonce" placeholder
// is rejected), derives the salted password through the process-wide cache,
// and retains the expected server signature for VerifyServerFinal.
func (c *ClientConversation) ProcessServerFirst(serverFirst string) (string, error) {
	if c.step != stepServerFirst {
		return "", fmt.Errorf("%w: ProcessServerFirst at step %d", ErrConversationState, c.step)
	}

	parsed, err := parseServerFirstMessage(serverFirst)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(parsed.combinedNonce, c.nonce) {
		return "", ErrInvalidNonce
	}
	if strings.HasPrefix(parsed.combinedNonce, "nonce") {
		// A misconfigured server echoing a template value would otherwise
		// pass the prefix check whenever the client nonce happened to be a
		// prefix of it.
		return "", ErrInvalidNonce
	}

	prepped, err := PrepPassword(c.mechanism, c.username, c.password, c.logger)
	if err != nil {
		return "", err
	}

	saltedPassword := passwordCache.GetOrCompute(c.mechanism, prepped, parsed.salt, parsed.iterations)
	clientKey := ComputeClientKey(c.mechanism, saltedPassword)
	serverKey := ComputeServerKey(c.mechanism, saltedPassword)
	storedKey := ComputeStoredKey(c.mechanism, clientKey)

	withoutProof := clientFinalMessageWithoutProof(parsed.combinedNonce)

	// All three components are captured before any keyed HMAC runs, and the
	// same bytes feed both signatures.
	authMessage := c.FirstMessageBare() + "," + parsed.raw + "," + withoutProof

	clientSignature := ComputeClientSignature(c.mechanism, storedKey, authMessage)
	clientProof, err := xorBytes(clientKey, clientSignature)
	if err != nil {
		return "", err
	}

	c.expectedServerSignature = ComputeServerSignature(c.mechanism, serverKey, authMessage)
	c.step = stepServerFinal

	return withoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// VerifyServerFinal consumes the server-final-message and verifies the
// server's signature against the expected HMAC, in constant time. An e=
// attribute surfaces as ErrServerRejected with the server's text; a
// signature mismatch surfaces as ErrServerSignature and must never be
// retried by any layer.
func (c *ClientConversation) VerifyServerFinal(serverFinal string) error {
	if c.step != stepServerFinal {
		return fmt.Errorf("%w: VerifyServerFinal at step %d", ErrConversationState, c.step)
	}

	parsed, err := parseServerFinalMessage(serverFinal)
	if err != nil {
		return err
	}

	if parsed.serverError != "" {
		return fmt.Errorf("%w: %s", ErrServerRejected, parsed.serverError)
	}

	if !constantTimeEqual(parsed.serverSignature, c.expectedServerSignature) {
		return ErrServerSignature
	}

	c.step = stepDone
	return nil
}
