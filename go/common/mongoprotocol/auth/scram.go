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
	"fmt"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/mongowire/mongowire/go/common/mongoprotocol/scram"
)

// conversationState tracks the progress of one SASL conversation.
type conversationState int

const (
	// stateInit: nothing sent yet.
	stateInit conversationState = iota

	// stateFirstSent: the client-first message went out (as saslStart or
	// speculatively on the handshake) and its reply has been received.
	stateFirstSent

	// stateFinalSent: the proof went out on saslContinue.
	stateFinalSent

	// stateRetryEmpty: the server answered the verified proof exchange with
	// done:false; one empty payload remains to be sent.
	stateRetryEmpty

	// stateDone: the conversation finished successfully.
	stateDone
)

// ScramAuthenticator authenticates connections with SCRAM-SHA-1 or
// SCRAM-SHA-256 over SASL. One authenticator serves one credential; each
// Auth call is an independent attempt with its own nonce.
type ScramAuthenticator struct {
	mechanism  scram.Mechanism
	credential *Credential

	// speculative is the conversation created by
	// CreateSpeculativeConversation, consumed by the next Auth call.
	speculative *scramConversation
}

var (
	_ Authenticator            = (*ScramAuthenticator)(nil)
	_ SpeculativeAuthenticator = (*ScramAuthenticator)(nil)
)

// NewScramAuthenticator creates an authenticator for the given mechanism and
// credential. Credential-shape problems (such as an empty password with
// SCRAM-SHA-1) are reported here, before any I/O.
func NewScramAuthenticator(m scram.Mechanism, credential *Credential) (*ScramAuthenticator, error) {
	if credential == nil {
		return nil, ErrMissingCredential
	}
	// Probe the conversation constructor so invalid credentials fail fast;
	// the probe's nonce is discarded.
	if _, err := scram.NewClientConversation(m, credential.Username, credential.Password); err != nil {
		return nil, err
	}
	return &ScramAuthenticator{
		mechanism:  m,
		credential: credential,
	}, nil
}

// Name returns the SASL mechanism name.
func (a *ScramAuthenticator) Name() string {
	return a.mechanism.String()
}

// newConversation builds a fresh per-attempt conversation, generating the
// client nonce.
func (a *ScramAuthenticator) newConversation() (*scramConversation, error) {
	client, err := scram.NewClientConversation(a.mechanism, a.credential.Username, a.credential.Password)
	if err != nil {
		return nil, err
	}
	return &scramConversation{
		mechanism:  a.mechanism,
		credential: a.credential,
		client:     client,
	}, nil
}

// CreateSpeculativeConversation starts a conversation whose first message
// the caller embeds into the connection handshake. The conversation is also
// remembered on the authenticator so a subsequent Auth with the handshake
// response completes it.
func (a *ScramAuthenticator) CreateSpeculativeConversation() (SpeculativeConversation, error) {
	conv, err := a.newConversation()
	if err != nil {
		return nil, err
	}
	a.speculative = conv
	return conv, nil
}

// PrepareHandshake returns the handshake document augmented with a
// speculativeAuthenticate field carrying this authenticator's first message.
func (a *ScramAuthenticator) PrepareHandshake(handshake bsoncore.Document) (bsoncore.Document, SpeculativeConversation, error) {
	conv, err := a.CreateSpeculativeConversation()
	if err != nil {
		return nil, nil, err
	}
	first, err := conv.FirstMessage()
	if err != nil {
		return nil, nil, err
	}

	elements, err := handshake.Elements()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid handshake document: %w", err)
	}

	idx, doc := bsoncore.AppendDocumentStart(nil)
	for _, el := range elements {
		doc = bsoncore.AppendValueElement(doc, el.Key(), el.Value())
	}
	doc = bsoncore.AppendDocumentElement(doc, "speculativeAuthenticate", first)
	doc, _ = bsoncore.AppendDocumentEnd(doc, idx)

	return doc, conv, nil
}

// Auth authenticates the connection. When the handshake response carries a
// speculativeAuthenticate reply for a previously prepared conversation, that
// conversation is completed and no saslStart is submitted; otherwise a fresh
// conversation runs the full exchange.
func (a *ScramAuthenticator) Auth(ctx context.Context, cfg *Config) error {
	if cfg == nil || cfg.Connection == nil {
		return ErrMissingConnection
	}

	if conv := a.speculative; conv != nil {
		a.speculative = nil
		if firstResponse, ok := speculativeResponse(cfg.HandshakeResponse); ok {
			return conv.Finish(ctx, cfg, firstResponse)
		}
		// The server ignored the speculative attempt; fall through to a
		// fresh conversation.
	}

	conv, err := a.newConversation()
	if err != nil {
		return err
	}
	return conv.run(ctx, cfg)
}

// speculativeResponse extracts the speculativeAuthenticate sub-document from
// a handshake response.
func speculativeResponse(handshakeResponse bsoncore.Document) (bsoncore.Document, bool) {
	if len(handshakeResponse) == 0 {
		return nil, false
	}
	v, err := handshakeResponse.LookupErr("speculativeAuthenticate")
	if err != nil {
		return nil, false
	}
	return v.DocumentOK()
}

// scramConversation is one authentication attempt: the SCRAM client state
// plus the command-layer state machine around it.
type scramConversation struct {
	mechanism  scram.Mechanism
	credential *Credential
	client     *scram.ClientConversation

	state          conversationState
	conversationID bsoncore.Value
}

// FirstMessage returns the saslStart command document for embedding into a
// handshake, with the authentication database attached as db.
func (c *scramConversation) FirstMessage() (bsoncore.Document, error) {
	cmd := saslStartCommand(c.mechanism, []byte(c.client.FirstMessage()))

	elements, err := cmd.Elements()
	if err != nil {
		return nil, err
	}
	idx, doc := bsoncore.AppendDocumentStart(nil)
	for _, el := range elements {
		doc = bsoncore.AppendValueElement(doc, el.Key(), el.Value())
	}
	doc = bsoncore.AppendStringElement(doc, "db", c.credential.source())
	doc, _ = bsoncore.AppendDocumentEnd(doc, idx)
	return doc, nil
}

// run conducts the full conversation from stateInit.
func (c *scramConversation) run(ctx context.Context, cfg *Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	cmd := saslStartCommand(c.mechanism, []byte(c.client.FirstMessage()))
	reply, err := cfg.Connection.RunCommand(ctx, c.credential.source(), cmd)
	if err != nil {
		return &TransportError{Err: err}
	}
	resp, err := parseSaslResponse(reply)
	if err != nil {
		return err
	}
	c.state = stateFirstSent

	return c.continueConversation(ctx, cfg, resp)
}

// Finish completes a conversation whose first message rode on the handshake.
// The engine is seeded in stateFirstSent; the speculative reply takes the
// place of the saslStart reply.
func (c *scramConversation) Finish(ctx context.Context, cfg *Config, firstResponse bsoncore.Document) error {
	if c.state != stateInit {
		return fmt.Errorf("SASL conversation already ran (state %d)", c.state)
	}

	resp, err := parseSaslResponse(firstResponse)
	if err != nil {
		return err
	}
	c.state = stateFirstSent

	return c.continueConversation(ctx, cfg, resp)
}

// continueConversation walks stateFirstSent through stateDone.
func (c *scramConversation) continueConversation(ctx context.Context, cfg *Config, resp *saslResponse) error {
	c.conversationID = resp.conversationID

	if resp.done {
		return fmt.Errorf("SASL conversation completed before the proof exchange")
	}

	if cfg.Logger != nil {
		c.client.SetLogger(cfg.Logger)
	}

	// stateFirstSent → stateFinalSent: validate the challenge, derive keys,
	// send the proof.
	clientFinal, err := c.client.ProcessServerFirst(string(resp.payload))
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	reply, err := cfg.Connection.RunCommand(ctx, c.credential.source(), saslContinueCommand(c.conversationID, []byte(clientFinal)))
	if err != nil {
		return &TransportError{Err: err}
	}
	finalResp, err := parseSaslResponse(reply)
	if err != nil {
		return err
	}
	c.state = stateFinalSent

	// stateFinalSent: the server's signature must verify before the done
	// flag is even considered.
	if err := c.client.VerifyServerFinal(string(finalResp.payload)); err != nil {
		return err
	}

	if finalResp.done || !finalResp.donePresent {
		c.state = stateDone
		return nil
	}

	// stateRetryEmpty → stateDone: the server wants one empty exchange.
	c.state = stateRetryEmpty
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	reply, err = cfg.Connection.RunCommand(ctx, c.credential.source(), saslContinueCommand(c.conversationID, nil))
	if err != nil {
		return &TransportError{Err: err}
	}
	if _, err := parseSaslResponse(reply); err != nil {
		return err
	}

	c.state = stateDone
	return nil
}
