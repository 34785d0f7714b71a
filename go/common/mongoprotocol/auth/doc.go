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

// Package auth drives SASL authentication conversations over MongoDB wire
// protocol connections.
//
// # Overview
//
// The package owns the command layer of authentication: it wraps SCRAM
// payloads (produced by the scram package) into saslStart and saslContinue
// command documents, submits them to "<source>.$cmd" through a caller
// provided Connection, and walks an explicit state machine through the
// conversation, including MongoDB's speculative-authentication fast path
// where the first client message rides on the connection handshake.
//
// # Conversation States
//
// One authentication attempt moves through:
//
//	stateInit → stateFirstSent → stateFinalSent → stateDone
//	                                  ↘ stateRetryEmpty → stateDone
//
// stateRetryEmpty handles servers that answer the proof exchange with
// done:false, requiring one further saslContinue with an empty payload. When
// a speculative response is available the engine starts directly in
// stateFirstSent and no saslStart command is ever submitted.
//
// Within one attempt commands are strictly sequential; the server's
// conversationId is echoed verbatim on every follow-up. Cancellation is
// cooperative and observed before each command submission. The engine never
// retries: transport errors are the caller's retry decision, and a server
// signature mismatch must not be retried by any layer.
//
// # Usage Example
//
//	authenticator, err := auth.NewScramAuthenticator(scram.ScramSHA256Mechanism, &auth.Credential{
//	    Username: "app",
//	    Password: "secret",
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Optional: piggy-back the first message on the handshake.
//	handshake, speculative, err := authenticator.PrepareHandshake(hello)
//
//	err = authenticator.Auth(ctx, &auth.Config{
//	    Connection:        conn,
//	    HandshakeResponse: helloResponse,
//	})
//
// # Scope
//
// The package implements SCRAM-SHA-1 and SCRAM-SHA-256 only. Other SASL
// mechanisms (PLAIN, GSSAPI, MONGODB-X509, MONGODB-AWS), channel binding,
// and mechanism negotiation are not provided; callers select the mechanism.
package auth
