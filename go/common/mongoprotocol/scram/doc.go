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

// Package scram implements client-side SCRAM-SHA-1 and SCRAM-SHA-256
// authentication for MongoDB wire protocol connections.
//
// # Overview
//
// This package provides the cryptographic pipeline and the message layer of
// SCRAM as MongoDB servers speak it: nonce generation, SASL message
// construction and parsing, password preparation, PBKDF2 key derivation with
// a process-wide salted-password cache, proof construction, and
// constant-time verification of the server's signature. The SASL command
// envelopes (saslStart/saslContinue documents) live one layer up, in the
// auth package; this package is transport agnostic.
//
// # SCRAM Protocol
//
// SCRAM (Salted Challenge Response Authentication Mechanism) is defined in
// RFC 5802: https://datatracker.ietf.org/doc/html/rfc5802
//
// MongoDB supports two hash families, selected by the caller:
//   - SCRAM-SHA-1 (RFC 5802)
//   - SCRAM-SHA-256 (RFC 7677)
//
// The protocol involves a four-message exchange:
//  1. Client → Server: client-first-message (username, nonce)
//  2. Server → Client: server-first-message (combined nonce, salt, iterations)
//  3. Client → Server: client-final-message (proof)
//  4. Server → Client: server-final-message (server signature for mutual auth)
//
// # Why Not Use an Existing Library?
//
// Several Go SCRAM libraries exist (xdg-go/scram, lib/pq, jackc/pgx), but
// none cover MongoDB's requirements:
//
//   - MongoDB's SCRAM-SHA-1 does not feed the raw password into Hi(). It
//     first digests it as lowercase hex of MD5(username + ":mongo:" +
//     password), a holdover from MONGODB-CR credential storage.
//   - Connection storms re-run PBKDF2 per connection unless the salted
//     password is memoized; this package ships a bounded process-wide cache.
//   - Speculative authentication requires handing the first client message
//     to the connection handshake before the conversation starts, which the
//     conversation types here are shaped for.
//
// # Architecture
//
// The package is organized into several components:
//
//   - Mechanism: hash-family selector (SCRAM-SHA-1, SCRAM-SHA-256)
//   - ClientConversation: stateful client-side exchange (first message,
//     server-first processing, server-final verification)
//   - Cryptographic functions: RFC 5802 compliant key derivation and
//     signature computation, exported for server emulation in tests
//   - Salted-password cache: bounded PBKDF2 memoization
//   - Protocol parsers/generators: attribute-pair codec (unexported)
//
// # Usage Example
//
//	conv, err := scram.NewClientConversation(scram.ScramSHA256Mechanism, "user", "pencil")
//	if err != nil {
//	    return err
//	}
//
//	// Send conv.FirstMessage() as the saslStart payload...
//	clientFinal, err := conv.ProcessServerFirst(serverFirst)
//	// Send clientFinal as the saslContinue payload...
//	if err := conv.VerifyServerFinal(serverFinal); err != nil {
//	    // Server failed mutual authentication.
//	}
//
// # Security Considerations
//
//   - The server signature comparison uses a constant-time algorithm
//     (crypto/subtle); a mismatch means the peer does not know the stored
//     credentials and is never retried.
//   - Iteration counts below 4096 are rejected before any key derivation.
//   - The combined nonce must extend the client nonce; servers echoing a
//     placeholder are rejected.
//   - Errors never carry the password, the salted password, derived keys, or
//     the client proof.
//
// # Password Normalization
//
// SCRAM-SHA-256 passwords are normalized with SASLprep (RFC 4013) via
// xdg-go/stringprep. Passwords that fail SASLprep (prohibited characters,
// bidi violations) fall back to their raw UTF-8 bytes with a one-time
// warning, matching the lenient behavior of deployed drivers. SCRAM-SHA-1
// uses the MD5 credential digest instead and never applies SASLprep.
//
// # References
//
//   - RFC 5802 (SCRAM): https://datatracker.ietf.org/doc/html/rfc5802
//   - RFC 7677 (SCRAM-SHA-256): https://datatracker.ietf.org/doc/html/rfc7677
//   - RFC 4013 (SASLprep): https://datatracker.ietf.org/doc/html/rfc4013
//   - MongoDB SASL: https://www.mongodb.com/docs/manual/core/security-scram/
package scram
