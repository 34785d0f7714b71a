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

import "errors"

var (
	// ErrEmptyPassword is returned when the SCRAM-SHA-1 credential digest is
	// requested for an empty password. It is raised before any I/O.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrNonceGeneration is returned when the system random source fails
	// while generating the client nonce.
	ErrNonceGeneration = errors.New("failed to generate client nonce")

	// ErrMalformedMessage is returned when a server message is missing a
	// required attribute or an attribute cannot be decoded.
	ErrMalformedMessage = errors.New("malformed SCRAM server message")

	// ErrWeakIterations is returned when the server proposes an iteration
	// count below the minimum of 4096. No key derivation is performed.
	ErrWeakIterations = errors.New("server requested iteration count below minimum")

	// ErrInvalidNonce is returned when the server's combined nonce does not
	// extend the client nonce, or echoes a placeholder.
	ErrInvalidNonce = errors.New("server nonce does not extend client nonce")

	// ErrServerSignature is returned when the server's signature does not
	// match the expected HMAC over the auth message. This indicates a
	// man-in-the-middle or a misconfigured server and must never be retried.
	ErrServerSignature = errors.New("server signature verification failed")

	// ErrServerRejected is returned when the server-final-message carries an
	// e= attribute instead of a signature.
	ErrServerRejected = errors.New("server rejected authentication")

	// ErrConversationState is returned when conversation methods are invoked
	// out of order.
	ErrConversationState = errors.New("SCRAM conversation method called out of order")
)
