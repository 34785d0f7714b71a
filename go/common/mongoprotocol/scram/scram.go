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
	"strconv"
	"strings"
)

const (
	// gs2Header is the GS2 prefix for "no channel binding, no authzid".
	gs2Header = "n,,"

	// gs2HeaderBase64 is the base64 encoding of gs2Header, sent as the c=
	// attribute of the client-final-message.
	gs2HeaderBase64 = "biws"

	// minIterations is the smallest iteration count accepted from a server.
	minIterations = 4096
)

// attribute is a single SCRAM key=value pair. Message builders assemble
// attributes in the order the RFC requires for each message type; the codec
// itself never reorders.
type attribute struct {
	key   string
	value string
}

// parseAttributes splits a SCRAM message into its attribute pairs.
// Elements are comma separated; within an element only the first '='
// separates key from value, so base64 values keep their padding. A repeated
// key is not expected from a well-behaved server, but is defined: last wins.
func parseAttributes(msg string) map[string]string {
	attrs := make(map[string]string)
	for part := range strings.SplitSeq(msg, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		attrs[key] = value
	}
	return attrs
}

// formatAttributes assembles attribute pairs into a SCRAM message, in the
// order given.
func formatAttributes(attrs []attribute) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, a.key+"="+a.value)
	}
	return strings.Join(parts, ",")
}

// EncodeSaslName escapes a username for the n= attribute: '=' becomes "=3D"
// and ',' becomes "=2C", in that order. Only the first occurrence of each
// character is replaced, which is bit-compatible with what deployed drivers
// put on the wire. Strict RFC 5802 escaping replaces every occurrence, so a
// username with two '=' or two ',' characters is only partially escaped.
func EncodeSaslName(s string) string {
	s = strings.Replace(s, "=", "=3D", 1)
	s = strings.Replace(s, ",", "=2C", 1)
	return s
}

// clientFirstMessageBare builds the client-first-message-bare:
// "n=<escaped username>,r=<client nonce>". The caller escapes the username.
func clientFirstMessageBare(escapedUsername, nonce string) string {
	return formatAttributes([]attribute{
		{"n", escapedUsername},
		{"r", nonce},
	})
}

// clientFinalMessageWithoutProof builds "c=biws,r=<combined nonce>".
// This is the third component of the auth message and must be byte-identical
// to the prefix of the client-final-message.
func clientFinalMessageWithoutProof(combinedNonce string) string {
	return formatAttributes([]attribute{
		{"c", gs2HeaderBase64},
		{"r", combinedNonce},
	})
}

// serverFirstMessage is a parsed SCRAM server-first-message.
// Format: "r=" nonce "," "s=" salt "," "i=" iteration-count
type serverFirstMessage struct {
	// combinedNonce is the client nonce extended with the server's part.
	combinedNonce string

	// salt is the decoded PBKDF2 salt.
	salt []byte

	// iterations is the PBKDF2 iteration count.
	iterations int

	// raw is the message exactly as received. It is the second component of
	// the auth message and must not be re-serialized.
	raw string
}

// parseServerFirstMessage parses and validates a SCRAM server-first-message.
// Unknown attributes are ignored. The iteration count is checked against the
// minimum here, before any key derivation happens.
func parseServerFirstMessage(msg string) (*serverFirstMessage, error) {
	if msg == "" {
		return nil, fmt.Errorf("%w: empty server-first-message", ErrMalformedMessage)
	}

	attrs := parseAttributes(msg)

	combinedNonce, ok := attrs["r"]
	if !ok || combinedNonce == "" {
		return nil, fmt.Errorf("%w: missing nonce in server-first-message", ErrMalformedMessage)
	}

	saltB64, ok := attrs["s"]
	if !ok {
		return nil, fmt.Errorf("%w: missing salt in server-first-message", ErrMalformedMessage)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt: %v", ErrMalformedMessage, err)
	}

	iterStr, ok := attrs["i"]
	if !ok {
		return nil, fmt.Errorf("%w: missing iteration count in server-first-message", ErrMalformedMessage)
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid iteration count: %v", ErrMalformedMessage, err)
	}
	if iterations < minIterations {
		return nil, fmt.Errorf("%w: got %d, minimum is %d", ErrWeakIterations, iterations, minIterations)
	}

	return &serverFirstMessage{
		combinedNonce: combinedNonce,
		salt:          salt,
		iterations:    iterations,
		raw:           msg,
	}, nil
}

// serverFinalMessage is a parsed SCRAM server-final-message: either a
// "v=" signature or an "e=" server error.
type serverFinalMessage struct {
	// serverSignature is the decoded v= attribute; nil when the server
	// returned an error instead.
	serverSignature []byte

	// serverError is the e= attribute text, empty on success.
	serverError string
}

// parseServerFinalMessage parses a SCRAM server-final-message.
func parseServerFinalMessage(msg string) (*serverFinalMessage, error) {
	attrs := parseAttributes(msg)

	if e, ok := attrs["e"]; ok {
		return &serverFinalMessage{serverError: e}, nil
	}

	v, ok := attrs["v"]
	if !ok {
		return nil, fmt.Errorf("%w: missing signature in server-final-message", ErrMalformedMessage)
	}
	sig, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature encoding: %v", ErrMalformedMessage, err)
	}

	return &serverFinalMessage{serverSignature: sig}, nil
}
