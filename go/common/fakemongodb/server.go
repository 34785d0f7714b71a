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

// Package fakemongodb provides an in-process MongoDB stand-in for the SASL
// authentication command surface: saslStart, saslContinue, and the
// speculativeAuthenticate handshake field.
//
// The server holds one user's stored SCRAM credentials, derived from a
// cleartext password with the same primitives the client uses, and conducts
// the server side of the exchange. Behavior toggles let tests force the
// interesting branches: weak iteration counts, tampered signatures,
// placeholder nonces, base64 text payloads, and servers that do not honor
// skipEmptyExchange.
//
// This package exists for tests and diagnostics; it is not a database.
package fakemongodb

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/mongowire/mongowire/go/common/mongoprotocol/scram"
)

// serverNonceLength is the number of random bytes appended to the client
// nonce, base64 encoded.
const serverNonceLength = 18

// Server is an in-process SASL endpoint for a single user. The zero value is
// not usable; construct with NewServer.
type Server struct {
	Username   string
	Password   string
	Salt       []byte
	Iterations int

	// SkipEmptyExchange mirrors the server option of the same name. When
	// false the server answers the proof exchange with done:false and
	// expects one empty payload before finishing.
	SkipEmptyExchange bool

	// TamperServerSignature flips one bit of the v= signature.
	TamperServerSignature bool

	// EchoPlaceholderNonce replaces the combined nonce with the literal
	// template value a misconfigured server might send.
	EchoPlaceholderNonce bool

	// Base64Payload sends reply payloads as base64 text instead of BSON
	// binary.
	Base64Payload bool

	mu       sync.Mutex
	sessions map[int32]*session
	nextID   int32

	// Counters observed by tests.
	startCount    int
	continueCount int
}

// session is one in-flight conversation on the server side.
type session struct {
	mechanism     scram.Mechanism
	combinedNonce string
	serverFirst   string
	firstBare     string
	verified      bool
}

// NewServer creates a server holding stored credentials for one user, with a
// random 16-byte salt and 4096 iterations.
func NewServer(username, password string) *Server {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return &Server{
		Username:          username,
		Password:          password,
		Salt:              salt,
		Iterations:        4096,
		SkipEmptyExchange: true,
		sessions:          make(map[int32]*session),
	}
}

// StartCount returns how many saslStart commands the server has handled.
func (s *Server) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCount
}

// ContinueCount returns how many saslContinue commands the server has
// handled.
func (s *Server) ContinueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continueCount
}

// RunCommand dispatches a command document. It implements the connection
// interface the auth package consumes.
func (s *Server) RunCommand(_ context.Context, _ string, cmd bsoncore.Document) (bsoncore.Document, error) {
	switch {
	case hasKey(cmd, "saslStart"):
		s.mu.Lock()
		s.startCount++
		s.mu.Unlock()
		return s.handleSaslStart(cmd)
	case hasKey(cmd, "saslContinue"):
		return s.handleSaslContinue(cmd)
	default:
		return errorReply("no such command"), nil
	}
}

// Handshake answers a connection handshake. When the handshake carries a
// speculativeAuthenticate field, its saslStart reply is embedded in the
// response under the same key.
func (s *Server) Handshake(handshake bsoncore.Document) (bsoncore.Document, error) {
	idx, reply := bsoncore.AppendDocumentStart(nil)
	reply = bsoncore.AppendDoubleElement(reply, "ok", 1)

	if v, err := handshake.LookupErr("speculativeAuthenticate"); err == nil {
		spec, ok := v.DocumentOK()
		if !ok {
			return nil, fmt.Errorf("speculativeAuthenticate is not a document")
		}
		specReply, err := s.handleSaslStart(spec)
		if err != nil {
			return nil, err
		}
		reply = bsoncore.AppendDocumentElement(reply, "speculativeAuthenticate", specReply)
	}

	reply, _ = bsoncore.AppendDocumentEnd(reply, idx)
	return reply, nil
}

// handleSaslStart serves the client-first message, whether it arrived as its
// own command or embedded in a handshake.
func (s *Server) handleSaslStart(cmd bsoncore.Document) (bsoncore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mechName, payload, err := startFields(cmd)
	if err != nil {
		return errorReply(err.Error()), nil
	}
	mechanism := scram.Mechanism(mechName)
	if mechanism != scram.ScramSHA1Mechanism && mechanism != scram.ScramSHA256Mechanism {
		return errorReply("unsupported mechanism " + mechName), nil
	}

	// client-first-message: gs2-header "n,," followed by the bare message.
	msg := string(payload)
	bare, ok := strings.CutPrefix(msg, "n,,")
	if !ok {
		return errorReply("unsupported GS2 header"), nil
	}

	attrs := parseAttributes(bare)
	if attrs["n"] != scram.EncodeSaslName(s.Username) {
		return errorReply("authentication failed"), nil
	}
	clientNonce := attrs["r"]
	if clientNonce == "" {
		return errorReply("missing client nonce"), nil
	}

	combined := clientNonce + s.serverNoncePart()
	if s.EchoPlaceholderNonce {
		combined = "nonce-placeholder"
	}

	serverFirst := "r=" + combined +
		",s=" + base64.StdEncoding.EncodeToString(s.Salt) +
		",i=" + strconv.Itoa(s.Iterations)

	s.nextID++
	id := s.nextID
	s.sessions[id] = &session{
		mechanism:     mechanism,
		combinedNonce: combined,
		serverFirst:   serverFirst,
		firstBare:     bare,
	}

	return s.saslReply(id, []byte(serverFirst), false), nil
}

func (s *Server) handleSaslContinue(cmd bsoncore.Document) (bsoncore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continueCount++

	id, payload, err := continueFields(cmd)
	if err != nil {
		return errorReply(err.Error()), nil
	}
	sess, ok := s.sessions[id]
	if !ok {
		return errorReply("unknown conversationId"), nil
	}

	if sess.verified {
		// The empty exchange that concludes a conversation the client was
		// not allowed to skip.
		if len(payload) != 0 {
			return errorReply("expected empty payload"), nil
		}
		delete(s.sessions, id)
		return s.saslReply(id, nil, true), nil
	}

	attrs := parseAttributes(string(payload))
	if attrs["r"] != sess.combinedNonce {
		return errorReply("nonce mismatch"), nil
	}
	proof, err := base64.StdEncoding.DecodeString(attrs["p"])
	if err != nil {
		return errorReply("invalid proof encoding"), nil
	}

	m := sess.mechanism
	prepped, err := scram.PrepPassword(m, s.Username, s.Password, nil)
	if err != nil {
		return errorReply("credential preparation failed"), nil
	}
	saltedPassword := scram.ComputeSaltedPassword(m, prepped, s.Salt, s.Iterations)
	clientKey := scram.ComputeClientKey(m, saltedPassword)
	storedKey := scram.ComputeStoredKey(m, clientKey)
	serverKey := scram.ComputeServerKey(m, saltedPassword)

	withoutProof, _, _ := strings.Cut(string(payload), ",p=")
	authMessage := sess.firstBare + "," + sess.serverFirst + "," + withoutProof

	clientSignature := scram.ComputeClientSignature(m, storedKey, authMessage)
	expectedProof := make([]byte, len(clientKey))
	for i := range clientKey {
		expectedProof[i] = clientKey[i] ^ clientSignature[i]
	}
	if len(proof) != len(expectedProof) {
		return errorReply("authentication failed"), nil
	}
	var diff byte
	for i := range proof {
		diff |= proof[i] ^ expectedProof[i]
	}
	if diff != 0 {
		return errorReply("authentication failed"), nil
	}

	serverSignature := scram.ComputeServerSignature(m, serverKey, authMessage)
	if s.TamperServerSignature {
		serverSignature[0] ^= 0x01
	}
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(serverSignature)

	if s.SkipEmptyExchange {
		delete(s.sessions, id)
		return s.saslReply(id, []byte(serverFinal), true), nil
	}
	sess.verified = true
	return s.saslReply(id, []byte(serverFinal), false), nil
}

func (s *Server) serverNoncePart() string {
	raw := make([]byte, serverNonceLength)
	_, _ = rand.Read(raw)
	return base64.StdEncoding.EncodeToString(raw)
}

// saslReply builds { conversationId, done, payload, ok: 1 }.
func (s *Server) saslReply(id int32, payload []byte, done bool) bsoncore.Document {
	idx, reply := bsoncore.AppendDocumentStart(nil)
	reply = bsoncore.AppendInt32Element(reply, "conversationId", id)
	reply = bsoncore.AppendBooleanElement(reply, "done", done)
	if s.Base64Payload {
		reply = bsoncore.AppendStringElement(reply, "payload", base64.StdEncoding.EncodeToString(payload))
	} else {
		reply = bsoncore.AppendBinaryElement(reply, "payload", 0x00, payload)
	}
	reply = bsoncore.AppendDoubleElement(reply, "ok", 1)
	reply, _ = bsoncore.AppendDocumentEnd(reply, idx)
	return reply
}

func errorReply(msg string) bsoncore.Document {
	idx, reply := bsoncore.AppendDocumentStart(nil)
	reply = bsoncore.AppendDoubleElement(reply, "ok", 0)
	reply = bsoncore.AppendStringElement(reply, "errmsg", msg)
	reply = bsoncore.AppendInt32Element(reply, "code", 18) // AuthenticationFailed
	reply, _ = bsoncore.AppendDocumentEnd(reply, idx)
	return reply
}

func hasKey(doc bsoncore.Document, key string) bool {
	_, err := doc.LookupErr(key)
	return err == nil
}

func startFields(cmd bsoncore.Document) (string, []byte, error) {
	mech, err := cmd.LookupErr("mechanism")
	if err != nil {
		return "", nil, fmt.Errorf("missing mechanism")
	}
	name, ok := mech.StringValueOK()
	if !ok {
		return "", nil, fmt.Errorf("mechanism is not a string")
	}
	payload, err := binaryPayload(cmd)
	if err != nil {
		return "", nil, err
	}
	return name, payload, nil
}

func continueFields(cmd bsoncore.Document) (int32, []byte, error) {
	cid, err := cmd.LookupErr("conversationId")
	if err != nil {
		return 0, nil, fmt.Errorf("missing conversationId")
	}
	id, ok := cid.Int32OK()
	if !ok {
		return 0, nil, fmt.Errorf("conversationId is not an int32")
	}
	payload, err := binaryPayload(cmd)
	if err != nil {
		return 0, nil, err
	}
	return id, payload, nil
}

func binaryPayload(cmd bsoncore.Document) ([]byte, error) {
	v, err := cmd.LookupErr("payload")
	if err != nil {
		return nil, fmt.Errorf("missing payload")
	}
	if _, data, ok := v.BinaryOK(); ok {
		return data, nil
	}
	return nil, fmt.Errorf("payload is not binary")
}

// parseAttributes splits a SCRAM message into key=value pairs, cutting each
// element on the first '='.
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
