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
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/mongowire/mongowire/go/common/mongoprotocol/scram"
)

func TestSaslStartCommand(t *testing.T) {
	payload := []byte("n,,n=user,r=abc")
	cmd := saslStartCommand(scram.ScramSHA256Mechanism, payload)

	t.Run("command fields", func(t *testing.T) {
		v, err := cmd.LookupErr("saslStart")
		require.NoError(t, err)
		n, ok := v.Int32OK()
		require.True(t, ok)
		assert.Equal(t, int32(1), n)

		mech, err := cmd.LookupErr("mechanism")
		require.NoError(t, err)
		name, _ := mech.StringValueOK()
		assert.Equal(t, "SCRAM-SHA-256", name)

		auto, err := cmd.LookupErr("autoAuthorize")
		require.NoError(t, err)
		autoN, _ := auto.Int32OK()
		assert.Equal(t, int32(1), autoN)
	})

	t.Run("payload is binary subtype zero", func(t *testing.T) {
		v, err := cmd.LookupErr("payload")
		require.NoError(t, err)
		subtype, data, ok := v.BinaryOK()
		require.True(t, ok)
		assert.Equal(t, byte(0x00), subtype)
		assert.Equal(t, payload, data)
	})

	t.Run("requests skipEmptyExchange", func(t *testing.T) {
		v, err := cmd.LookupErr("options", "skipEmptyExchange")
		require.NoError(t, err)
		skip, ok := v.BooleanOK()
		require.True(t, ok)
		assert.True(t, skip)
	})
}

func TestSaslContinueCommand(t *testing.T) {
	t.Run("echoes the conversationId verbatim", func(t *testing.T) {
		idx, reply := bsoncore.AppendDocumentStart(nil)
		reply = bsoncore.AppendInt32Element(reply, "conversationId", 7)
		reply, err := bsoncore.AppendDocumentEnd(reply, idx)
		require.NoError(t, err)

		cid, err := bsoncore.Document(reply).LookupErr("conversationId")
		require.NoError(t, err)

		cmd := saslContinueCommand(cid, []byte("c=biws,r=abc,p=proof"))

		v, err := cmd.LookupErr("saslContinue")
		require.NoError(t, err)
		n, _ := v.Int32OK()
		assert.Equal(t, int32(1), n)

		echoed, err := cmd.LookupErr("conversationId")
		require.NoError(t, err)
		id, ok := echoed.Int32OK()
		require.True(t, ok)
		assert.Equal(t, int32(7), id)
	})

	t.Run("empty payload is an empty binary", func(t *testing.T) {
		cmd := saslContinueCommand(bsoncore.Value{}, nil)

		v, err := cmd.LookupErr("payload")
		require.NoError(t, err)
		_, data, ok := v.BinaryOK()
		require.True(t, ok)
		assert.Empty(t, data)
	})
}

func buildReply(t *testing.T, build func(doc []byte) []byte) bsoncore.Document {
	t.Helper()
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = build(doc)
	doc, err := bsoncore.AppendDocumentEnd(doc, idx)
	require.NoError(t, err)
	return doc
}

func TestParseSaslResponse(t *testing.T) {
	t.Run("binary payload", func(t *testing.T) {
		reply := buildReply(t, func(doc []byte) []byte {
			doc = bsoncore.AppendInt32Element(doc, "conversationId", 1)
			doc = bsoncore.AppendBooleanElement(doc, "done", false)
			doc = bsoncore.AppendBinaryElement(doc, "payload", 0x00, []byte("r=abc,s=c2FsdA==,i=4096"))
			doc = bsoncore.AppendDoubleElement(doc, "ok", 1)
			return doc
		})

		resp, err := parseSaslResponse(reply)
		require.NoError(t, err)

		assert.Equal(t, []byte("r=abc,s=c2FsdA==,i=4096"), resp.payload)
		assert.False(t, resp.done)
		assert.True(t, resp.donePresent)
	})

	t.Run("base64 string payload", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte("v=signature"))
		reply := buildReply(t, func(doc []byte) []byte {
			doc = bsoncore.AppendBooleanElement(doc, "done", true)
			doc = bsoncore.AppendStringElement(doc, "payload", encoded)
			doc = bsoncore.AppendDoubleElement(doc, "ok", 1)
			return doc
		})

		resp, err := parseSaslResponse(reply)
		require.NoError(t, err)

		assert.Equal(t, []byte("v=signature"), resp.payload)
		assert.True(t, resp.done)
	})

	t.Run("invalid base64 payload", func(t *testing.T) {
		reply := buildReply(t, func(doc []byte) []byte {
			doc = bsoncore.AppendStringElement(doc, "payload", "!!!not base64!!!")
			doc = bsoncore.AppendDoubleElement(doc, "ok", 1)
			return doc
		})

		_, err := parseSaslResponse(reply)

		assert.ErrorContains(t, err, "base64")
	})

	t.Run("missing done flag is reported absent", func(t *testing.T) {
		reply := buildReply(t, func(doc []byte) []byte {
			doc = bsoncore.AppendBinaryElement(doc, "payload", 0x00, []byte("v=sig"))
			doc = bsoncore.AppendDoubleElement(doc, "ok", 1)
			return doc
		})

		resp, err := parseSaslResponse(reply)
		require.NoError(t, err)

		assert.False(t, resp.donePresent)
	})

	t.Run("errmsg becomes a ServerError", func(t *testing.T) {
		reply := buildReply(t, func(doc []byte) []byte {
			doc = bsoncore.AppendDoubleElement(doc, "ok", 0)
			doc = bsoncore.AppendStringElement(doc, "errmsg", "authentication failed")
			doc = bsoncore.AppendInt32Element(doc, "code", 18)
			return doc
		})

		_, err := parseSaslResponse(reply)

		var serverErr *ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, int32(18), serverErr.Code)
		assert.Equal(t, "authentication failed", serverErr.Message)
	})

	t.Run("legacy $err becomes a ServerError", func(t *testing.T) {
		reply := buildReply(t, func(doc []byte) []byte {
			doc = bsoncore.AppendStringElement(doc, "$err", "unauthorized")
			return doc
		})

		_, err := parseSaslResponse(reply)

		var serverErr *ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, "unauthorized", serverErr.Message)
	})

	t.Run("ok 0 without errmsg still fails", func(t *testing.T) {
		reply := buildReply(t, func(doc []byte) []byte {
			return bsoncore.AppendInt32Element(doc, "ok", 0)
		})

		_, err := parseSaslResponse(reply)

		var serverErr *ServerError
		assert.ErrorAs(t, err, &serverErr)
	})

	t.Run("numeric ok encodings are accepted", func(t *testing.T) {
		for name, build := range map[string]func(doc []byte) []byte{
			"double": func(doc []byte) []byte { return bsoncore.AppendDoubleElement(doc, "ok", 1) },
			"int32":  func(doc []byte) []byte { return bsoncore.AppendInt32Element(doc, "ok", 1) },
			"int64":  func(doc []byte) []byte { return bsoncore.AppendInt64Element(doc, "ok", 1) },
		} {
			t.Run(name, func(t *testing.T) {
				reply := buildReply(t, func(doc []byte) []byte {
					doc = build(doc)
					return bsoncore.AppendBinaryElement(doc, "payload", 0x00, nil)
				})

				_, err := parseSaslResponse(reply)
				assert.NoError(t, err)
			})
		}
	})
}
