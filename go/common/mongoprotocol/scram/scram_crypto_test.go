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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Values from section 5 of RFC 5802, the canonical SCRAM-SHA-1 example
// exchange for username "user", password "pencil". These exercise the
// primitive pipeline with the raw password; MongoDB's SHA-1 flavor digests
// the password first, which the conversation tests cover.
const (
	rfc5802ClientFirstBare   = "n=user,r=fyko+d2lbbFgONRv9qkxdawL"
	rfc5802ServerFirst       = "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
	rfc5802FinalWithoutProof = "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j"
	rfc5802SaltBase64        = "QSXCR+Q6sek8bf92"
	rfc5802ProofBase64       = "v0X8v3Bz2T0CJGbJQyF0X+HI4Ts="
	rfc5802ServerSigBase64   = "rmF9pqV8S7suAoZWja4dJRkFsKQ="
)

func rfc5802AuthMessage() string {
	return rfc5802ClientFirstBare + "," + rfc5802ServerFirst + "," + rfc5802FinalWithoutProof
}

func TestComputeSaltedPassword(t *testing.T) {
	t.Run("output length matches the hash", func(t *testing.T) {
		salt := []byte("salt")

		assert.Len(t, ComputeSaltedPassword(ScramSHA1Mechanism, []byte("pencil"), salt, 4096), 20)
		assert.Len(t, ComputeSaltedPassword(ScramSHA256Mechanism, []byte("pencil"), salt, 4096), 32)
	})

	t.Run("different factors produce different results", func(t *testing.T) {
		salt := []byte("salt")

		sp := ComputeSaltedPassword(ScramSHA256Mechanism, []byte("pencil"), salt, 4096)

		assert.NotEqual(t, sp, ComputeSaltedPassword(ScramSHA256Mechanism, []byte("eraser"), salt, 4096))
		assert.NotEqual(t, sp, ComputeSaltedPassword(ScramSHA256Mechanism, []byte("pencil"), []byte("pepper"), 4096))
		assert.NotEqual(t, sp, ComputeSaltedPassword(ScramSHA256Mechanism, []byte("pencil"), salt, 8192))
	})
}

func TestRFC5802Vector(t *testing.T) {
	// The full SCRAM-SHA-1 derivation chain against the published vector.
	salt, err := base64.StdEncoding.DecodeString(rfc5802SaltBase64)
	require.NoError(t, err)

	saltedPassword := ComputeSaltedPassword(ScramSHA1Mechanism, []byte("pencil"), salt, 4096)
	clientKey := ComputeClientKey(ScramSHA1Mechanism, saltedPassword)
	storedKey := ComputeStoredKey(ScramSHA1Mechanism, clientKey)
	serverKey := ComputeServerKey(ScramSHA1Mechanism, saltedPassword)

	t.Run("client proof", func(t *testing.T) {
		clientSignature := ComputeClientSignature(ScramSHA1Mechanism, storedKey, rfc5802AuthMessage())
		proof, err := xorBytes(clientKey, clientSignature)
		require.NoError(t, err)

		assert.Equal(t, rfc5802ProofBase64, base64.StdEncoding.EncodeToString(proof))
	})

	t.Run("server signature", func(t *testing.T) {
		serverSignature := ComputeServerSignature(ScramSHA1Mechanism, serverKey, rfc5802AuthMessage())

		assert.Equal(t, rfc5802ServerSigBase64, base64.StdEncoding.EncodeToString(serverSignature))
	})
}

func TestMongoPasswordDigest(t *testing.T) {
	t.Run("is lowercase hex of md5", func(t *testing.T) {
		digest, err := MongoPasswordDigest("user", "pencil")
		require.NoError(t, err)

		assert.Len(t, digest, 32)
		for _, r := range digest {
			assert.Contains(t, "0123456789abcdef", string(r))
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		d1, err := MongoPasswordDigest("user", "pencil")
		require.NoError(t, err)
		d2, err := MongoPasswordDigest("user", "pencil")
		require.NoError(t, err)

		assert.Equal(t, d1, d2)
	})

	t.Run("username is part of the digest", func(t *testing.T) {
		d1, err := MongoPasswordDigest("alice", "pencil")
		require.NoError(t, err)
		d2, err := MongoPasswordDigest("bob", "pencil")
		require.NoError(t, err)

		assert.NotEqual(t, d1, d2)
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		_, err := MongoPasswordDigest("user", "")

		assert.ErrorIs(t, err, ErrEmptyPassword)
	})
}

func TestPrepPassword(t *testing.T) {
	t.Run("SHA-1 uses the credential digest", func(t *testing.T) {
		prepped, err := PrepPassword(ScramSHA1Mechanism, "user", "pencil", nil)
		require.NoError(t, err)

		digest, err := MongoPasswordDigest("user", "pencil")
		require.NoError(t, err)
		assert.Equal(t, []byte(digest), prepped)
	})

	t.Run("SHA-1 empty password is rejected", func(t *testing.T) {
		_, err := PrepPassword(ScramSHA1Mechanism, "user", "", nil)

		assert.ErrorIs(t, err, ErrEmptyPassword)
	})

	t.Run("SHA-256 SASLprep is idempotent on ASCII", func(t *testing.T) {
		prepped, err := PrepPassword(ScramSHA256Mechanism, "user", "pencil", nil)
		require.NoError(t, err)

		assert.Equal(t, []byte("pencil"), prepped)
	})

	t.Run("SHA-256 normalizes non-ASCII space", func(t *testing.T) {
		// U+00A0 NO-BREAK SPACE maps to ASCII space under SASLprep.
		prepped, err := PrepPassword(ScramSHA256Mechanism, "user", "pen\u00a0cil", nil)
		require.NoError(t, err)

		assert.Equal(t, []byte("pen cil"), prepped)
	})

	t.Run("SHA-256 ignores the username", func(t *testing.T) {
		p1, err := PrepPassword(ScramSHA256Mechanism, "alice", "pencil", nil)
		require.NoError(t, err)
		p2, err := PrepPassword(ScramSHA256Mechanism, "bob", "pencil", nil)
		require.NoError(t, err)

		assert.Equal(t, p1, p2)
	})
}

func TestXorBytes(t *testing.T) {
	t.Run("xor is its own inverse", func(t *testing.T) {
		a := []byte{0x01, 0x02, 0x03, 0x04}
		b := []byte{0x10, 0x20, 0x30, 0x40}

		x, err := xorBytes(a, b)
		require.NoError(t, err)

		recovered, err := xorBytes(a, x)
		require.NoError(t, err)
		assert.Equal(t, b, recovered)
	})

	t.Run("returns error for mismatched lengths", func(t *testing.T) {
		_, err := xorBytes([]byte{0x01, 0x02}, []byte{0x01})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "length mismatch")
	})
}

func TestConstantTimeEqual(t *testing.T) {
	t.Run("equal values", func(t *testing.T) {
		assert.True(t, constantTimeEqual([]byte("abcd"), []byte("abcd")))
	})

	t.Run("same length, different values", func(t *testing.T) {
		assert.False(t, constantTimeEqual([]byte("abcd"), []byte("abce")))
	})

	t.Run("different lengths", func(t *testing.T) {
		assert.False(t, constantTimeEqual([]byte("abcd"), []byte("abc")))
		assert.False(t, constantTimeEqual(nil, []byte("a")))
	})

	t.Run("both empty", func(t *testing.T) {
		assert.True(t, constantTimeEqual([]byte{}, []byte{}))
	})
}

func TestGenerateNonce(t *testing.T) {
	t.Run("is base64 of 24 bytes", func(t *testing.T) {
		nonce, err := generateNonce()
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(nonce)
		require.NoError(t, err)
		assert.Len(t, raw, nonceLength)
	})

	t.Run("contains no comma", func(t *testing.T) {
		nonce, err := generateNonce()
		require.NoError(t, err)

		assert.NotContains(t, nonce, ",")
	})

	t.Run("successive nonces differ", func(t *testing.T) {
		n1, err := generateNonce()
		require.NoError(t, err)
		n2, err := generateNonce()
		require.NoError(t, err)

		assert.NotEqual(t, n1, n2)
	})
}
