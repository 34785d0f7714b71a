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
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// clientKeyLiteral is the string "Client Key" used in SCRAM.
	clientKeyLiteral = "Client Key"

	// serverKeyLiteral is the string "Server Key" used in SCRAM.
	serverKeyLiteral = "Server Key"

	// nonceLength is the number of random bytes in a client nonce. The nonce
	// travels base64 encoded.
	nonceLength = 24
)

// saslprepWarnOnce gates the once-per-process warning emitted when a password
// cannot be SASLprep normalized and its raw bytes are used instead.
var saslprepWarnOnce sync.Once

// generateNonce returns a fresh client nonce: 24 bytes from the system
// random source, base64 encoded so it is printable and comma free.
func generateNonce() (string, error) {
	raw := make([]byte, nonceLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNonceGeneration, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// MongoPasswordDigest computes MongoDB's legacy credential digest:
// lowercase hex of MD5(username + ":mongo:" + password). SCRAM-SHA-1 feeds
// this digest, not the raw password, into key derivation.
func MongoPasswordDigest(username, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	h := md5.New()
	h.Write([]byte(username))
	h.Write([]byte(":mongo:"))
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PrepPassword returns the password representation fed into PBKDF2 for the
// given mechanism.
//
// SCRAM-SHA-1 uses the MD5 credential digest (see MongoPasswordDigest).
// SCRAM-SHA-256 uses SASLprep (RFC 4013); a password that SASLprep rejects
// falls back to its raw UTF-8 bytes with a one-time warning on the given
// logger, matching the lenient behavior of deployed drivers.
//
// The returned bytes are also the password component of the salted-password
// cache key, so the two mechanisms can never collide on the same entry.
func PrepPassword(m Mechanism, username, password string, logger *slog.Logger) ([]byte, error) {
	switch m {
	case ScramSHA1Mechanism:
		digest, err := MongoPasswordDigest(username, password)
		if err != nil {
			return nil, err
		}
		return []byte(digest), nil

	case ScramSHA256Mechanism:
		prepped, err := stringprep.SASLprep.Prepare(password)
		if err != nil {
			if logger == nil {
				logger = slog.Default()
			}
			saslprepWarnOnce.Do(func() {
				logger.Warn("password could not be SASLprep normalized, using raw bytes",
					"mechanism", m.String(),
				)
			})
			return []byte(password), nil
		}
		return []byte(prepped), nil

	default:
		panic(fmt.Sprintf("unknown SCRAM mechanism %q", string(m)))
	}
}

// ComputeSaltedPassword computes the SCRAM SaltedPassword:
// Hi(password, salt, iterations), where Hi is PBKDF2 with the mechanism's
// HMAC and an output length equal to the hash size. The password argument is
// the already-prepped representation (see PrepPassword).
func ComputeSaltedPassword(m Mechanism, password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, m.KeyLen(), m.HashNew())
}

// ComputeClientKey computes ClientKey = HMAC(SaltedPassword, "Client Key").
func ComputeClientKey(m Mechanism, saltedPassword []byte) []byte {
	return computeHMAC(m, saltedPassword, []byte(clientKeyLiteral))
}

// ComputeStoredKey computes StoredKey = H(ClientKey).
func ComputeStoredKey(m Mechanism, clientKey []byte) []byte {
	return computeHash(m, clientKey)
}

// ComputeServerKey computes ServerKey = HMAC(SaltedPassword, "Server Key").
func ComputeServerKey(m Mechanism, saltedPassword []byte) []byte {
	return computeHMAC(m, saltedPassword, []byte(serverKeyLiteral))
}

// ComputeClientSignature computes ClientSignature = HMAC(StoredKey, AuthMessage).
func ComputeClientSignature(m Mechanism, storedKey []byte, authMessage string) []byte {
	return computeHMAC(m, storedKey, []byte(authMessage))
}

// ComputeServerSignature computes ServerSignature = HMAC(ServerKey, AuthMessage).
func ComputeServerSignature(m Mechanism, serverKey []byte, authMessage string) []byte {
	return computeHMAC(m, serverKey, []byte(authMessage))
}

// computeHash computes H(data) with the mechanism's hash.
func computeHash(m Mechanism, data []byte) []byte {
	h := m.HashNew()()
	h.Write(data)
	return h.Sum(nil)
}

// computeHMAC computes HMAC(key, message) with the mechanism's hash.
func computeHMAC(m Mechanism, key, message []byte) []byte {
	mac := hmac.New(m.HashNew(), key)
	mac.Write(message)
	return mac.Sum(nil)
}

// xorBytes returns a XOR b.
// Returns an error if a and b have different lengths; the SCRAM pipeline
// only ever XORs same-length keyed HMAC outputs, so a mismatch is a
// programming error surfaced loudly rather than truncated silently.
func xorBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("xorBytes: length mismatch (a=%d, b=%d)", len(a), len(b))
	}

	result := make([]byte, len(a))
	for i := range a {
		result[i] = a[i] ^ b[i]
	}
	return result, nil
}

// constantTimeEqual reports whether a and b are equal without leaking timing
// information about where they differ. Differing lengths return false
// immediately; the length of a SCRAM signature is public.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
