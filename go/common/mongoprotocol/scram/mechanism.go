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
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
)

const (
	// ScramSHA1Mechanism is the SASL mechanism name for SCRAM-SHA-1.
	ScramSHA1Mechanism Mechanism = "SCRAM-SHA-1"

	// ScramSHA256Mechanism is the SASL mechanism name for SCRAM-SHA-256.
	ScramSHA256Mechanism Mechanism = "SCRAM-SHA-256"
)

// Mechanism selects the SCRAM hash family. Its value is the SASL mechanism
// name as it appears on the wire.
type Mechanism string

// HashNew returns the constructor for the mechanism's hash function.
// It panics on an unknown mechanism; mechanisms are selected from the
// constants above, never parsed from untrusted input.
func (m Mechanism) HashNew() func() hash.Hash {
	switch m {
	case ScramSHA1Mechanism:
		return sha1.New
	case ScramSHA256Mechanism:
		return sha256.New
	default:
		panic(fmt.Sprintf("unknown SCRAM mechanism %q", string(m)))
	}
}

// KeyLen returns the hash output length in bytes: 20 for SCRAM-SHA-1,
// 32 for SCRAM-SHA-256. Derived keys and PBKDF2 outputs all have this length.
func (m Mechanism) KeyLen() int {
	switch m {
	case ScramSHA1Mechanism:
		return sha1.Size
	case ScramSHA256Mechanism:
		return sha256.Size
	default:
		panic(fmt.Sprintf("unknown SCRAM mechanism %q", string(m)))
	}
}

func (m Mechanism) String() string {
	return string(m)
}
