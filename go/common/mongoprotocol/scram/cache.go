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
	"strconv"
	"sync"
)

// cacheCapacity bounds the salted-password cache. Cache keys embed the
// prepped password, so an unbounded map would grow with every distinct
// credential a long-lived process authenticates.
const cacheCapacity = 200

// deriveFunc computes a salted password. The indirection exists so tests can
// count derivations.
type deriveFunc func(m Mechanism, password, salt []byte, iterations int) []byte

// saltedPasswordCache memoizes PBKDF2 outputs across authentication
// attempts. With iteration counts of 4096 and up, Hi() dominates the cost of
// a connection handshake; one entry per (credential, salt, iterations)
// triple keeps reconnect storms cheap.
//
// When the cache reaches capacity the whole map is cleared before the next
// insert. The expected population is one salt per user per server, so a
// purge is simpler than LRU bookkeeping and equally effective.
type saltedPasswordCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	derive  deriveFunc
}

func newSaltedPasswordCache(derive deriveFunc) *saltedPasswordCache {
	return &saltedPasswordCache{
		entries: make(map[string][]byte, cacheCapacity),
		derive:  derive,
	}
}

// passwordCache is the process-wide instance used by conversations.
var passwordCache = newSaltedPasswordCache(ComputeSaltedPassword)

// cacheKey builds the memoization key. The password component is the
// prepped representation (MD5 hex digest for SHA-1, SASLprep output for
// SHA-256), so the two mechanisms cannot collide on the same entry.
func cacheKey(password, salt []byte, iterations int) string {
	return string(password) + "_" + base64.StdEncoding.EncodeToString(salt) + "_" + strconv.Itoa(iterations)
}

// GetOrCompute returns the salted password for the given factors, deriving
// and memoizing it on a miss. Derivation runs outside the lock; two
// concurrent misses for the same key may both derive, which is harmless
// because the result is deterministic.
func (c *saltedPasswordCache) GetOrCompute(m Mechanism, password, salt []byte, iterations int) []byte {
	key := cacheKey(password, salt, iterations)

	c.mu.Lock()
	if cached, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	salted := c.derive(m, password, salt, iterations)

	c.mu.Lock()
	if len(c.entries) >= cacheCapacity {
		clear(c.entries)
	}
	c.entries[key] = salted
	c.mu.Unlock()

	return salted
}

// Len returns the number of cached entries.
func (c *saltedPasswordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
