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
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when cancellation is observed at a
	// suspension point. There is no server-side compensating action; the
	// attempt is simply abandoned.
	ErrCancelled = errors.New("authentication cancelled")

	// ErrMissingCredential is returned when Auth runs without a credential.
	ErrMissingCredential = errors.New("authentication requires a credential")

	// ErrMissingConnection is returned when Auth runs without a connection.
	ErrMissingConnection = errors.New("authentication requires a connection")
)

// TransportError wraps a connection-level failure during the conversation.
// Whether to retry the attempt is the caller's decision; the conversation
// itself never retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during SASL conversation: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a structured error returned by the server during the
// conversation ($err, errmsg, or ok:0). It carries the server's own message
// and code, never any locally derived secret.
type ServerError struct {
	Code    int32
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server returned error during SASL conversation: %s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("server returned error during SASL conversation: %s", e.Message)
}
