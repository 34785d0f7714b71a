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
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/mongowire/mongowire/go/common/mongoprotocol/scram"
)

// saslStartCommand builds the saslStart command document:
//
//	{ saslStart: 1, mechanism: <name>, payload: BinData(0, payload),
//	  autoAuthorize: 1, options: { skipEmptyExchange: true } }
//
// skipEmptyExchange asks the server to finish in two round trips; servers
// that ignore it answer the proof with done:false and receive one empty
// follow-up payload.
func saslStartCommand(m scram.Mechanism, payload []byte) bsoncore.Document {
	idx, cmd := bsoncore.AppendDocumentStart(nil)
	cmd = bsoncore.AppendInt32Element(cmd, "saslStart", 1)
	cmd = bsoncore.AppendStringElement(cmd, "mechanism", m.String())
	cmd = bsoncore.AppendBinaryElement(cmd, "payload", 0x00, payload)
	cmd = bsoncore.AppendInt32Element(cmd, "autoAuthorize", 1)

	optsIdx, cmd := bsoncore.AppendDocumentElementStart(cmd, "options")
	cmd = bsoncore.AppendBooleanElement(cmd, "skipEmptyExchange", true)
	cmd, _ = bsoncore.AppendDocumentEnd(cmd, optsIdx)

	cmd, _ = bsoncore.AppendDocumentEnd(cmd, idx)
	return cmd
}

// saslContinueCommand builds the saslContinue command document, echoing the
// server's conversationId verbatim.
func saslContinueCommand(conversationID bsoncore.Value, payload []byte) bsoncore.Document {
	idx, cmd := bsoncore.AppendDocumentStart(nil)
	cmd = bsoncore.AppendInt32Element(cmd, "saslContinue", 1)
	if conversationID.Data == nil {
		// A reply relayed from a handshake may have omitted the id.
		cmd = bsoncore.AppendInt32Element(cmd, "conversationId", 0)
	} else {
		cmd = bsoncore.AppendValueElement(cmd, "conversationId", conversationID)
	}
	cmd = bsoncore.AppendBinaryElement(cmd, "payload", 0x00, payload)
	cmd, _ = bsoncore.AppendDocumentEnd(cmd, idx)
	return cmd
}

// saslResponse is a parsed reply to saslStart or saslContinue.
type saslResponse struct {
	// conversationID is retained as a raw value so follow-ups echo exactly
	// what the server sent.
	conversationID bsoncore.Value

	// payload is the SCRAM message carried by the reply.
	payload []byte

	// done is the server's done flag; donePresent distinguishes an explicit
	// done:false from an absent field on an otherwise successful reply.
	done        bool
	donePresent bool
}

// parseSaslResponse validates a reply document and extracts the SASL fields.
// A structured server failure ($err, errmsg, or ok != 1) is returned as a
// *ServerError.
func parseSaslResponse(doc bsoncore.Document) (*saslResponse, error) {
	if err := serverFailure(doc); err != nil {
		return nil, err
	}

	resp := &saslResponse{}

	if cid, err := doc.LookupErr("conversationId"); err == nil {
		resp.conversationID = cid
	}

	if done, err := doc.LookupErr("done"); err == nil {
		if b, ok := done.BooleanOK(); ok {
			resp.done = b
			resp.donePresent = true
		}
	}

	payload, err := doc.LookupErr("payload")
	if err != nil {
		if errors.Is(err, bsoncore.ErrElementNotFound) {
			// The final reply of a finished conversation may omit the
			// payload entirely.
			return resp, nil
		}
		return nil, fmt.Errorf("malformed SASL reply: %w", err)
	}

	resp.payload, err = decodePayload(payload)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// decodePayload accepts both representations servers have used for SASL
// payloads: BSON binary and base64 text.
func decodePayload(v bsoncore.Value) ([]byte, error) {
	if _, data, ok := v.BinaryOK(); ok {
		return data, nil
	}
	if s, ok := v.StringValueOK(); ok {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("malformed SASL reply: payload is not valid base64: %w", err)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("malformed SASL reply: payload has unexpected type %s", v.Type)
}

// serverFailure returns a *ServerError when the reply document reports one,
// nil otherwise.
func serverFailure(doc bsoncore.Document) error {
	if v, err := doc.LookupErr("$err"); err == nil {
		if msg, ok := v.StringValueOK(); ok {
			return &ServerError{Code: lookupCode(doc), Message: msg}
		}
	}
	if v, err := doc.LookupErr("errmsg"); err == nil {
		if msg, ok := v.StringValueOK(); ok {
			return &ServerError{Code: lookupCode(doc), Message: msg}
		}
	}

	ok, err := doc.LookupErr("ok")
	if err != nil {
		// Replies relayed from a handshake sub-document may not carry their
		// own ok field; absence is not a failure.
		return nil
	}
	if n, valid := numericValue(ok); valid && n != 1 {
		return &ServerError{Code: lookupCode(doc), Message: "SASL conversation failed"}
	}
	return nil
}

func lookupCode(doc bsoncore.Document) int32 {
	if v, err := doc.LookupErr("code"); err == nil {
		if code, ok := v.Int32OK(); ok {
			return code
		}
	}
	return 0
}

// numericValue normalizes the numeric encodings servers use for ok.
func numericValue(v bsoncore.Value) (float64, bool) {
	switch v.Type {
	case bsontype.Double:
		d, ok := v.DoubleOK()
		return d, ok
	case bsontype.Int32:
		i, ok := v.Int32OK()
		return float64(i), ok
	case bsontype.Int64:
		i, ok := v.Int64OK()
		return float64(i), ok
	default:
		return 0, false
	}
}
