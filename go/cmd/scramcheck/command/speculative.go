// Copyright 2025 The Mongowire Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

func speculativeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "speculative",
		Short: "Run a SCRAM conversation through the speculative handshake fast path",
		Long: `Embeds the first client message into a connection handshake, consumes the
server's speculative reply, and finishes the conversation. A successful run
submits no saslStart command at all.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, true)
		},
	}
}

// helloCommand builds the handshake document the speculative payload rides
// on.
func helloCommand() bsoncore.Document {
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendInt32Element(doc, "hello", 1)
	doc = bsoncore.AppendStringElement(doc, "client", "scramcheck")
	doc, _ = bsoncore.AppendDocumentEnd(doc, idx)
	return doc
}
