// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/base64"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/stanza"
	"github.com/corexmpp/xmpp/xmlconn"
)

// Run drives the SASL challenge/response loop of spec.md §4.5's Flow over
// conn using mech, grounded on the teacher's sasl.go Negotiate closure
// (send <auth/>, loop decoding <challenge/>/<success/>/<failure/>, encoding
// <response/>). It returns nil on success; the connection is left
// positioned to be Reset() and restreamed by the caller (the connector).
func Run(conn *xmlconn.Conn, mech Mechanism) error {
	initial, err := mech.InitialResponse()
	if err != nil {
		return &Error{Kind: KindInitFailed, Msg: "auth: " + err.Error()}
	}

	authNode := stanza.NewNode("auth", ns.SASL)
	authNode.SetAttr("mechanism", mech.Name())
	authNode.SetText(encodeInitial(initial))
	if err := conn.SendStanza(stanza.Wrap(authNode)); err != nil {
		return &Error{Kind: KindNetwork, Msg: "auth: " + err.Error()}
	}

	for {
		reply, err := conn.RecvStanza()
		if err != nil {
			return &Error{Kind: KindNetwork, Msg: "auth: " + err.Error()}
		}
		switch reply.Kind() {
		case stanza.KindChallenge:
			data, decErr := base64.StdEncoding.DecodeString(reply.Text())
			if decErr != nil {
				return &Error{Kind: KindInvalidReply, Msg: "auth: bad base64 in challenge"}
			}
			resp, err := mech.HandleChallenge(data)
			if err != nil {
				return &Error{Kind: KindFailure, Msg: "auth: " + err.Error()}
			}
			respNode := stanza.NewNode("response", ns.SASL)
			respNode.SetText(base64.StdEncoding.EncodeToString(resp))
			if err := conn.SendStanza(stanza.Wrap(respNode)); err != nil {
				return &Error{Kind: KindNetwork, Msg: "auth: " + err.Error()}
			}
		case stanza.KindSuccess:
			var data []byte
			if text := reply.Text(); text != "" {
				data, err = base64.StdEncoding.DecodeString(text)
				if err != nil {
					return &Error{Kind: KindInvalidReply, Msg: "auth: bad base64 in success"}
				}
			}
			if err := mech.HandleSuccess(data); err != nil {
				return &Error{Kind: KindFailure, Msg: "auth: " + err.Error()}
			}
			return nil
		case stanza.KindFailure:
			condition := "not-authorized"
			if len(reply.Children) > 0 {
				condition = reply.Children[0].Name
			}
			return &Error{Kind: conditionKind(condition), Msg: "auth: failure: " + condition}
		default:
			return &Error{Kind: KindInvalidReply, Msg: "auth: unexpected stanza during SASL negotiation"}
		}
	}
}

// encodeInitial implements RFC 6120 §6.4.2: a present-but-empty initial
// response is transmitted as a single '=' rather than zero bytes.
func encodeInitial(resp []byte) string {
	if len(resp) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(resp)
}
