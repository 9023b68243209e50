// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package auth

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/corexmpp/xmpp/internal/attr"
	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/stanza"
	"github.com/corexmpp/xmpp/xmlconn"
)

// LegacyAuth drives the jabber:iq:auth flow of spec.md §4.5's last bullet.
// mellium.im/sasl has no analog for this pre-SASL mechanism, so it is
// implemented directly here, grounded on the classic shape of
// jeidee-goexmpp's auth struct and lexszero-go-xmpp2's plain-auth iq
// construction: send iq-get with <query><username>, then iq-set carrying
// username/resource and either <password> (if plaintextAllowed) or a
// SHA1(streamID||password) <digest>.
func LegacyAuth(conn *xmlconn.Conn, user, password, resource, streamID string, plaintextAllowed bool) error {
	getID := attr.RandomID(attr.IDLen)
	query := stanza.NewBuilder("iq", ns.Client).
		Attr("type", "get").
		Attr("id", getID).
		OpenChildNS("query", ns.LegacyAuth).
		OpenChild("username").Text(user).Close().
		Close().
		Node()
	if err := conn.SendStanza(stanza.Wrap(query)); err != nil {
		return &Error{Kind: KindNetwork, Msg: "auth: legacy: " + err.Error()}
	}

	reply, err := conn.RecvStanza()
	if err != nil {
		return &Error{Kind: KindNetwork, Msg: "auth: legacy: " + err.Error()}
	}
	if reply.ID() != getID {
		return &Error{Kind: KindInvalidReply, Msg: "auth: legacy: id mismatch on query reply"}
	}
	q := reply.ChildNS("query", ns.LegacyAuth)
	wantsDigest := q != nil && q.Child("digest") != nil
	wantsPassword := q != nil && q.Child("password") != nil

	setID := attr.RandomID(attr.IDLen)
	b := stanza.NewBuilder("iq", ns.Client).
		Attr("type", "set").
		Attr("id", setID).
		OpenChildNS("query", ns.LegacyAuth).
		OpenChild("username").Text(user).Close().
		OpenChild("resource").Text(resource).Close()

	switch {
	case wantsDigest || !plaintextAllowed:
		if !wantsDigest && !plaintextAllowed {
			return &Error{Kind: KindNotSupported, Msg: "auth: legacy: server requires plaintext password but it is not allowed"}
		}
		digest := sha1.Sum([]byte(streamID + password))
		b = b.OpenChild("digest").Text(hex.EncodeToString(digest[:])).Close()
	case wantsPassword:
		b = b.OpenChild("password").Text(password).Close()
	default:
		return &Error{Kind: KindNotSupported, Msg: "auth: legacy: server offered neither digest nor password"}
	}
	setIQ := b.Close().Node()

	if err := conn.SendStanza(stanza.Wrap(setIQ)); err != nil {
		return &Error{Kind: KindNetwork, Msg: "auth: legacy: " + err.Error()}
	}
	result, err := conn.RecvStanza()
	if err != nil {
		return &Error{Kind: KindNetwork, Msg: "auth: legacy: " + err.Error()}
	}
	if result.ID() != setID {
		return &Error{Kind: KindInvalidReply, Msg: "auth: legacy: id mismatch on set reply"}
	}
	if result.SubKind() == stanza.SubError {
		return &Error{Kind: KindNotAuthorized, Msg: "auth: legacy: server rejected credentials"}
	}
	return nil
}
