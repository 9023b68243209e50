// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns holds the well-known XML namespaces used throughout the
// library so that they are declared in exactly one place.
package ns

// Stream-level namespaces.
const (
	Stream = "http://etherx.jabber.org/streams"
	Client = "jabber:client"
	Server = "jabber:server"

	StreamError = "urn:ietf:params:xml:ns:xmpp-streams"
	StanzaError = "urn:ietf:params:xml:ns:xmpp-stanzas"

	TLS     = "urn:ietf:params:xml:ns:xmpp-tls"
	SASL    = "urn:ietf:params:xml:ns:xmpp-sasl"
	Bind    = "urn:ietf:params:xml:ns:xmpp-bind"
	Session = "urn:ietf:params:xml:ns:xmpp-session"

	LegacyAuth = "jabber:iq:auth"

	SM = "urn:xmpp:sm:3"

	DataForm = "jabber:x:data"
	Caps     = "http://jabber.org/protocol/caps"

	DiscoInfo = "http://jabber.org/protocol/disco#info"

	XML = "http://www.w3.org/XML/1998/namespace"
)

// prefix is a process-wide registry mapping namespace URIs to preferred
// attribute prefixes, consulted by stanza's serializer (see
// stanza.startElement) when emitting a namespaced attribute. It mirrors the
// teacher's practice of keeping namespace constants centralized, extended
// here into a small one-shot-initialized lookup as described in spec.md
// §9 ("Global mutable state").
var prefix = map[string]string{
	XML: "xml",
}

// SetPrefix registers the preferred serialization prefix for uri. It is
// intended to be called during program startup, before any stanza is
// serialized; calling it concurrently with in-flight serialization has
// undefined effect, matching spec.md §9.
func SetPrefix(uri, p string) {
	prefix[uri] = p
}

// LookupPrefix returns the registered prefix for uri, if any.
func LookupPrefix(uri string) (string, bool) {
	p, ok := prefix[uri]
	return p, ok
}
