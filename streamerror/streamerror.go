// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package streamerror implements the stream-level error conditions of RFC
// 6120 §4.9.3, grounded directly on the teacher's errors/streamerror
// package (see _examples/other_examples/..._mellium-xmpp__errors-streamerror.go.go).
package streamerror

import (
	"fmt"
	"net"
	"strings"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/stanza"
)

// Condition is one of the defined stream-error conditions, or Unknown for
// an unrecognised one (spec.md §7).
type Condition string

const (
	BadFormat              Condition = "bad-format"
	BadNamespacePrefix     Condition = "bad-namespace-prefix"
	Conflict               Condition = "conflict"
	ConnectionTimeout      Condition = "connection-timeout"
	HostGone               Condition = "host-gone"
	HostUnknown            Condition = "host-unknown"
	ImproperAddressing     Condition = "improper-addressing"
	InternalServerError    Condition = "internal-server-error"
	InvalidFrom            Condition = "invalid-from"
	InvalidNamespace       Condition = "invalid-namespace"
	InvalidXML             Condition = "invalid-xml"
	NotAuthorized          Condition = "not-authorized"
	NotWellFormed          Condition = "not-well-formed"
	PolicyViolation        Condition = "policy-violation"
	RemoteConnectionFailed Condition = "remote-connection-failed"
	Reset                  Condition = "reset"
	ResourceConstraint     Condition = "resource-constraint"
	RestrictedXML          Condition = "restricted-xml"
	SeeOtherHostCond       Condition = "see-other-host"
	SystemShutdown         Condition = "system-shutdown"
	UndefinedCondition     Condition = "undefined-condition"
	UnsupportedEncoding    Condition = "unsupported-encoding"
	UnsupportedFeature     Condition = "unsupported-feature"
	UnsupportedStanzaType  Condition = "unsupported-stanza-type"
	UnsupportedVersion     Condition = "unsupported-version"
	Unknown                Condition = "unknown-condition"
)

// StreamError is a stream-level error, satisfying the error interface.
type StreamError struct {
	Condition Condition
	Text      string
	// OtherHost is set when Condition is see-other-host.
	OtherHost string
}

func (e StreamError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("stream error: %s: %s", e.Condition, e.Text)
	}
	return fmt.Sprintf("stream error: %s", e.Condition)
}

// Predefined, no-text errors for the common cases, mirroring the teacher's
// package-level error values.
var (
	ErrBadFormat              = StreamError{Condition: BadFormat}
	ErrBadNamespacePrefix     = StreamError{Condition: BadNamespacePrefix}
	ErrConflict               = StreamError{Condition: Conflict}
	ErrHostUnknown            = StreamError{Condition: HostUnknown}
	ErrImproperAddressing     = StreamError{Condition: ImproperAddressing}
	ErrInvalidNamespace       = StreamError{Condition: InvalidNamespace}
	ErrInvalidXML             = StreamError{Condition: InvalidXML}
	ErrNotAuthorized          = StreamError{Condition: NotAuthorized}
	ErrNotWellFormed          = StreamError{Condition: NotWellFormed}
	ErrRestrictedXML          = StreamError{Condition: RestrictedXML}
	ErrUndefinedCondition     = StreamError{Condition: UndefinedCondition}
	ErrUnsupportedStanzaType  = StreamError{Condition: UnsupportedStanzaType}
	ErrUnsupportedVersion     = StreamError{Condition: UnsupportedVersion}
	ErrRemoteConnectionFailed = StreamError{Condition: RemoteConnectionFailed}
)

// SeeOtherHost builds a see-other-host error pointing at addr, bracketing
// raw IPv6 literals, matching the teacher's SeeOtherHost helper.
func SeeOtherHost(addr net.Addr) StreamError {
	host := addr.String()
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil && ip.To16() != nil {
		host = "[" + host + "]"
	}
	return StreamError{Condition: SeeOtherHostCond, OtherHost: host}
}

func hostOnly(hostport string) string {
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		return hostport[:i]
	}
	return hostport
}

// conditionSet is used by FromCondition to validate and normalize an
// arbitrary wire condition string into a known Condition, falling back to
// Unknown for anything unrecognised (spec.md §7).
var conditionSet = map[Condition]struct{}{
	BadFormat: {}, BadNamespacePrefix: {}, Conflict: {}, ConnectionTimeout: {},
	HostGone: {}, HostUnknown: {}, ImproperAddressing: {}, InternalServerError: {},
	InvalidFrom: {}, InvalidNamespace: {}, InvalidXML: {}, NotAuthorized: {},
	NotWellFormed: {}, PolicyViolation: {}, RemoteConnectionFailed: {}, Reset: {},
	ResourceConstraint: {}, RestrictedXML: {}, SeeOtherHostCond: {}, SystemShutdown: {},
	UndefinedCondition: {}, UnsupportedEncoding: {}, UnsupportedFeature: {},
	UnsupportedStanzaType: {}, UnsupportedVersion: {},
}

// FromCondition normalizes a wire condition local-name into a Condition,
// returning Unknown if not recognised.
func FromCondition(local string) Condition {
	c := Condition(local)
	if _, ok := conditionSet[c]; ok {
		return c
	}
	return Unknown
}

// Namespace is the XML namespace stream-error conditions are qualified by.
const Namespace = ns.StreamError

// Parse decodes a <stream:error> element into a StreamError, per RFC 6120
// §4.9.3: the condition is the first child other than <text/>, and
// see-other-host carries its replacement host[:port] as that child's text
// content.
func Parse(n *stanza.Node) StreamError {
	se := StreamError{Condition: Unknown}
	found := false
	for _, c := range n.Children {
		if c.Name == "#text" {
			continue
		}
		if c.Name == "text" && c.NS == Namespace {
			se.Text = c.Text()
			continue
		}
		if found {
			continue
		}
		found = true
		se.Condition = FromCondition(c.Name)
		if se.Condition == SeeOtherHostCond {
			se.OtherHost = strings.TrimSpace(c.Text())
		}
	}
	return se
}
