// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import "github.com/corexmpp/xmpp/internal/ns"

// Kind is the top-level element name of a stanza, per spec.md §3.
type Kind string

const (
	KindMessage   Kind = "message"
	KindPresence  Kind = "presence"
	KindIQ        Kind = "iq"
	KindFeatures  Kind = "features"
	KindError     Kind = "error"
	KindAuth      Kind = "auth"
	KindChallenge Kind = "challenge"
	KindResponse  Kind = "response"
	KindSuccess   Kind = "success"
	KindFailure   Kind = "failure"
)

// SubKind is the stanza's `type` attribute, e.g. get/set/result/error for
// iq, or chat/normal/headline/subscribe/… for message/presence.
type SubKind string

const (
	SubGet    SubKind = "get"
	SubSet    SubKind = "set"
	SubResult SubKind = "result"
	SubError  SubKind = "error"
)

// Stanza wraps a *Node restricted to the XMPP stanza profile and exposes
// the derived properties spec.md §3 requires.
type Stanza struct {
	*Node
}

// Wrap adapts an existing node as a Stanza view.
func Wrap(n *Node) Stanza { return Stanza{Node: n} }

// Kind returns the stanza's top element name.
func (s Stanza) Kind() Kind { return Kind(s.Name) }

// SubKind returns the stanza's `type` attribute.
func (s Stanza) SubKind() SubKind {
	v, _ := s.Attr("type")
	return SubKind(v)
}

// From returns the `from` attribute, or "" if absent.
func (s Stanza) From() string {
	v, _ := s.Attr("from")
	return v
}

// To returns the `to` attribute, or "" if absent.
func (s Stanza) To() string {
	v, _ := s.Attr("to")
	return v
}

// ID returns the `id` attribute, or "" if absent.
func (s Stanza) ID() string {
	v, _ := s.Attr("id")
	return v
}

// Lang returns the `xml:lang` attribute, or "" if absent.
func (s Stanza) Lang() string {
	v, _ := s.AttrNS("lang", ns.XML)
	return v
}

// IsIQQuery reports whether s is an iq of sub-kind get or set, per spec.md
// §3's "IQ id" invariant.
func (s Stanza) IsIQQuery() bool {
	return s.Kind() == KindIQ && (s.SubKind() == SubGet || s.SubKind() == SubSet)
}

// IQResult builds a reply iq of sub-kind result to request, copying its id,
// swapping from/to, and appending extra as children, per spec.md §4.1.
func IQResult(request Stanza, extra ...*Node) Stanza {
	return replyIQ(request, SubResult, extra)
}

// IQError builds a reply iq of sub-kind error to request, copying its id,
// swapping from/to, and appending extra as children. stanzaerror.ToNode
// adds an encoded <error/> child to a node such as the returned reply.
func IQError(request Stanza, extra ...*Node) Stanza {
	return replyIQ(request, SubError, extra)
}

func replyIQ(request Stanza, sub SubKind, extra []*Node) Stanza {
	reply := NewNode("iq", request.NS)
	reply.SetAttr("id", request.ID())
	reply.SetAttr("type", string(sub))
	if from := request.To(); from != "" {
		reply.SetAttr("from", from)
	}
	if to := request.From(); to != "" {
		reply.SetAttr("to", to)
	}
	for _, c := range extra {
		reply.AddChild(c)
	}
	return Stanza{Node: reply}
}
