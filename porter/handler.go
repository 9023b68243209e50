// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package porter

import (
	"strings"

	"github.com/corexmpp/xmpp/jid"
	"github.com/corexmpp/xmpp/stanza"
)

// Callback is invoked for a stanza that matches a Handler's filters. It
// returns true to consume the stanza (stop dispatch) or false to let
// iteration continue to the next handler, per spec.md §4.4.2.
type Callback func(s stanza.Stanza) bool

// Handler is a single dispatch entry registered via Porter.Register.
type Handler struct {
	Kind      stanza.Kind
	SubKind   stanza.SubKind // "" matches any sub-kind
	From      *jid.JID       // nil matches any sender
	Priority  int
	MatchTree *stanza.Node // optional structural template
	Callback  Callback

	id  int
	seq int
}

// Handle is an opaque handle returned by Register, used to Unregister.
type Handle int

// matchesFrom implements spec.md §4.4.2's from-matching rules.
func matchesFrom(filter *jid.JID, account *jid.JID, from string) bool {
	if filter == nil {
		return true
	}
	if from == "" {
		// Incoming iq from the server: matches the account's bare JID
		// filter and the nil filter (already handled above).
		return filter.EqualBare(account.Bare())
	}
	fromJID, err := jid.Parse(from)
	if err != nil {
		return false
	}
	if filter.Resourcepart() == "" {
		return filter.EqualBare(fromJID)
	}
	return filter.Equal(fromJID)
}

// matchesTemplate implements spec.md §4.4.2's match-tree semantics: every
// element in template has a structurally present counterpart in actual
// (name, namespace, and each specified attribute's value; text content is
// matched only when the template specifies it). Child order is irrelevant
// and extra elements/attributes in actual are ignored.
func matchesTemplate(template, actual *stanza.Node) bool {
	if template == nil {
		return true
	}
	if actual == nil {
		return false
	}
	if template.Name != actual.Name {
		return false
	}
	if template.NS != "" && template.NS != actual.NS {
		return false
	}
	for _, a := range template.Attrs {
		v, ok := actual.AttrNS(a.Name, a.NS)
		if !ok || v != a.Value {
			return false
		}
	}
	if text := strings.TrimSpace(template.Text()); text != "" {
		if strings.TrimSpace(actual.Text()) != text {
			return false
		}
	}
	for _, tc := range textlessChildren(template.Children) {
		if !anyChildMatches(tc, actual.Children) {
			return false
		}
	}
	return true
}

func anyChildMatches(template *stanza.Node, candidates []*stanza.Node) bool {
	for _, c := range candidates {
		if c.Name == template.Name && matchesTemplate(template, c) {
			return true
		}
	}
	return false
}

func textlessChildren(children []*stanza.Node) []*stanza.Node {
	out := make([]*stanza.Node, 0, len(children))
	for _, c := range children {
		if c.Name != "#text" {
			out = append(out, c)
		}
	}
	return out
}

// matches reports whether h applies to s, addressed to account.
func (h *Handler) matches(s stanza.Stanza, account *jid.JID) bool {
	if h.Kind != "" && h.Kind != s.Kind() {
		return false
	}
	if h.SubKind != "" && h.SubKind != s.SubKind() {
		return false
	}
	if !matchesFrom(h.From, account, s.From()) {
		return false
	}
	if h.MatchTree != nil && !matchesTemplate(h.MatchTree, s.Node) {
		return false
	}
	return true
}
