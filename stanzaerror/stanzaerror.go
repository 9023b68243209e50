// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stanzaerror implements XMPP stanza-level errors (RFC 6120 §8.3,
// XEP-0086 legacy codes), grounded on the enumeration style of the
// teacher's errors/streamerror package (see streamerror.Condition for the
// stream-level analog).
package stanzaerror

import (
	"fmt"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/stanza"
)

// Type is the XEP-0086 error type attribute.
type Type string

const (
	TypeAuth     Type = "auth"
	TypeCancel   Type = "cancel"
	TypeModify   Type = "modify"
	TypeWait     Type = "wait"
	TypeContinue Type = "continue"
)

// Condition is the defined-condition element name within the error.
type Condition string

// Core conditions from RFC 6120 §8.3.3.
const (
	BadRequest            Condition = "bad-request"
	Conflict              Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	Gone                  Condition = "gone"
	InternalServerError   Condition = "internal-server-error"
	ItemNotFound          Condition = "item-not-found"
	JIDMalformed          Condition = "jid-malformed"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	PolicyViolation       Condition = "policy-violation"
	RecipientUnavailable  Condition = "recipient-unavailable"
	Redirect              Condition = "redirect"
	RegistrationRequired  Condition = "registration-required"
	RemoteServerNotFound  Condition = "remote-server-not-found"
	RemoteServerTimeout   Condition = "remote-server-timeout"
	ResourceConstraint    Condition = "resource-constraint"
	ServiceUnavailable    Condition = "service-unavailable"
	SubscriptionRequired  Condition = "subscription-required"
	UndefinedCondition    Condition = "undefined-condition"
	UnexpectedRequest     Condition = "unexpected-request"
)

// legacyCode maps conditions to their XEP-0086 numeric codes.
var legacyCode = map[Condition]int{
	BadRequest:            400,
	Conflict:              409,
	FeatureNotImplemented: 501,
	Forbidden:             403,
	Gone:                  302,
	InternalServerError:   500,
	ItemNotFound:          404,
	JIDMalformed:          400,
	NotAcceptable:         406,
	NotAllowed:            405,
	NotAuthorized:         401,
	PolicyViolation:       404,
	RecipientUnavailable:  404,
	Redirect:              302,
	RegistrationRequired:  407,
	RemoteServerNotFound:  404,
	RemoteServerTimeout:   504,
	ResourceConstraint:    500,
	ServiceUnavailable:    503,
	SubscriptionRequired:  407,
	UndefinedCondition:    500,
	UnexpectedRequest:     400,
}

// Error is a decoded or to-be-encoded XMPP stanza error.
type Error struct {
	Type      Type
	Condition Condition
	Text      string
	Lang      string
	// Specialized, application-specific child element, if any.
	Specialized *stanza.Node
}

func (e Error) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("stanza error (%s/%s): %s", e.Type, e.Condition, e.Text)
	}
	return fmt.Sprintf("stanza error (%s/%s)", e.Type, e.Condition)
}

// ToNode appends an <error/> child encoding e onto node, implementing
// spec.md §4.1's stanza_error_to_node: a type attribute, legacy numeric
// code, a <CONDITION/> in the stanzas namespace, an optional specialized
// child, and a <text/> element.
func ToNode(e Error, node *stanza.Node) *stanza.Node {
	errNode := stanza.NewNode("error", node.NS)
	errNode.SetAttr("type", string(e.Type))
	if code, ok := legacyCode[e.Condition]; ok {
		errNode.SetAttr("code", fmt.Sprintf("%d", code))
	}
	errNode.AddChild(stanza.NewNode(string(e.Condition), ns.StanzaError))
	if e.Specialized != nil {
		errNode.AddChild(e.Specialized)
	}
	if e.Text != "" {
		text := stanza.NewNode("text", ns.StanzaError)
		text.SetText(e.Text)
		if e.Lang != "" {
			text.SetAttrNS("lang", ns.XML, e.Lang)
		}
		errNode.AddChild(text)
	}
	node.AddChild(errNode)
	return node
}

// FromNode decodes an <error/> child of node, if present.
func FromNode(node *stanza.Node) (Error, bool) {
	errNode := node.Child("error")
	if errNode == nil {
		return Error{}, false
	}
	typ, _ := errNode.Attr("type")
	var e Error
	e.Type = Type(typ)
	for _, c := range errNode.Children {
		switch {
		case c.NS == ns.StanzaError && c.Name == "text":
			e.Text = c.Text()
			lang, _ := c.AttrNS("lang", ns.XML)
			e.Lang = lang
		case c.NS == ns.StanzaError:
			e.Condition = Condition(c.Name)
		default:
			e.Specialized = c
		}
	}
	return e, true
}
