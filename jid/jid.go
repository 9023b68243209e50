// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jid implements the XMPP address format: [node@]domain[/resource].
package jid

import (
	"encoding/xml"
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

// Errors returned while decoding a JID string, following spec.md §3's
// exhaustive list of decoder failure modes.
var (
	ErrEmpty         = errors.New("jid: address is empty")
	ErrEmptyDomain   = errors.New("jid: domainpart is empty")
	ErrEmptyNode     = errors.New("jid: localpart is empty")
	ErrEmptyResource = errors.New("jid: resourcepart is empty")
	ErrMultipleAt    = errors.New("jid: address contains more than one '@'")
	ErrTooLong       = errors.New("jid: part exceeds 1023 bytes")
)

const maxPartLen = 1023

// JID is an immutable XMPP address of the form [node@]domain[/resource].
type JID struct {
	node     string
	domain   string
	resource string
}

// New builds a JID directly from its parts without any further validation
// beyond length and emptiness rules. domain must not be empty.
func New(node, domain, resource string) (*JID, error) {
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	if len(node) > maxPartLen || len(domain) > maxPartLen || len(resource) > maxPartLen {
		return nil, ErrTooLong
	}
	folded, err := idna.Lookup.ToUnicode(domain)
	if err != nil {
		// Not all domains (e.g. literal IPs, or already-folded test
		// fixtures) round-trip through IDNA; fall back to the raw value
		// the way the teacher's jid package tolerates non-IDNA hosts.
		folded = domain
	}
	return &JID{node: node, domain: strings.ToLower(folded), resource: resource}, nil
}

// Parse decodes s into a JID, applying the failure rules from spec.md §3:
// empty string, empty domain, '@' with empty node or domain, '/' with empty
// resource, or more than one '@' are all rejected.
func Parse(s string) (*JID, error) {
	if s == "" {
		return nil, ErrEmpty
	}

	var node, domain, resource string
	rest := s

	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		resource = rest[idx+1:]
		rest = rest[:idx]
		if resource == "" {
			return nil, ErrEmptyResource
		}
	}

	if strings.Count(rest, "@") > 1 {
		return nil, ErrMultipleAt
	}
	if idx := strings.IndexByte(rest, '@'); idx >= 0 {
		node = rest[:idx]
		domain = rest[idx+1:]
		if node == "" {
			return nil, ErrEmptyNode
		}
		if domain == "" {
			return nil, ErrEmptyDomain
		}
	} else {
		domain = rest
	}
	if domain == "" {
		return nil, ErrEmptyDomain
	}

	return New(node, domain, resource)
}

// Localpart returns the node part, or "" if absent.
func (j *JID) Localpart() string { return j.node }

// Domainpart returns the mandatory domain part.
func (j *JID) Domainpart() string { return j.domain }

// Resourcepart returns the resource part, or "" if absent.
func (j *JID) Resourcepart() string { return j.resource }

// Bare returns the bare form of the JID (node@domain, or just domain).
func (j *JID) Bare() *JID {
	return &JID{node: j.node, domain: j.domain}
}

// WithResource returns a copy of the bare JID with resource attached.
func (j *JID) WithResource(resource string) (*JID, error) {
	if resource == "" {
		return nil, ErrEmptyResource
	}
	return &JID{node: j.node, domain: j.domain, resource: resource}, nil
}

// Equal reports whether j and other denote the same address.
func (j *JID) Equal(other *JID) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.node == other.node && j.domain == other.domain && j.resource == other.resource
}

// EqualBare reports whether j and other share the same bare JID.
func (j *JID) EqualBare(other *JID) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.node == other.node && j.domain == other.domain
}

// String renders the canonical [node@]domain[/resource] form.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	var b strings.Builder
	if j.node != "" {
		b.WriteString(j.node)
		b.WriteByte('@')
	}
	b.WriteString(j.domain)
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// MarshalXMLAttr implements xml.MarshalerAttr so JIDs can be embedded
// directly as struct fields, matching the teacher's jid.JID usage in
// stream.go and bind.go.
func (j *JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j == nil {
		return xml.Attr{Name: name}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = *parsed
	return nil
}
