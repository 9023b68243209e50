// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package caps

import (
	"errors"
	"testing"

	"github.com/corexmpp/xmpp/form"
)

// TestCapsSimple reproduces the XEP-0115 §5.4 "Simple Generation Example".
func TestCapsSimple(t *testing.T) {
	identities := []Identity{{Category: "client", Type: "pc", Name: "Exodus 0.9.1"}}
	features := []string{
		"http://jabber.org/protocol/disco#info",
		"http://jabber.org/protocol/disco#items",
		"http://jabber.org/protocol/muc",
		"http://jabber.org/protocol/caps",
	}
	ver, err := Hash(identities, features, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	const want = "QgayPKawpkPSDYmwT/WM94uAlu0="
	if ver != want {
		t.Fatalf("Hash = %q, want %q", ver, want)
	}
}

// TestCapsComplex reproduces the XEP-0115 §5.4 "Complex Generation
// Example": two identities differing only by language, and an extended
// software-info data form.
func TestCapsComplex(t *testing.T) {
	identities := []Identity{
		{Category: "client", Type: "pc", Lang: "en", Name: "Psi 0.11"},
		{Category: "client", Type: "pc", Lang: "el", Name: "Ψ 0.11"},
	}
	features := []string{
		"http://jabber.org/protocol/disco#info",
		"http://jabber.org/protocol/disco#items",
		"http://jabber.org/protocol/muc",
		"http://jabber.org/protocol/caps",
	}
	softwareInfo := &form.Form{
		Type: form.TypeResult,
		Fields: []*form.Field{
			{Var: "FORM_TYPE", Type: form.FieldHidden, Values: []string{"urn:xmpp:dataforms:softwareinfo"}},
			{Var: "ip_version", Values: []string{"ipv4", "ipv6"}},
			{Var: "os", Values: []string{"Mac"}},
			{Var: "os_version", Values: []string{"10.5.1"}},
			{Var: "software", Values: []string{"Psi"}},
			{Var: "software_version", Values: []string{"0.11"}},
		},
	}

	ver, err := Hash(identities, features, []*form.Form{softwareInfo})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	const want = "q07IKJEyjvHSyhy//CH0CxmKi8w="
	if ver != want {
		t.Fatalf("Hash = %q, want %q", ver, want)
	}
}

// TestCapsInvalidDuplicateFormType verifies that two extended forms
// sharing a FORM_TYPE produce an undefined hash, per spec.md §4.7 step 4.
func TestCapsInvalidDuplicateFormType(t *testing.T) {
	dup := func() *form.Form {
		return &form.Form{
			Fields: []*form.Field{
				{Var: "FORM_TYPE", Type: form.FieldHidden, Values: []string{"urn:xmpp:dataforms:softwareinfo"}},
				{Var: "software", Values: []string{"Psi"}},
			},
		}
	}
	identities := []Identity{{Category: "client", Type: "pc", Name: "Exodus 0.9.1"}}
	_, err := Hash(identities, nil, []*form.Form{dup(), dup()})
	if !errors.Is(err, ErrUndefinedHash) {
		t.Fatalf("expected ErrUndefinedHash, got %v", err)
	}
}

// TestCapsInvalidMultiValuedFormType verifies that a FORM_TYPE field
// carrying more than one value is fatally invalid, per spec.md §4.7 step 3.
func TestCapsInvalidMultiValuedFormType(t *testing.T) {
	f := &form.Form{
		Fields: []*form.Field{
			{Var: "FORM_TYPE", Type: form.FieldHidden, Values: []string{"a", "b"}},
		},
	}
	identities := []Identity{{Category: "client", Type: "pc", Name: "Exodus 0.9.1"}}
	_, err := Hash(identities, nil, []*form.Form{f})
	if !errors.Is(err, ErrUndefinedHash) {
		t.Fatalf("expected ErrUndefinedHash, got %v", err)
	}
}

// TestCapsIgnoresFormsWithoutFormType verifies that a data form lacking a
// FORM_TYPE field is silently ignored rather than rejected, per spec.md
// §4.7 step 3.
func TestCapsIgnoresFormsWithoutFormType(t *testing.T) {
	identities := []Identity{{Category: "client", Type: "pc", Name: "Exodus 0.9.1"}}
	features := []string{
		"http://jabber.org/protocol/caps",
		"http://jabber.org/protocol/disco#info",
		"http://jabber.org/protocol/disco#items",
		"http://jabber.org/protocol/muc",
	}
	withoutFormType := &form.Form{Fields: []*form.Field{{Var: "irrelevant", Values: []string{"x"}}}}

	withForm, err := Hash(identities, features, []*form.Form{withoutFormType})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	withoutForm, err := Hash(identities, features, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if withForm != withoutForm {
		t.Fatalf("form without FORM_TYPE should not affect the hash: %q != %q", withForm, withoutForm)
	}
}

// TestCapsFeaturePermutationInvariant verifies that the hash does not
// depend on the input order of features.
func TestCapsFeaturePermutationInvariant(t *testing.T) {
	identities := []Identity{{Category: "client", Type: "pc", Name: "Exodus 0.9.1"}}
	a := []string{
		"http://jabber.org/protocol/disco#info",
		"http://jabber.org/protocol/disco#items",
		"http://jabber.org/protocol/muc",
		"http://jabber.org/protocol/caps",
	}
	b := []string{
		"http://jabber.org/protocol/caps",
		"http://jabber.org/protocol/muc",
		"http://jabber.org/protocol/disco#items",
		"http://jabber.org/protocol/disco#info",
	}
	va, err := Hash(identities, a, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	vb, err := Hash(identities, b, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if va != vb {
		t.Fatalf("feature order should not matter: %q != %q", va, vb)
	}
}
