// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package auth

import "testing"

func TestRegistrySelectPrefersScram(t *testing.T) {
	r := DefaultRegistry()
	m, err := r.Select([]string{"PLAIN", "DIGEST-MD5", "SCRAM-SHA-1"}, true, false, "user", "pencil")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Name() != "SCRAM-SHA-1" {
		t.Fatalf("Select() = %s, want SCRAM-SHA-1", m.Name())
	}
}

func TestRegistryDropsPlainWhenInsecure(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Select([]string{"PLAIN"}, false, false, "user", "pencil")
	if err == nil {
		t.Fatal("expected NoSupportedMechanisms when only PLAIN is offered over an insecure channel")
	}
	var authErr *Error
	if !asError(err, &authErr) || authErr.Kind != KindNoSupportedMechanisms {
		t.Fatalf("expected KindNoSupportedMechanisms, got %v", err)
	}
}

func TestRegistryAllowsPlainWhenExplicitlyPermitted(t *testing.T) {
	r := DefaultRegistry()
	m, err := r.Select([]string{"PLAIN"}, false, true, "user", "pencil")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Name() != "PLAIN" {
		t.Fatalf("Select() = %s, want PLAIN", m.Name())
	}
}

func TestRegistryNoIntersection(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Select([]string{"GSSAPI"}, true, false, "user", "pencil")
	if err == nil {
		t.Fatal("expected error when no mechanism intersects")
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
