// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import "testing"

func TestParseValid(t *testing.T) {
	tests := []struct {
		in             string
		node, domain, resource string
	}{
		{"example.com", "", "example.com", ""},
		{"example.com/rp", "", "example.com", "rp"},
		{"jid@example.com", "jid", "example.com", ""},
		{"jid@example.com/resourcepart", "jid", "example.com", "resourcepart"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			j, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if j.Localpart() != tc.node || j.Domainpart() != tc.domain || j.Resourcepart() != tc.resource {
				t.Fatalf("Parse(%q) = %q/%q/%q, want %q/%q/%q",
					tc.in, j.Localpart(), j.Domainpart(), j.Resourcepart(),
					tc.node, tc.domain, tc.resource)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{"", "@example.com", "jid@", "jid@example.com/", "a@b@example.com"}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			if _, err := Parse(in); err == nil {
				t.Fatalf("Parse(%q): expected error, got nil", in)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, in := range []string{"example.com", "jid@example.com", "jid@example.com/rp"} {
		j, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := j.String(); got != in {
			t.Fatalf("round trip %q -> %q", in, got)
		}
	}
}

func TestEqual(t *testing.T) {
	a, _ := New("newjid", "example.com", "equal")
	b, _ := New("newjid", "example.com", "equal")
	if !a.Equal(b) {
		t.Fatal("expected equal JIDs to be Equal")
	}
	c, _ := New("newjid2", "example.com", "equal")
	if a.Equal(c) {
		t.Fatal("expected different JIDs to not be Equal")
	}
	if a.EqualBare(c.Bare()) {
		// different localparts: bare equality must be false.
		t.Fatal("expected JIDs with different localparts to not be EqualBare")
	}
}

func TestEqualBare(t *testing.T) {
	full, _ := New("jid", "example.com", "rp")
	bare, _ := New("jid", "example.com", "")
	if !full.EqualBare(bare) {
		t.Fatal("expected full and bare JIDs sharing node/domain to be EqualBare")
	}
}
