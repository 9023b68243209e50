// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package auth

import "testing"

// TestScramRFC5802Vectors reproduces the worked example from RFC 5802 §5
// to validate the hand-rolled SCRAM-SHA-1 implementation independently of
// mellium.im/sasl.
func TestScramRFC5802Vectors(t *testing.T) {
	s := &scram{user: "user", password: "pencil", clientNonce: "fyko+d2lbbFgONRv9qkxdawL"}

	initial, err := s.InitialResponse()
	if err != nil {
		t.Fatalf("InitialResponse: %v", err)
	}
	const wantInitial = "n,,n=user,r=fyko+d2lbbFgONRv9qkxdawL"
	if string(initial) != wantInitial {
		t.Fatalf("InitialResponse = %q, want %q", initial, wantInitial)
	}

	serverFirst := "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
	final, err := s.HandleChallenge([]byte(serverFirst))
	if err != nil {
		t.Fatalf("HandleChallenge: %v", err)
	}
	const wantFinal = "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts="
	if string(final) != wantFinal {
		t.Fatalf("client-final = %q, want %q", final, wantFinal)
	}

	if _, err := s.HandleChallenge([]byte("v=rmF9pqV8S7suAoZWja4dJRkFsKQ=")); err != nil {
		t.Fatalf("server signature verification failed: %v", err)
	}
}

func TestScramRejectsBadServerSignature(t *testing.T) {
	s := &scram{user: "user", password: "pencil", clientNonce: "fyko+d2lbbFgONRv9qkxdawL"}
	if _, err := s.InitialResponse(); err != nil {
		t.Fatal(err)
	}
	serverFirst := "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
	if _, err := s.HandleChallenge([]byte(serverFirst)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.HandleChallenge([]byte("v=AAAAAAAAAAAAAAAAAAAAAAAAAAA=")); err == nil {
		t.Fatal("expected server signature mismatch to be rejected")
	}
}

func TestScramRejectsMismatchedNonce(t *testing.T) {
	s := &scram{user: "user", password: "pencil", clientNonce: "client-nonce"}
	if _, err := s.InitialResponse(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.HandleChallenge([]byte("r=totally-different,s=QSXCR+Q6sek8bf92,i=4096")); err == nil {
		t.Fatal("expected mismatched server nonce to be rejected")
	}
}
