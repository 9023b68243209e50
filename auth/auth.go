// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package auth implements SASL and legacy jabber:iq:auth authentication as
// described in spec.md §4.5: a pluggable mechanism registry, the
// challenge/response driving loop, and the individual mechanisms
// (SCRAM-SHA-1, DIGEST-MD5, PLAIN, legacy).
//
// Dynamic dispatch for mechanisms follows spec.md §9's design note: each
// mechanism is a small value implementing the Mechanism capability set, and
// selection is a pure function over (server mechanisms, flags, registry),
// grounded on the teacher's SASL() stream feature closure in sasl.go,
// restructured here into an explicit, reusable Registry type.
package auth

import "errors"

// Kind enumerates auth failure categories from spec.md §7.
type Kind int

const (
	KindInitFailed Kind = iota
	KindNotSupported
	KindNoSupportedMechanisms
	KindNetwork
	KindInvalidReply
	KindNoCredentials
	KindFailure
	KindConnReset
	KindStream
	KindResourceConflict
	KindNotAuthorized
)

// Error wraps an auth failure with its Kind, per spec.md §7's "stable enum
// value and best-effort message string" contract.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var ErrNoCredentials = errors.New("auth: no credentials supplied")

// Mechanism is the auth handler contract of spec.md §4.5: a mechanism
// name, a plain flag (secrets travel in cleartext, requiring TLS before
// use), and the three steps of the SASL state machine.
type Mechanism interface {
	Name() string
	IsPlain() bool
	InitialResponse() ([]byte, error)
	HandleChallenge(data []byte) ([]byte, error)
	HandleSuccess(data []byte) error
}

// Factory builds a Mechanism bound to a particular user/password, so the
// Registry can hold reusable, credential-free entries.
type Factory func(user, password string) Mechanism

// conditionKind maps a SASL <failure/> child element name to an auth Kind, per
// spec.md §4.5 step 3.
func conditionKind(condition string) Kind {
	switch condition {
	case "not-authorized", "invalid-authzid":
		return KindNotAuthorized
	case "malformed-request", "incorrect-encoding", "invalid-mechanism":
		return KindInvalidReply
	case "temporary-auth-failure":
		return KindNetwork
	default:
		return KindFailure
	}
}
