// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package connector

import "errors"

// Kind enumerates connector-specific failures from spec.md §7 beyond the
// resolver/transport/TLS/auth kinds those subsystems already define.
type Kind int

const (
	KindResolve Kind = iota
	KindConnect
	KindStream
	KindTLSUnavailable
	KindAuth
	KindBind
	KindSession
	KindStreamManagement
	KindCancelled
)

// Error wraps a connector-stage failure with its Kind, folding
// resolver/transport/TLS/SASL errors into one result per spec.md §7: "The
// connector folds resolver/transport/TLS/SASL errors into its own result
// to give a single success/failure per connect."
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// ErrCancelled names a connector torn down mid-step. Connect does not
// return it: a cancelled ctx surfaces as the error of the step it
// interrupted (DNS lookup, dial, or TLS handshake), and the XML exchange
// steps after the stream opens do not observe ctx.
var ErrCancelled = errors.New("connector: cancelled")
