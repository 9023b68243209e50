// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package porter

import "errors"

// Errors returned by Porter, matching spec.md §7's porter error kinds:
// NOT_STARTED, CLOSING, CLOSED, FORCE_CLOSING, NOT_IQ.
var (
	ErrNotStarted     = errors.New("porter: not started")
	ErrAlreadyStarted = errors.New("porter: already started")
	ErrClosing        = errors.New("porter: closing")
	ErrClosed         = errors.New("porter: closed")
	ErrForceClosing   = errors.New("porter: force-closing")
	ErrNotIQ          = errors.New("porter: stanza is not an iq-get or iq-set")
	ErrCancelled      = errors.New("porter: cancelled")
)
