// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlconn

import "errors"

// Errors returned by Conn, matching the XML connection error kinds of
// spec.md §7: PENDING, NOT_OPEN, IS_OPEN, IS_CLOSED, CLOSED,
// INVALID_STREAM_START. There is no parse-error value: malformed XML is
// reported with the error encoding/xml's decoder returns.
var (
	ErrPending             = errors.New("xmlconn: pending operation")
	ErrNotOpen             = errors.New("xmlconn: stream not open")
	ErrIsOpen              = errors.New("xmlconn: stream already open")
	ErrIsClosed            = errors.New("xmlconn: stream is closed")
	ErrClosed              = errors.New("xmlconn: peer closed the stream")
	ErrInvalidStreamStart  = errors.New("xmlconn: invalid stream start element")
)
