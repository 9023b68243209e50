// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package attr provides random id generation shared by the connection
// negotiation and stanza packages, grounded on the teacher's internal/attr
// package (RandomID) referenced throughout session.go and stream.go. It has
// no version helper.
package attr

import (
	"crypto/rand"
	"encoding/base64"
)

// IDLen is the default length, in random bytes before encoding, used when
// generating stream and stanza ids.
const IDLen = 16

// RandomID returns a URL-safe base64 id built from n random bytes. It
// panics only if the system CSPRNG is unavailable, matching the teacher's
// own RandomID which treats rand.Read failure as fatal.
func RandomID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("attr: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
