// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlconn

// State is the framed connection's strict call-ordering state machine, per
// spec.md §4.2: closed-not-open → open-sent/open-received → both-open →
// close-sent/close-received → closed.
type State int

const (
	StateClosedNotOpen State = iota
	StateOpenSent
	StateOpenReceived
	StateBothOpen
	StateCloseSent
	StateCloseReceived
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateClosedNotOpen:
		return "closed-not-open"
	case StateOpenSent:
		return "open-sent"
	case StateOpenReceived:
		return "open-received"
	case StateBothOpen:
		return "both-open"
	case StateCloseSent:
		return "close-sent"
	case StateCloseReceived:
		return "close-received"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
