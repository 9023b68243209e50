// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmlconn implements the incremental, framed XML connection of
// spec.md §4.2: ordered, non-overlapping send/recv of stream opens,
// stanzas, and stream closes over a byte stream, with a strict
// call-ordering state machine.
//
// It is grounded directly on the teacher's stream.go (sendNewStream,
// expectNewStream, negotiateStreams) and session.go's Conn type (paired
// xml.Decoder/xml.Encoder rebuilt on Reset, state tracked in a bitmask).
// Where the teacher's single-threaded-cooperative model (spec.md §5)
// becomes, in Go, one blocking method call per suspension point: each
// exported method here blocks the calling goroutine at its I/O boundary,
// and overlapping calls of the same direction are rejected rather than
// queued, exactly as spec.md requires.
package xmlconn

import (
	"encoding/xml"
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/language"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/jid"
	"github.com/corexmpp/xmpp/stanza"
)

// StreamHeader carries the attributes of a <stream:stream> open/close
// exchange, per spec.md §4.2's send_open/recv_open signature.
type StreamHeader struct {
	To      *jid.JID
	From    *jid.JID
	Version string
	Lang    string
	ID      string
	// XMLNS is the default namespace of the stream content, e.g.
	// jabber:client or jabber:server.
	XMLNS string
}

// Conn is a framed XML connection over rwc.
type Conn struct {
	rwc io.ReadWriteCloser
	dec *xml.Decoder

	mu    sync.Mutex
	state State

	sendMu   sync.Mutex
	sendBusy bool
	recvMu   sync.Mutex
	recvBusy bool
}

// New wraps rwc in a fresh, closed-not-open framed connection.
func New(rwc io.ReadWriteCloser) *Conn {
	return &Conn{rwc: rwc, dec: xml.NewDecoder(rwc), state: StateClosedNotOpen}
}

// State returns the connection's current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// beginSend marks a send as in-flight, returning ErrPending if one already
// is, implementing spec.md §4.2's at-most-one-outstanding-send contract.
func (c *Conn) beginSend() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendBusy {
		return ErrPending
	}
	c.sendBusy = true
	return nil
}

func (c *Conn) endSend() {
	c.sendMu.Lock()
	c.sendBusy = false
	c.sendMu.Unlock()
}

func (c *Conn) beginRecv() error {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.recvBusy {
		return ErrPending
	}
	c.recvBusy = true
	return nil
}

func (c *Conn) endRecv() {
	c.recvMu.Lock()
	c.recvBusy = false
	c.recvMu.Unlock()
}

// SendOpen writes a <stream:stream> header, implementing spec.md §4.2's
// send_open, grounded on the teacher's sendNewStream.
func (c *Conn) SendOpen(h StreamHeader) error {
	if err := c.beginSend(); err != nil {
		return err
	}
	defer c.endSend()

	switch c.State() {
	case StateCloseSent, StateClosed:
		return ErrIsClosed
	case StateOpenSent, StateBothOpen:
		return ErrIsOpen
	}

	xmlns := h.XMLNS
	if xmlns == "" {
		xmlns = ns.Client
	}
	idAttr := ""
	if h.ID != "" {
		idAttr = fmt.Sprintf(" id='%s'", h.ID)
	}
	_, err := fmt.Fprintf(c.rwc,
		"<?xml version='1.0'?><stream:stream%s to='%s' from='%s' version='%s' xml:lang='%s' xmlns='%s' xmlns:stream='%s'>",
		idAttr, attrStr(h.To), attrStr(h.From), h.Version, h.Lang, xmlns, ns.Stream)
	if err != nil {
		return err
	}

	switch c.State() {
	case StateClosedNotOpen:
		c.setState(StateOpenSent)
	case StateOpenReceived:
		c.setState(StateBothOpen)
	}
	return nil
}

func attrStr(j *jid.JID) string {
	if j == nil {
		return ""
	}
	return j.String()
}

// RecvOpen reads a <stream:stream> header, implementing spec.md §4.2's
// recv_open, grounded on the teacher's expectNewStream.
func (c *Conn) RecvOpen() (StreamHeader, error) {
	if err := c.beginRecv(); err != nil {
		return StreamHeader{}, err
	}
	defer c.endRecv()

	switch c.State() {
	case StateCloseReceived, StateClosed:
		return StreamHeader{}, ErrIsClosed
	case StateOpenReceived, StateBothOpen:
		return StreamHeader{}, ErrIsOpen
	}

	var foundProcInst bool
	for {
		tok, err := c.dec.Token()
		if err != nil {
			return StreamHeader{}, err
		}
		switch t := tok.(type) {
		case xml.ProcInst:
			if !foundProcInst && t.Target == "xml" {
				foundProcInst = true
				continue
			}
			return StreamHeader{}, ErrInvalidStreamStart
		case xml.StartElement:
			if t.Name.Local != "stream" || t.Name.Space != ns.Stream {
				return StreamHeader{}, ErrInvalidStreamStart
			}
			h := StreamHeader{}
			for _, a := range t.Attr {
				switch a.Name.Local {
				case "to":
					if j, err := jid.Parse(a.Value); err == nil {
						h.To = j
					}
				case "from":
					if j, err := jid.Parse(a.Value); err == nil {
						h.From = j
					}
				case "id":
					h.ID = a.Value
				case "version":
					h.Version = a.Value
				case "lang":
					if a.Name.Space == "xml" {
						h.Lang = a.Value
					}
				case "xmlns":
					if a.Name.Space == "" {
						h.XMLNS = a.Value
					}
				}
			}
			if h.Lang != "" {
				// Validate via golang.org/x/text/language as the teacher does.
				if _, err := language.Parse(h.Lang); err != nil {
					h.Lang = ""
				}
			}
			switch c.State() {
			case StateClosedNotOpen:
				c.setState(StateOpenReceived)
			case StateOpenSent:
				c.setState(StateBothOpen)
			}
			return h, nil
		default:
			return StreamHeader{}, ErrInvalidStreamStart
		}
	}
}

// SendStanza writes a single stanza element, implementing spec.md §4.2's
// send_stanza.
func (c *Conn) SendStanza(s stanza.Stanza) error {
	if err := c.beginSend(); err != nil {
		return err
	}
	defer c.endSend()

	switch c.State() {
	case StateCloseSent, StateClosed:
		return ErrIsClosed
	case StateClosedNotOpen, StateOpenReceived:
		return ErrNotOpen
	}
	_, err := stanza.WriteTo(c.rwc, s.Node)
	return err
}

// RecvStanza reads a single stanza element, implementing spec.md §4.2's
// recv_stanza. It returns ErrClosed (wrapping io.EOF semantics) once the
// peer has sent </stream:stream>.
func (c *Conn) RecvStanza() (stanza.Stanza, error) {
	if err := c.beginRecv(); err != nil {
		return stanza.Stanza{}, err
	}
	defer c.endRecv()

	switch c.State() {
	case StateCloseReceived, StateClosed:
		return stanza.Stanza{}, ErrIsClosed
	case StateClosedNotOpen, StateOpenSent:
		return stanza.Stanza{}, ErrNotOpen
	}

	for {
		tok, err := c.dec.Token()
		if err != nil {
			return stanza.Stanza{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n, err := stanza.Parse(c.dec, t)
			if err != nil {
				return stanza.Stanza{}, err
			}
			return stanza.Wrap(n), nil
		case xml.EndElement:
			if t.Name.Local == "stream" && t.Name.Space == ns.Stream {
				switch c.State() {
				case StateCloseSent:
					c.setState(StateClosed)
				default:
					c.setState(StateCloseReceived)
				}
				return stanza.Stanza{}, ErrClosed
			}
			// Ignore stray end elements (e.g. whitespace keepalives framed
			// oddly by a lenient server).
		case xml.CharData:
			// Whitespace keepalive or SM 'r'/'a' is represented as a stanza
			// by the caller (porter) using dedicated short elements; raw
			// character data between stanzas is ignored here.
		}
	}
}

// SendClose writes </stream:stream>, implementing spec.md §4.2's
// send_close.
func (c *Conn) SendClose() error {
	if err := c.beginSend(); err != nil {
		return err
	}
	defer c.endSend()

	switch c.State() {
	case StateCloseSent, StateClosed:
		return ErrIsClosed
	}
	if _, err := io.WriteString(c.rwc, "</stream:stream>"); err != nil {
		return err
	}
	switch c.State() {
	case StateCloseReceived:
		c.setState(StateClosed)
	default:
		c.setState(StateCloseSent)
	}
	return nil
}

// Reset clears parser and writer state after a TLS upgrade or a
// SASL-success stream restart, implementing spec.md §4.2's reset().
func (c *Conn) Reset() {
	c.dec = xml.NewDecoder(c.rwc)
	c.setState(StateClosedNotOpen)
}

// SetByteStream swaps the underlying byte stream, used after a TLS
// handshake replaces the raw TCP conn with a *tls.Conn.
func (c *Conn) SetByteStream(rwc io.ReadWriteCloser) {
	c.rwc = rwc
}

// ByteStream returns the underlying byte stream.
func (c *Conn) ByteStream() io.ReadWriteCloser {
	return c.rwc
}

// Close closes the underlying byte stream unconditionally.
func (c *Conn) Close() error {
	c.setState(StateClosed)
	return c.rwc.Close()
}
