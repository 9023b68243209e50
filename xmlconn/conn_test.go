// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlconn

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/corexmpp/xmpp/jid"
)

// net.Pipe halves already satisfy io.ReadWriteCloser, so newPipe wraps them
// directly.

func newPipe(t *testing.T) (a, b *Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	return New(c1), New(c2)
}

func TestOverlappingRecvFailsPending(t *testing.T) {
	a, _ := newPipe(t)
	a.setState(StateBothOpen)

	errCh := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		_, err := a.RecvStanza()
		errCh <- err
	}()
	<-started
	time.Sleep(10 * time.Millisecond) // let the first recv actually enter beginRecv

	_, err := a.RecvStanza()
	if !errors.Is(err, ErrPending) {
		t.Fatalf("expected ErrPending for overlapping recv, got %v", err)
	}

	a.Close()
	<-errCh
}

func TestSendAfterCloseFailsIsClosed(t *testing.T) {
	a, _ := newPipe(t)
	a.setState(StateCloseSent)

	j, _ := jid.Parse("example.com")
	err := a.SendOpen(StreamHeader{To: j})
	if !errors.Is(err, ErrIsClosed) {
		t.Fatalf("expected ErrIsClosed, got %v", err)
	}
}

func TestSendCloseTwiceFirstWins(t *testing.T) {
	a, b := newPipe(t)
	a.setState(StateBothOpen)
	b.setState(StateBothOpen)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, len("</stream:stream>"))
		_, err := io.ReadFull(b.rwc, buf)
		done <- err
	}()

	if err := a.SendClose(); err != nil {
		t.Fatalf("first SendClose: %v", err)
	}
	<-done

	if err := a.SendClose(); !errors.Is(err, ErrIsClosed) {
		t.Fatalf("expected second SendClose to fail IsClosed, got %v", err)
	}
}

func TestResetAllowsReopen(t *testing.T) {
	a, _ := newPipe(t)
	a.setState(StateBothOpen)
	a.Reset()
	if a.State() != StateClosedNotOpen {
		t.Fatalf("expected state reset to closed-not-open, got %v", a.State())
	}
}
