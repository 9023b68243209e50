// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package porter

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/jid"
	"github.com/corexmpp/xmpp/stanza"
	"github.com/corexmpp/xmpp/xmlconn"
)

// newOpenPipe returns two framed connections already negotiated to
// StateBothOpen over an in-memory net.Pipe, the way a real connector.Connect
// would leave them before handing off to a Porter.
func newOpenPipe(t *testing.T) (client, peer *xmlconn.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	client = xmlconn.New(c1)
	peer = xmlconn.New(c2)

	domain, _ := jid.New("", "example.com", "")
	var wg sync.WaitGroup
	wg.Add(2)
	var clientErr, peerErr error
	go func() {
		defer wg.Done()
		clientErr = client.SendOpen(xmlconn.StreamHeader{To: domain, Version: "1.0"})
	}()
	go func() {
		defer wg.Done()
		_, peerErr = peer.RecvOpen()
	}()
	wg.Wait()
	if clientErr != nil || peerErr != nil {
		t.Fatalf("client open: %v, peer open: %v", clientErr, peerErr)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		peerErr = peer.SendOpen(xmlconn.StreamHeader{Version: "1.0"})
	}()
	go func() {
		defer wg.Done()
		_, clientErr = client.RecvOpen()
	}()
	wg.Wait()
	if clientErr != nil || peerErr != nil {
		t.Fatalf("client recv-open: %v, peer send-open: %v", clientErr, peerErr)
	}
	return client, peer
}

func testAccount(t *testing.T) *jid.JID {
	t.Helper()
	j, err := jid.New("juliet", "example.com", "balcony")
	if err != nil {
		t.Fatal(err)
	}
	return j
}

// TestSendIQSpoofGuard verifies that a reply bearing a forged `from` is
// dropped rather than completing the pending future, and that a later,
// legitimate reply for the same id still completes it, per spec.md §3's
// IQ id spoof-guard.
func TestSendIQSpoofGuard(t *testing.T) {
	client, peer := newOpenPipe(t)
	account := testAccount(t)
	p := New(client, account)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.ForceCloseAsync()

	req := stanza.Wrap(stanza.NewNode("iq", ns.Client).SetAttr("type", "get").SetAttr("to", "example.com"))
	req.AddChild(stanza.NewNode("ping", "urn:xmpp:ping"))

	replyCh := make(chan struct {
		s   stanza.Stanza
		err error
	}, 1)
	go func() {
		s, err := p.SendIQ(context.Background(), req)
		replyCh <- struct {
			s   stanza.Stanza
			err error
		}{s, err}
	}()

	recv, err := peer.RecvStanza()
	if err != nil {
		t.Fatalf("peer recv: %v", err)
	}
	id := recv.ID()
	if id == "" {
		t.Fatalf("expected server to observe a non-empty iq id")
	}

	spoofed := stanza.IQResult(recv)
	spoofed.SetAttr("from", "mallory@evil.example")
	if err := peer.SendStanza(spoofed); err != nil {
		t.Fatalf("send spoofed reply: %v", err)
	}

	select {
	case res := <-replyCh:
		t.Fatalf("spoofed reply should not have completed the future, got %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	legit := stanza.IQResult(recv)
	legit.SetAttr("from", "example.com")
	if err := peer.SendStanza(legit); err != nil {
		t.Fatalf("send legitimate reply: %v", err)
	}

	select {
	case res := <-replyCh:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if res.s.ID() != id {
			t.Fatalf("reply id = %q, want %q", res.s.ID(), id)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for legitimate reply to complete the future")
	}
}

// TestDispatchPriorityAndConsume verifies that handlers run in
// priority-descending order and that a handler returning true from its
// callback consumes the stanza, stopping further dispatch, per spec.md
// §4.4.2.
func TestDispatchPriorityAndConsume(t *testing.T) {
	client, peer := newOpenPipe(t)
	account := testAccount(t)
	p := New(client, account)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.ForceCloseAsync()

	var mu sync.Mutex
	var seenHigh, seenLow []stanza.SubKind

	p.Register(Handler{
		Kind:     stanza.KindIQ,
		SubKind:  stanza.SubSet,
		Priority: 15,
		Callback: func(s stanza.Stanza) bool {
			mu.Lock()
			seenHigh = append(seenHigh, s.SubKind())
			mu.Unlock()
			return true
		},
	})
	p.Register(Handler{
		Kind:     stanza.KindIQ,
		Priority: 10,
		Callback: func(s stanza.Stanza) bool {
			mu.Lock()
			seenLow = append(seenLow, s.SubKind())
			mu.Unlock()
			return true
		},
	})

	setIQ := stanza.Wrap(stanza.NewNode("iq", ns.Client).SetAttr("type", "set").SetAttr("id", "s1"))
	if err := peer.SendStanza(setIQ); err != nil {
		t.Fatalf("send set iq: %v", err)
	}
	getIQ := stanza.Wrap(stanza.NewNode("iq", ns.Client).SetAttr("type", "get").SetAttr("id", "g1"))
	if err := peer.SendStanza(getIQ); err != nil {
		t.Fatalf("send get iq: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(seenHigh) >= 1 && len(seenLow) >= 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seenHigh) != 1 || seenHigh[0] != stanza.SubSet {
		t.Fatalf("priority-15 handler should see exactly the iq-set, got %v", seenHigh)
	}
	if len(seenLow) != 1 || seenLow[0] != stanza.SubGet {
		t.Fatalf("priority-10 handler should see only the iq-get (set was consumed), got %v", seenLow)
	}
}

// TestCloseAsyncDrainsQueuedSends verifies that a send still sitting in the
// queue when CloseAsync transitions the porter to the closing state fails
// fast with ErrClosing instead of being written after close was requested.
func TestCloseAsyncDrainsQueuedSends(t *testing.T) {
	client, peer := newOpenPipe(t)
	account := testAccount(t)
	p := New(client, account)
	p.state.Store(int32(lifecycleStarted))

	j := &job{node: stanza.NewNode("message", ns.Client), result: make(chan error, 1)}
	p.jobs <- j

	go func() {
		peer.RecvStanza() // discard, unblocks CloseAsync's SendClose on the pipe
	}()
	go p.CloseAsync(context.Background())

	select {
	case err := <-j.result:
		if !errors.Is(err, ErrClosing) {
			t.Fatalf("expected ErrClosing, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued job to be drained")
	}
}

// TestForceCloseFailsPendingIQAndSucceeds verifies that ForceCloseAsync
// fails any pending IQ future with ErrForceClosing and itself reports
// success, per spec.md §4.4.1's force_close_async.
func TestForceCloseFailsPendingIQAndSucceeds(t *testing.T) {
	client, _ := newOpenPipe(t)
	account := testAccount(t)
	p := New(client, account)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resultCh := make(chan iqResult, 1)
	p.iqMu.Lock()
	p.pendingIQ["pending-1"] = &pendingIQEntry{ch: resultCh}
	p.iqMu.Unlock()

	if err := p.ForceCloseAsync(); err != nil {
		t.Fatalf("ForceCloseAsync: %v", err)
	}

	select {
	case res := <-resultCh:
		if !errors.Is(res.err, ErrForceClosing) {
			t.Fatalf("expected ErrForceClosing, got %v", res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending iq future to fail")
	}
}
