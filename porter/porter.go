// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package porter implements the post-authentication stanza multiplexer of
// spec.md §4.4: dispatch of incoming stanzas to registered handlers,
// correlation of IQ request/response pairs with cancellation, write
// queueing, graceful and forced close, and Stream-Management accounting.
//
// It is grounded on the teacher's mux.IQMux handler-map pattern (see
// _examples/other_examples/..._mellium-xmpp__mux-iq.go.go), generalized
// here to the priority-ordered, from-matching, match-tree dispatch spec.md
// requires, and on session.go's sentIQs map[string]chan
// xmlstream.TokenReadCloser for IQ correlation, generalized to the
// future/cancel semantics of spec.md §4.4.1 using Go channels as the
// future primitive (the teacher's own correlation table is channel-based
// already).
//
// Go's goroutine-per-suspension-chain model stands in for spec.md §5's
// single cooperative event loop: one read goroutine drives RecvStanza in a
// loop and dispatches each completed read itself, fully (all matching
// handlers called, in priority order) before the next is read, guaranteeing
// the sequential-dispatch property the teacher achieves via its
// single-threaded loop. A second goroutine drains the write queue.
package porter

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/corexmpp/xmpp/internal/attr"
	"github.com/corexmpp/xmpp/internal/ns"
	"github.com/corexmpp/xmpp/jid"
	"github.com/corexmpp/xmpp/stanza"
	"github.com/corexmpp/xmpp/xmlconn"
)

type lifecycle int32

const (
	lifecycleCreated lifecycle = iota
	lifecycleStarted
	lifecycleClosing
	lifecycleForceClosing
	lifecycleClosed
)

// Porter is the stanza multiplexer owning a framed XML connection after
// session establishment, per spec.md §4.4.
type Porter struct {
	conn    *xmlconn.Conn
	account *jid.JID
	logger  *log.Logger
	sm      *smCounter

	state atomic.Int32 // lifecycle

	hmu         sync.Mutex
	handlers    []*Handler
	nextHandle  int
	nextSeq     int
	dispatching bool
	deferredOps []func()

	iqMu      sync.Mutex
	pendingIQ map[string]*pendingIQEntry

	jobs        chan *job
	doneCh      chan struct{}
	forcedClose atomic.Bool
	wg          sync.WaitGroup
}

type iqResult struct {
	reply stanza.Stanza
	err   error
}

// pendingIQEntry tracks a request awaiting a reply: the future to complete
// and the `to` the request was addressed to, used for the spoof-guard in
// isLegitimateReplySender.
type pendingIQEntry struct {
	ch  chan iqResult
	to  string
}

type job struct {
	node      *stanza.Node
	result    chan error
	cancelled atomic.Bool
	// control marks a Stream-Management 'r'/'a' frame rather than a
	// stanza, so writeLoop does not count it against snt_count.
	control bool
}

// New creates a stopped Porter over conn for account (the bare JID this
// session authenticated as).
func New(conn *xmlconn.Conn, account *jid.JID) *Porter {
	return &Porter{
		conn:      conn,
		account:   account,
		logger:    log.Default(),
		sm:        newSMCounter(false),
		pendingIQ: make(map[string]*pendingIQEntry),
		jobs:      make(chan *job, 256),
		doneCh:    make(chan struct{}),
	}
}

// EnableStreamManagement turns on SM counter accounting, to be called
// right after Stream-Management was enabled by the connector (spec.md
// §4.3 step 8 hands off to §4.4.3 accounting).
func (p *Porter) EnableStreamManagement() {
	p.sm.enabled = true
}

// Start posts the first recv and begins the read and write goroutines, per
// spec.md §4.4.1.
func (p *Porter) Start() error {
	if !p.state.CompareAndSwap(int32(lifecycleCreated), int32(lifecycleStarted)) {
		return ErrAlreadyStarted
	}
	p.wg.Add(2)
	go p.writeLoop()
	go p.readLoop()
	return nil
}

func (p *Porter) currentState() lifecycle {
	return lifecycle(p.state.Load())
}

// --- Sending ---------------------------------------------------------------

// Send enqueues stanza s fire-and-forget, injecting an id if s is an
// iq-get/iq-set without one, per spec.md §4.4.1.
func (p *Porter) Send(s stanza.Stanza) error {
	if err := p.ensureID(s); err != nil {
		return err
	}
	j := &job{node: s.Node, result: make(chan error, 1)}
	return p.enqueue(j)
}

// SendAsync enqueues s and waits for the write to be committed to the
// underlying stream, or for ctx to be cancelled first (in which case, if
// the write has not yet been committed, it is skipped and ErrCancelled is
// returned; a commit already in flight still completes successfully).
func (p *Porter) SendAsync(ctx context.Context, s stanza.Stanza) error {
	if err := p.ensureID(s); err != nil {
		return err
	}
	j := &job{node: s.Node, result: make(chan error, 1)}
	if err := p.enqueue(j); err != nil {
		return err
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		j.cancelled.Store(true)
		return <-j.result
	}
}

// SendIQ sends an iq-get/iq-set and returns its reply, implementing spec.md
// §4.4.1's send_iq: registers the id for correlation, retiring it on
// reply, cancellation, close, or force-close.
func (p *Porter) SendIQ(ctx context.Context, s stanza.Stanza) (stanza.Stanza, error) {
	if !s.IsIQQuery() {
		return stanza.Stanza{}, ErrNotIQ
	}
	if err := p.ensureID(s); err != nil {
		return stanza.Stanza{}, err
	}
	id := s.ID()

	resultCh := make(chan iqResult, 1)
	p.iqMu.Lock()
	p.pendingIQ[id] = &pendingIQEntry{ch: resultCh, to: s.To()}
	p.iqMu.Unlock()

	retire := func() {
		p.iqMu.Lock()
		delete(p.pendingIQ, id)
		p.iqMu.Unlock()
	}

	j := &job{node: s.Node, result: make(chan error, 1)}
	if err := p.enqueue(j); err != nil {
		retire()
		return stanza.Stanza{}, err
	}
	if err := <-j.result; err != nil {
		retire()
		return stanza.Stanza{}, err
	}

	select {
	case res := <-resultCh:
		return res.reply, res.err
	case <-ctx.Done():
		retire()
		return stanza.Stanza{}, ErrCancelled
	case <-p.doneCh:
		retire()
		if p.forcedClose.Load() {
			return stanza.Stanza{}, ErrForceClosing
		}
		return stanza.Stanza{}, ErrClosed
	}
}

func (p *Porter) ensureID(s stanza.Stanza) error {
	if s.Kind() == stanza.KindIQ && (s.SubKind() == stanza.SubGet || s.SubKind() == stanza.SubSet) {
		if s.ID() == "" {
			s.SetAttr("id", attr.RandomID(attr.IDLen))
		}
	}
	return nil
}

func (p *Porter) enqueue(j *job) error {
	switch p.currentState() {
	case lifecycleCreated:
		return ErrNotStarted
	case lifecycleClosing:
		return ErrClosing
	case lifecycleForceClosing, lifecycleClosed:
		return ErrClosed
	}
	select {
	case p.jobs <- j:
		return nil
	case <-p.doneCh:
		return ErrClosed
	}
}

// --- Handlers ----------------------------------------------------------

// Register adds a dispatch entry per spec.md §4.4.1's register_handler.
func (p *Porter) Register(h Handler) Handle {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	p.nextHandle++
	id := p.nextHandle
	h.id = id
	add := func() {
		p.nextSeq++
		h.seq = p.nextSeq
		p.handlers = append(p.handlers, &h)
	}
	if p.dispatching {
		p.deferredOps = append(p.deferredOps, add)
	} else {
		add()
	}
	return Handle(id)
}

// Unregister removes a previously registered handler.
func (p *Porter) Unregister(h Handle) {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	remove := func() {
		for i, entry := range p.handlers {
			if entry.id == int(h) {
				p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
				return
			}
		}
	}
	if p.dispatching {
		p.deferredOps = append(p.deferredOps, remove)
	} else {
		remove()
	}
}

// sortedHandlersSnapshot returns handlers sorted by priority descending,
// insertion order breaking ties, per spec.md §4.4.2.
func (p *Porter) sortedHandlersSnapshot() []*Handler {
	p.hmu.Lock()
	snapshot := append([]*Handler(nil), p.handlers...)
	p.dispatching = true
	p.hmu.Unlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		if snapshot[i].Priority != snapshot[j].Priority {
			return snapshot[i].Priority > snapshot[j].Priority
		}
		return snapshot[i].seq < snapshot[j].seq
	})
	return snapshot
}

func (p *Porter) endDispatch() {
	p.hmu.Lock()
	p.dispatching = false
	ops := p.deferredOps
	p.deferredOps = nil
	p.hmu.Unlock()
	for _, op := range ops {
		op()
	}
}

// --- Close ---------------------------------------------------------------

// CloseAsync fails every send still waiting in the queue with ErrClosing
// (queued stanzas are not written), sends </stream>, waits for the peer to
// close, then closes the byte stream, per spec.md §4.4.1's close_async.
func (p *Porter) CloseAsync(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(lifecycleStarted), int32(lifecycleClosing)) {
		switch p.currentState() {
		case lifecycleCreated:
			return ErrNotStarted
		case lifecycleClosing:
			return ErrClosing
		default:
			return ErrClosed
		}
	}
	p.drainJobs(ErrClosing)
	if err := p.conn.SendClose(); err != nil {
		if p.currentState() == lifecycleClosing {
			p.shutdown(lifecycleClosed)
		}
		return err
	}
	select {
	case <-p.doneCh:
		if p.forcedClose.Load() {
			return ErrForceClosing
		}
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}

// ForceCloseAsync terminates pending sends with ErrClosing and pending IQ
// futures with ErrForceClosing, then tears down immediately, per spec.md
// §4.4.1's force_close_async.
func (p *Porter) ForceCloseAsync() error {
	prev := lifecycle(p.state.Swap(int32(lifecycleForceClosing)))
	if prev == lifecycleClosed {
		p.state.Store(int32(lifecycleClosed))
		return nil
	}
	p.forcedClose.Store(true)
	p.shutdown(lifecycleClosed)
	return nil
}

func (p *Porter) shutdown(final lifecycle) {
	p.state.Store(int32(final))
	select {
	case <-p.doneCh:
	default:
		close(p.doneCh)
	}
	p.conn.Close()

	ferr, jerr := ErrClosed, ErrClosed
	if p.forcedClose.Load() {
		ferr, jerr = ErrForceClosing, ErrClosing
	}
	p.drainJobs(jerr)

	p.iqMu.Lock()
	pending := p.pendingIQ
	p.pendingIQ = make(map[string]*pendingIQEntry)
	p.iqMu.Unlock()
	for _, entry := range pending {
		select {
		case entry.ch <- iqResult{err: ferr}:
		default:
		}
	}
}

// drainJobs fails every job currently buffered in the send queue with err,
// without blocking for one to be enqueued. Used by CloseAsync (queued sends
// fail ErrClosing once no more are accepted) and shutdown (anything still
// queued at teardown fails ErrClosed, or ErrClosing after ForceCloseAsync).
func (p *Porter) drainJobs(err error) {
	for {
		select {
		case j := <-p.jobs:
			j.result <- err
		default:
			return
		}
	}
}

// --- Loops ---------------------------------------------------------------

func (p *Porter) writeLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.doneCh:
			return
		default:
		}
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			if j.cancelled.Load() {
				j.result <- ErrCancelled
				continue
			}
			s := stanza.Wrap(j.node)
			err := p.conn.SendStanza(s)
			if err == nil && !j.control {
				p.sm.incrementSent()
			}
			j.result <- err
		case <-p.doneCh:
			return
		}
	}
}

func (p *Porter) readLoop() {
	defer p.wg.Done()
	for {
		s, err := p.conn.RecvStanza()
		if err != nil {
			p.onReadError(err)
			return
		}
		p.dispatch(s)
	}
}

func (p *Porter) onReadError(err error) {
	switch p.currentState() {
	case lifecycleClosing:
		p.shutdown(lifecycleClosed)
	case lifecycleForceClosing, lifecycleClosed:
		// Already torn down.
	default:
		p.logger.Printf("porter: remote closed or errored: %v", err)
		p.shutdown(lifecycleClosed)
	}
}

func (p *Porter) dispatch(s stanza.Stanza) {
	if p.handleSM(s) {
		return
	}

	if s.Kind() == stanza.KindIQ && (s.SubKind() == stanza.SubResult || s.SubKind() == stanza.SubError) {
		if p.correlateIQ(s) {
			return
		}
	}

	handlers := p.sortedHandlersSnapshot()
	defer p.endDispatch()
	for _, h := range handlers {
		if !h.matches(s, p.account) {
			continue
		}
		if h.Callback(s) {
			return
		}
	}
}

// correlateIQ completes a pending IQ future if s is a legitimate reply,
// implementing spec.md §3's IQ id matching (same id, from equal to the
// request's to, the account's bare/full JID, or absent), dropping spoofed
// replies rather than delivering them to the future or to handlers.
func (p *Porter) correlateIQ(s stanza.Stanza) bool {
	id := s.ID()
	if id == "" {
		return false
	}
	p.iqMu.Lock()
	entry, ok := p.pendingIQ[id]
	p.iqMu.Unlock()
	if !ok {
		return false
	}

	if !p.isLegitimateReplySender(s, entry.to) {
		// Drop the spoofed reply without retiring the id: a legitimate
		// reply bearing the same id may still arrive and complete the
		// future, per spec.md §3's IQ id spoof-guard.
		p.logger.Printf("porter: dropping spoofed iq reply id=%s from=%s", id, s.From())
		return true
	}

	p.iqMu.Lock()
	delete(p.pendingIQ, id)
	p.iqMu.Unlock()

	select {
	case entry.ch <- iqResult{reply: s}:
	default:
	}
	return true
}

// isLegitimateReplySender implements spec.md §3's IQ id spoof-guard: a
// reply's `from` must be absent, equal to the request's `to`, or equal to
// the account's bare or full JID.
func (p *Porter) isLegitimateReplySender(s stanza.Stanza, requestTo string) bool {
	from := s.From()
	if from == "" {
		return true
	}
	if from == requestTo {
		return true
	}
	fromJID, err := jid.Parse(from)
	if err != nil {
		return false
	}
	if requestTo != "" {
		if toJID, err := jid.Parse(requestTo); err == nil && fromJID.Equal(toJID) {
			return true
		}
	}
	return fromJID.Equal(p.account) || fromJID.EqualBare(p.account)
}

// handleSM intercepts Stream-Management whitespace frames ('r'/'a') so
// they never reach handler dispatch, per spec.md §4.4.3.
func (p *Porter) handleSM(s stanza.Stanza) bool {
	if !p.sm.enabled {
		if s.NS == ns.SM && (s.Name == "r" || s.Name == "a") {
			// SM not enabled but server sent SM frames anyway: ignore.
			return true
		}
		return false
	}
	switch {
	case s.NS == ns.SM && s.Name == "r":
		h := p.sm.rcvSnapshot()
		ackNode := stanza.NewNode("a", ns.SM)
		ackNode.SetAttr("h", itoa(h))
		j := &job{node: ackNode, result: make(chan error, 1), control: true}
		_ = p.enqueue(j)
		return true
	case s.NS == ns.SM && s.Name == "a":
		hv, _ := s.Attr("h")
		h, err := atoiU32(hv)
		if err == nil {
			if err := p.sm.receivedAck(h); err != nil {
				p.logger.Printf("porter: sm: %v", err)
				p.shutdown(lifecycleClosed)
			}
		}
		return true
	case s.NS == ns.SM:
		return true
	}
	p.sm.incrementReceived()
	return false
}

func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func atoiU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
