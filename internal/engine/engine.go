package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thiagokokada/siori-go/internal/git/backend"
)

const (
	DefaultLogWindow  = 500
	DefaultRetryDelay = 150 * time.Millisecond
)

// RepositoryContext identifies the repository an engine works on.
type RepositoryContext struct {
	Root    string
	Backend backend.Backend
}

type Options struct {
	// LogWindow is the number of commits fetched per refresh.
	LogWindow int
	// RetryDelay is waited before retrying a call that failed with a
	// transient backend error.
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.LogWindow <= 0 {
		o.LogWindow = DefaultLogWindow
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// Event is delivered to subscribers whenever a new projection is published
// or an operation fails. Snapshot is always set.
type Event struct {
	Snapshot *Snapshot
	Err      error
	// Source is the engine that published the event. Generations are only
	// comparable between events of the same source.
	Source *Engine
}

type refreshReply struct {
	snap *Snapshot
	err  error
}

// Engine reconciles the repository state read from a backend with the
// intents submitted by the user. All state changes happen on a single loop
// goroutine; backend calls run on their own goroutines and post their
// results back to it.
type Engine struct {
	repo RepositoryContext
	opts Options

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan func()
	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	projection atomic.Pointer[Snapshot]

	subMu      sync.Mutex
	subs       map[uint64]*mailbox
	nextSub    uint64
	subsClosed bool

	// Owned by the loop goroutine.
	base       *base
	pending    []*pending
	generation uint64
	seq        uint64
	lastIntent uint64
	refreshing bool
	again      bool
	waiters    []chan refreshReply
	// running holds dispatched intents until their backend call returns,
	// including ones a refresh already dropped from pending.
	running map[uint64]Intent
}

// New starts an engine for repo. No refresh is made until one is requested.
func New(repo RepositoryContext, opts Options) *Engine {
	if repo.Root == "" && repo.Backend != nil {
		repo.Root = repo.Backend.RepoPath()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		repo:    repo,
		opts:    opts.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan func()),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		subs:    make(map[uint64]*mailbox),
		running: make(map[uint64]Intent),
	}
	e.projection.Store(&Snapshot{Repo: repo.Root})
	go e.loop()
	return e
}

func (e *Engine) Repo() string {
	return e.repo.Root
}

// Backend gives read access to the repository for views the snapshot does
// not carry, such as diffs.
func (e *Engine) Backend() backend.Backend {
	return e.repo.Backend
}

// Projection returns the displayed state. It never blocks.
func (e *Engine) Projection() *Snapshot {
	return e.projection.Load()
}

// RefreshSignal is the single-slot channel the engine drains for refresh
// requests. Senders must not block on it.
func (e *Engine) RefreshSignal() chan<- struct{} {
	return e.signal
}

// RequestRefresh asks for a refresh without waiting for it. Requests made
// while one is pending are coalesced.
func (e *Engine) RequestRefresh() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Refresh reloads the repository state and returns the new projection. When
// a refresh is already running its result is returned, and one more refresh
// follows it.
func (e *Engine) Refresh(ctx context.Context) (*Snapshot, error) {
	reply := make(chan refreshReply, 1)
	err := e.do(ctx, func() {
		e.waiters = append(e.waiters, reply)
		e.startRefresh()
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrClosed
	}
}

// Submit validates in against the displayed projection and dispatches it.
// It returns an *IntentError when the intent is rejected; backend failures
// arrive later as an Event with an *OperationError.
func (e *Engine) Submit(ctx context.Context, in Intent) error {
	var err error
	if derr := e.do(ctx, func() { err = e.submit(in) }); derr != nil {
		return derr
	}
	return err
}

// Subscribe registers fn to be called with every event. Calls happen on a
// goroutine owned by the subscription, in publication order.
// Subscribing to a closed engine is a no-op.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) {
	m := newMailbox(fn)
	e.subMu.Lock()
	if e.subsClosed {
		e.subMu.Unlock()
		return func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = m
	e.subMu.Unlock()
	go m.run()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
		m.stop()
	}
}

// Close cancels in-flight backend calls and stops the engine. Results that
// arrive afterwards are discarded.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done
		e.subMu.Lock()
		e.subsClosed = true
		for id, m := range e.subs {
			m.stop()
			delete(e.subs, id)
		}
		e.subMu.Unlock()
		slog.Debug("engine closed", slog.String("repo", e.repo.Root))
	})
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			for _, w := range e.waiters {
				w <- refreshReply{err: ErrClosed}
			}
			e.waiters = nil
			return
		case fn := <-e.inbox:
			if e.ctx.Err() != nil {
				continue
			}
			fn()
		case <-e.signal:
			e.startRefresh()
		}
	}
}

// do runs fn on the loop goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case e.inbox <- func() { fn(); close(ran) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-e.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// post hands a result from a worker goroutine to the loop.
func (e *Engine) post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Engine) startRefresh() {
	if e.refreshing {
		e.again = true
		return
	}
	e.refreshing = true
	e.seq++
	start := e.seq
	go func() {
		f, err := e.fetch(e.ctx)
		e.post(func() { e.finishRefresh(start, f, err) })
	}()
}

func (e *Engine) finishRefresh(start uint64, f fetched, err error) {
	e.refreshing = false
	waiters := e.waiters
	e.waiters = nil

	var snap *Snapshot
	if err != nil {
		snap = e.projection.Load()
		slog.Warn("refresh failed", slog.String("repo", e.repo.Root), slog.Any("error", err))
		e.notify(Event{Snapshot: snap, Err: err})
	} else {
		e.base = newBase(f, e.base, time.Now())
		e.reconcile(start)
		snap = e.publish(nil)
	}
	for _, w := range waiters {
		w <- refreshReply{snap: snap, err: err}
	}

	if e.again {
		e.again = false
		e.startRefresh()
	}
}

// reconcile drops the pending intents the fresh base makes obsolete.
func (e *Engine) reconcile(start uint64) {
	kept := make([]*pending, 0, len(e.pending))
	for _, p := range e.pending {
		if p.done && p.doneAt < start {
			slog.Debug("intent confirmed by refresh", slog.String("intent", p.intent.String()))
			continue
		}
		switch p.outcome(e.base.fetched) {
		case outcomeReflected:
			slog.Debug("intent already reflected", slog.String("intent", p.intent.String()))
		case outcomeStale:
			slog.Debug("intent dropped after external change", slog.String("intent", p.intent.String()))
		default:
			kept = append(kept, p)
		}
	}
	e.pending = kept
}

func (e *Engine) submit(in Intent) error {
	for _, p := range e.pending {
		if conflicts(in, p.intent) {
			return inFlight(in, p.intent)
		}
	}
	for _, held := range e.running {
		if conflicts(in, held) {
			return inFlight(in, held)
		}
	}
	view := e.projection.Load()
	if e.base == nil {
		return invalid(in, "repository state not loaded yet")
	}
	if err := in.validate(view); err != nil {
		return err
	}

	e.lastIntent++
	p := &pending{id: e.lastIntent, intent: in}
	if f, ok := view.File(in.Path); ok {
		p.expect = f.FileEntry
	}
	e.pending = append(e.pending, p)
	slog.Debug("intent accepted", slog.String("intent", in.String()))
	e.publish(nil)
	e.dispatch(p)
	return nil
}

func (e *Engine) dispatch(p *pending) {
	in, id := p.intent, p.id
	e.running[id] = in
	go func() {
		r := in.run(e.ctx, e.repo.Backend)
		if r.err != nil && backend.IsKind(r.err, backend.KindTransient) && e.ctx.Err() == nil {
			slog.Debug("retrying after transient failure",
				slog.String("intent", in.String()), slog.Any("error", r.err))
			if sleep(e.ctx, e.opts.RetryDelay) {
				r = in.run(e.ctx, e.repo.Backend)
			}
		}
		e.post(func() { e.finishIntent(id, r) })
	}()
}

func (e *Engine) finishIntent(id uint64, r result) {
	defer e.startRefresh()
	delete(e.running, id)

	idx := -1
	for i, p := range e.pending {
		if p.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Already retired or dropped by a refresh.
		if r.err != nil {
			slog.Debug("late failure for resolved intent", slog.Any("error", r.err))
		}
		return
	}
	p := e.pending[idx]
	if r.err != nil {
		e.pending = append(e.pending[:idx:idx], e.pending[idx+1:]...)
		slog.Warn("intent failed", slog.String("intent", p.intent.String()), slog.Any("error", r.err))
		e.publish(&OperationError{Intent: p.intent, Err: r.err})
		return
	}
	e.seq++
	p.done, p.doneAt, p.commit = true, e.seq, r.commit
	if p.commit != nil {
		e.publish(nil)
	}
}

// publish stores a new projection and notifies subscribers.
func (e *Engine) publish(err error) *Snapshot {
	e.generation++
	s := project(e.repo.Root, e.generation, e.base, e.pending)
	e.projection.Store(s)
	e.notify(Event{Snapshot: s, Err: err})
	return s
}

func (e *Engine) notify(ev Event) {
	ev.Source = e
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, m := range e.subs {
		m.put(ev)
	}
}

func (e *Engine) fetch(ctx context.Context) (fetched, error) {
	f, err := e.fetchOnce(ctx)
	if err != nil && backend.IsKind(err, backend.KindTransient) {
		slog.Debug("retrying refresh after transient failure", slog.Any("error", err))
		if !sleep(ctx, e.opts.RetryDelay) {
			return fetched{}, ctx.Err()
		}
		f, err = e.fetchOnce(ctx)
	}
	return f, err
}

func (e *Engine) fetchOnce(ctx context.Context) (fetched, error) {
	var f fetched
	if _, err := os.Stat(e.repo.Root); err != nil {
		return f, &UnavailableError{Repo: e.repo.Root, Err: err}
	}
	b := e.repo.Backend
	var err error
	if f.files, err = b.Status(ctx); err != nil {
		return f, e.classify(err)
	}
	if f.commits, err = b.Log(ctx, e.opts.LogWindow); err != nil {
		return f, e.classify(err)
	}
	if f.tags, err = b.Tags(ctx); err != nil {
		return f, e.classify(err)
	}
	if f.tracking, err = b.Tracking(ctx); err != nil {
		return f, e.classify(err)
	}
	return f, nil
}

func (e *Engine) classify(err error) error {
	if backend.IsKind(err, backend.KindNotARepository) ||
		errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return &UnavailableError{Repo: e.repo.Root, Err: err}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// mailbox delivers events to one subscriber without ever blocking the
// publisher.
type mailbox struct {
	fn    func(Event)
	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
	quit  chan struct{}
	once  sync.Once
}

func newMailbox(fn func(Event)) *mailbox {
	return &mailbox{fn: fn, wake: make(chan struct{}, 1), quit: make(chan struct{})}
}

func (m *mailbox) put(ev Event) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			batch := m.queue
			m.queue = nil
			m.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				select {
				case <-m.quit:
					return
				default:
				}
				m.fn(ev)
			}
		}
	}
}

func (m *mailbox) stop() {
	m.once.Do(func() { close(m.quit) })
}
