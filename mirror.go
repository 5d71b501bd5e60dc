package identity

import (
	"context"
	"sync"
	"time"
)

// SessionStatus describes what the mirror currently knows about the backend
// session.
type SessionStatus = string

const (
	// SessionUnknown means the mirror has not observed any change yet.
	SessionUnknown SessionStatus = "UNKNOWN"
	// SessionPending means a reconciliation is in flight
	SessionPending SessionStatus = "PENDING"
	// SessionPresent means a live backend session exists
	SessionPresent SessionStatus = "PRESENT"
	// SessionAbsent means there is no backend session: the client signed out
	// or a reconciliation failed and settled fail-safe to unauthenticated.
	SessionAbsent SessionStatus = "ABSENT"
)

// AuthState is the mirror's snapshot at a point in time. Seq orders snapshots
// so consumers can detect stale reads.
type AuthState struct {
	Status  SessionStatus
	Session *SessionObject
	Token   string
	Seq     uint64
}

// AuthChange is one event from the client identity stream. A nil Assertion
// means the client signed out.
type AuthChange struct {
	Assertion *ProviderAssertion
}

// AuthStateSource is a client identity change stream: sign-in, sign-out,
// silent refresh, or a change observed in another tab.
type AuthStateSource interface {
	Subscribe(ctx context.Context) (<-chan AuthChange, error)
}

// SessionExchanger turns a provider assertion into a backend session.
type SessionExchanger interface {
	ExchangeProvider(ctx context.Context, assertion ProviderAssertion) (*SessionObject, string, error)
}

// SessionMirror keeps a local view of the backend session in sync with a
// client identity stream. Reconciliation is last-write-wins: each change gets
// a monotonic sequence, and a resolution that lands after a newer change is
// discarded instead of applied.
type SessionMirror struct {
	exchanger    SessionExchanger
	logger       Logger
	activitySink ActivitySink
	observer     func(AuthState)

	mu    sync.Mutex
	seq   uint64
	state AuthState
}

// MirrorOption customizes mirror construction.
type MirrorOption func(*SessionMirror)

// WithMirrorLogger overrides the logger used for reconciliation failures.
func WithMirrorLogger(logger Logger) MirrorOption {
	return func(m *SessionMirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMirrorActivitySink sets the ActivitySink used to publish mirror events.
func WithMirrorActivitySink(sink ActivitySink) MirrorOption {
	return func(m *SessionMirror) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithMirrorObserver registers a callback invoked after every settled state
// change (useful for tests and UI bindings).
func WithMirrorObserver(observer func(AuthState)) MirrorOption {
	return func(m *SessionMirror) {
		m.observer = observer
	}
}

// NewSessionMirror returns a mirror that reconciles through the given
// exchanger. The initial state is unknown.
func NewSessionMirror(exchanger SessionExchanger, opts ...MirrorOption) *SessionMirror {
	m := &SessionMirror{
		exchanger:    exchanger,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		state:        AuthState{Status: SessionUnknown},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Current returns the latest settled snapshot.
func (m *SessionMirror) Current() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply ingests one change and returns its sequence number. Sign-out settles
// immediately; sign-in flips the mirror to pending and reconciles in the
// background.
func (m *SessionMirror) Apply(ctx context.Context, change AuthChange) uint64 {
	m.mu.Lock()
	m.seq++
	seq := m.seq

	if change.Assertion == nil {
		state := AuthState{Status: SessionAbsent, Seq: seq}
		m.state = state
		m.mu.Unlock()
		m.notify(state)
		return seq
	}

	m.state = AuthState{Status: SessionPending, Seq: seq}
	m.mu.Unlock()

	go m.reconcile(ctx, seq, *change.Assertion)
	return seq
}

// Run consumes a change stream until the context ends or the stream closes.
func (m *SessionMirror) Run(ctx context.Context, source AuthStateSource) error {
	changes, err := source.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			m.Apply(ctx, change)
		}
	}
}

func (m *SessionMirror) reconcile(ctx context.Context, seq uint64, assertion ProviderAssertion) {
	session, token, err := m.exchanger.ExchangeProvider(ctx, assertion)

	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		m.recordActivity(ctx, ActivityEventMirrorSuperseded, map[string]any{
			"seq":    seq,
			"latest": m.latestSeq(),
		})
		return
	}

	var state AuthState
	if err != nil {
		// Fail-safe: a failed exchange settles as unauthenticated, never as a
		// live session and never stuck in pending.
		state = AuthState{Status: SessionAbsent, Seq: seq}
		m.state = state
		m.mu.Unlock()

		m.logger.Error("session reconciliation failed: %v", err)
		m.recordActivity(ctx, ActivityEventMirrorFailed, map[string]any{
			"seq":   seq,
			"error": err.Error(),
		})
		m.notify(state)
		return
	}

	state = AuthState{Status: SessionPresent, Session: session, Token: token, Seq: seq}
	m.state = state
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEventMirrorReconciled, map[string]any{
		"seq":     seq,
		"subject": session.GetUserID(),
	})
	m.notify(state)
}

func (m *SessionMirror) latestSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

func (m *SessionMirror) notify(state AuthState) {
	if m.observer != nil {
		m.observer(state)
	}
}

func (m *SessionMirror) recordActivity(ctx context.Context, eventType ActivityEventType, metadata map[string]any) {
	sink := normalizeActivitySink(m.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{Type: "mirror"},
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("mirror activity sink error: %v", err)
	}
}
