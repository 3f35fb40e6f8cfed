package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type countObserver struct {
	mu   sync.Mutex
	last int
	hits int
}

func (o *countObserver) SetSessions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last, o.hits = n, o.hits+1
}

func newTestManager(idle time.Duration) (*SessionManager, *countObserver, *time.Time) {
	obs := &countObserver{}
	m := NewSessionManager(idle, obs, zerolog.Nop())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, obs, &clock
}

func TestNewPage(t *testing.T) {
	deps := Deps{Logger: zerolog.Nop()}
	for _, name := range []string{PageTrials, PageSubjects, PageVisits, PageCRFs, PageCRForm} {
		p, err := NewPage(name, deps, uuid.Nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("expected %s, got %s", name, p.Name())
		}
	}
	if _, err := NewPage("reports", deps, uuid.Nil); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("expected ErrUnknownPage, got %v", err)
	}
}

func TestSessionManager_OpenGetClose(t *testing.T) {
	fx := seedFixture(t)
	m, obs, _ := newTestManager(time.Minute)
	ctx := context.Background()

	s, err := m.Open(ctx, "alice", NewTrialsPage(depsFor(fx.store)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Page.View().Status != Ready {
		t.Error("an opened session holds an activated page")
	}
	if m.Len() != 1 || obs.last != 1 {
		t.Errorf("expected one session observed, got len %d, observed %d", m.Len(), obs.last)
	}

	got, err := m.Get(s.ID, "alice")
	if err != nil || got != s {
		t.Fatalf("get: %v", err)
	}
	if _, err := m.Get(s.ID, "bob"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("other users must not see the session, got %v", err)
	}
	if err := m.Close(s.ID, "bob"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("other users must not close the session, got %v", err)
	}
	if err := m.Close(s.ID, "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.Len() != 0 || obs.last != 0 {
		t.Errorf("expected no sessions, got %d", m.Len())
	}
	if _, err := m.Get(s.ID, "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("closed session must be gone, got %v", err)
	}
}

func TestSessionManager_OpenTwiceFails(t *testing.T) {
	m, _, _ := newTestManager(time.Minute)
	p := NewTrialsPage(Deps{Logger: zerolog.Nop()})
	if _, err := m.Open(context.Background(), "alice", p); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := m.Open(context.Background(), "alice", p); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("an activated page cannot open a second session, got %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 session, got %d", m.Len())
	}
}

func TestSessionManager_Expiry(t *testing.T) {
	m, obs, clock := newTestManager(10 * time.Minute)
	ctx := context.Background()
	deps := Deps{Logger: zerolog.Nop()}

	idle, _ := m.Open(ctx, "alice", NewTrialsPage(deps))
	active, _ := m.Open(ctx, "alice", NewVisitsPage(deps))

	*clock = clock.Add(6 * time.Minute)
	if _, err := m.Get(active.ID, "alice"); err != nil {
		t.Fatalf("get: %v", err)
	}
	*clock = clock.Add(6 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if m.Len() != 1 || obs.last != 1 {
		t.Errorf("expected the active session to survive, got %d", m.Len())
	}
	if _, err := m.Get(idle.ID, "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected expired session gone, got %v", err)
	}

	*clock = clock.Add(11 * time.Minute)
	if _, err := m.Get(active.ID, "alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("get must not revive an expired session, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected no sessions, got %d", m.Len())
	}
}

func TestSessionManager_NoIdleTimeout(t *testing.T) {
	m, _, clock := newTestManager(0)
	s, _ := m.Open(context.Background(), "alice", NewTrialsPage(Deps{Logger: zerolog.Nop()}))
	*clock = clock.Add(24 * time.Hour)
	if m.Sweep() != 0 {
		t.Error("sessions never expire without an idle timeout")
	}
	if _, err := m.Get(s.ID, "alice"); err != nil {
		t.Errorf("get: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run must return at once without an idle timeout")
	}
}

func TestSessionManager_RunStopsOnCancel(t *testing.T) {
	m, _, _ := newTestManager(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
