package mergeable

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoPeer is returned by a Transport when no peer is reachable. The
// synchronizer treats it as "nothing to do", not a failure.
var ErrNoPeer = errors.New("no peer available")

// Transport carries one reconciliation round: deliver our state delta to the
// peer and return the peer's delta in response. Implementations decide the
// wire; the merge semantics do not depend on it.
type Transport interface {
	Exchange(ctx context.Context, delta State) (State, error)
}

// Synchronizer continuously reconciles a mergeable store with a peer over a
// transport. Peer unavailability is tolerated; after reconnection the next
// round catches up via a state diff rather than a full resend.
type Synchronizer struct {
	store     *Store
	transport Transport
	interval  time.Duration
	onError   func(error)

	mu      sync.Mutex
	since   Stamp
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSynchronizer creates a synchronizer exchanging state every interval.
// onError receives transport failures other than ErrNoPeer; nil discards
// them.
func NewSynchronizer(s *Store, t Transport, interval time.Duration, onError func(error)) *Synchronizer {
	if onError == nil {
		onError = func(error) {}
	}
	return &Synchronizer{store: s, transport: t, interval: interval, onError: onError}
}

// StartSync begins continuous bidirectional reconciliation in the
// background. It does not block; calling it twice is a no-op.
func (y *Synchronizer) StartSync() {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	y.cancel = cancel
	y.done = make(chan struct{})
	y.started = true
	go y.run(ctx)
}

// StopSync stops reconciliation and waits for the in-flight round to finish.
// The store is left in its last consistent merged state.
func (y *Synchronizer) StopSync() {
	y.mu.Lock()
	if !y.started {
		y.mu.Unlock()
		return
	}
	cancel, done := y.cancel, y.done
	y.started = false
	y.mu.Unlock()

	cancel()
	<-done
}

// SyncOnce runs a single reconciliation round: send everything stamped since
// the last successful round, merge whatever the peer returns.
func (y *Synchronizer) SyncOnce(ctx context.Context) error {
	y.mu.Lock()
	since := y.since
	y.mu.Unlock()

	// Snapshot the cursor before exporting, so a write stamped between
	// the two calls is re-sent next round instead of lost. Re-sends are
	// harmless since merge is idempotent.
	next := y.store.MaxStamp()
	delta := y.store.ChangesSince(since)

	reply, err := y.transport.Exchange(ctx, delta)
	if err != nil {
		if errors.Is(err, ErrNoPeer) {
			return nil
		}
		return err
	}
	if err := y.store.Merge(reply); err != nil {
		return err
	}

	y.mu.Lock()
	y.since = next
	y.mu.Unlock()
	return nil
}

func (y *Synchronizer) run(ctx context.Context) {
	defer close(y.done)
	ticker := time.NewTicker(y.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := y.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				y.onError(err)
			}
		}
	}
}

// LocalTransport reconciles directly with another in-process mergeable
// store. It backs same-machine multi-store sync and the convergence tests;
// a cross-process transport implements Transport over its own wire.
type LocalTransport struct {
	mu   sync.Mutex
	peer *Store
}

// NewLocalTransport creates a transport with no peer attached.
func NewLocalTransport() *LocalTransport { return &LocalTransport{} }

// SetPeer attaches (or detaches, with nil) the peer store.
func (t *LocalTransport) SetPeer(peer *Store) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peer = peer
}

// Exchange merges our delta into the peer and returns the peer's full
// mergeable state. Without a peer it reports ErrNoPeer.
func (t *LocalTransport) Exchange(_ context.Context, delta State) (State, error) {
	t.mu.Lock()
	peer := t.peer
	t.mu.Unlock()
	if peer == nil {
		return State{}, ErrNoPeer
	}
	if err := peer.Merge(delta); err != nil {
		return State{}, err
	}
	return peer.State(), nil
}
