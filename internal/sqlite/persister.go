package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dukaforge/tabula/pkg/store"
)

// DBFileName is the snapshot database created inside the data directory.
const DBFileName = "tabula.db"

// ErrNoSnapshot is returned by Load when the store id has never been saved.
var ErrNoSnapshot = errors.New("no persisted snapshot")

// DB is a handle on the snapshot database, shared by the persisters of all
// stores in one data directory.
type DB struct {
	db *sql.DB
}

// Open creates the data directory if needed and opens (or creates) the
// snapshot database inside it.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db: %w", err)
	}
	if _, err := db.Exec(createStores); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the snapshot database.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Options configure a Persister's background behavior.
type Options struct {
	// AutoSaveDelay debounces save-on-change: a save runs this long after
	// the first unsaved commit. Zero means 500ms.
	AutoSaveDelay time.Duration
	// AutoLoadInterval polls the snapshot for external updates. A very
	// large interval effectively means "load once, don't poll".
	AutoLoadInterval time.Duration
	// OnError receives persistence failures. Failures never touch the
	// in-memory store; the last good snapshot stays valid on disk. Nil
	// discards errors.
	OnError func(error)
}

// Persister serializes one store's tables to its snapshot row and reloads
// them on startup.
type Persister struct {
	db      *DB
	storeID string
	store   *store.Store
	opts    Options

	mu        sync.Mutex
	unsub     store.Unsubscribe
	saveTimer *time.Timer
	loadStop  chan struct{}
}

// NewPersister creates a persister binding the store to its snapshot row.
func NewPersister(db *DB, storeID string, s *store.Store, opts Options) *Persister {
	if opts.AutoSaveDelay <= 0 {
		opts.AutoSaveDelay = 500 * time.Millisecond
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &Persister{db: db, storeID: storeID, store: s, opts: opts}
}

// Save serializes the store's full table state into its snapshot row. The
// write replaces the previous snapshot atomically (single-row upsert inside
// sqlite's own transaction).
func (p *Persister) Save() error {
	state, err := json.Marshal(p.store.Tables())
	if err != nil {
		return fmt.Errorf("serializing store %s: %w", p.storeID, err)
	}
	_, err = p.db.db.Exec(`
		INSERT INTO stores (id, state, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			saved_at = excluded.saved_at`,
		p.storeID, string(state), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving store %s: %w", p.storeID, err)
	}
	return nil
}

// Load replaces the store's contents with the persisted snapshot. Returns
// ErrNoSnapshot when the store id has never been saved; in-memory state is
// untouched on any failure.
func (p *Persister) Load() error {
	var state string
	err := p.db.db.QueryRow(
		"SELECT state FROM stores WHERE id = ?", p.storeID).Scan(&state)
	if err == sql.ErrNoRows {
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", p.storeID, err)
	}
	var tables map[string]map[string]store.Cells
	if err := json.Unmarshal([]byte(state), &tables); err != nil {
		return fmt.Errorf("parsing snapshot %s: %w", p.storeID, err)
	}
	if err := p.store.SetTables(tables); err != nil {
		return fmt.Errorf("loading snapshot %s: %w", p.storeID, err)
	}
	return nil
}

// StartAutoPersisting begins saving on change. The commit path is never
// blocked: the commit listener only arms a debounce timer, and the save runs
// on the timer goroutine.
func (p *Persister) StartAutoPersisting() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsub != nil {
		return
	}
	p.unsub = p.store.OnTransaction(func(*store.Changes) {
		p.armSave()
	})
}

// StopAutoPersisting stops save-on-change and flushes any pending save.
func (p *Persister) StopAutoPersisting() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	timer := p.saveTimer
	p.saveTimer = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if timer != nil && timer.Stop() {
		// A save was pending; run it now so no committed state is lost.
		if err := p.Save(); err != nil {
			p.opts.OnError(err)
		}
	}
}

func (p *Persister) armSave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveTimer != nil {
		return
	}
	p.saveTimer = time.AfterFunc(p.opts.AutoSaveDelay, func() {
		p.mu.Lock()
		p.saveTimer = nil
		p.mu.Unlock()
		if err := p.Save(); err != nil {
			p.opts.OnError(err)
		}
	})
}

// StartAutoLoading loads the snapshot once, then polls for external updates
// every AutoLoadInterval. Missing snapshots on the initial load are not an
// error (first run).
func (p *Persister) StartAutoLoading() {
	if err := p.Load(); err != nil && !errors.Is(err, ErrNoSnapshot) {
		p.opts.OnError(err)
	}
	if p.opts.AutoLoadInterval <= 0 {
		return
	}

	p.mu.Lock()
	if p.loadStop != nil {
		p.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	p.loadStop = stop
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.opts.AutoLoadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := p.Load(); err != nil && !errors.Is(err, ErrNoSnapshot) {
					p.opts.OnError(err)
				}
			}
		}
	}()
}

// StopAutoLoading stops snapshot polling.
func (p *Persister) StopAutoLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadStop != nil {
		close(p.loadStop)
		p.loadStop = nil
	}
}
