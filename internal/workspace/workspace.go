package workspace

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukaforge/tabula/internal/sqlite"
	"github.com/dukaforge/tabula/pkg/mergeable"
	"github.com/dukaforge/tabula/pkg/store"
)

// Config selects the data directory and owner identity for a workspace.
type Config struct {
	// DataDir holds the snapshot database. Empty disables persistence
	// (in-memory workspace, used by tests).
	DataDir string
	// UserID stamps the owner on every created row.
	UserID string
	// AutoSaveDelay debounces snapshot saves; zero uses the persister
	// default.
	AutoSaveDelay time.Duration
	// AutoLoadInterval polls the snapshot for external updates; zero
	// means load once and don't poll.
	AutoLoadInterval time.Duration
	// SyncInterval drives peer reconciliation when a Transport is set.
	SyncInterval time.Duration
	// Transport reconciles the persisted store with a peer. Nil disables
	// sync.
	Transport mergeable.Transport
	// OnError receives persistence and sync failures. Nil discards them.
	OnError func(error)
}

// ErrUserIDRequired rejects opening a workspace without an owner id.
var ErrUserIDRequired = errors.New("user id required")

// Workspace owns the two application stores and everything wired onto them:
// derived structures, the change ledger, the persistence adapter, and the
// synchronizer.
type Workspace struct {
	UserID    string
	Registry  *store.Registry
	Persisted *store.Store
	Main      *store.Store
	Ledger    *store.Ledger

	db        *sqlite.DB
	persister *sqlite.Persister
	merge     *mergeable.Store
	sync      *mergeable.Synchronizer
}

// Open builds a workspace: declares schemas and derived structures, loads
// the persisted snapshot if one exists, and starts auto-persist and sync.
func Open(cfg Config) (*Workspace, error) {
	if cfg.UserID == "" {
		return nil, ErrUserIDRequired
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Second
	}

	w := &Workspace{
		UserID:    cfg.UserID,
		Registry:  store.NewRegistry(),
		Persisted: store.New(PersistedSchema()),
		Main:      store.New(MainSchema()),
	}
	if err := w.Registry.Register(StorePersisted, w.Persisted); err != nil {
		return nil, err
	}
	if err := w.Registry.Register(StoreMain, w.Main); err != nil {
		return nil, err
	}

	w.defineDerived()

	if cfg.DataDir != "" {
		db, err := sqlite.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening workspace storage: %w", err)
		}
		w.db = db
		w.persister = sqlite.NewPersister(db, StorePersisted, w.Persisted, sqlite.Options{
			AutoSaveDelay:    cfg.AutoSaveDelay,
			AutoLoadInterval: cfg.AutoLoadInterval,
			OnError:          cfg.OnError,
		})
		// Initial load happens before the ledger attaches so restoring
		// a snapshot does not flood the changes table.
		w.persister.StartAutoLoading()
		w.persister.StartAutoPersisting()
	}

	w.Ledger = store.NewLedger(w.Persisted, w.Main, TableChanges)

	if cfg.Transport != nil {
		w.merge = mergeable.NewStore(w.Persisted, cfg.UserID+"/"+store.NewRowID())
		w.sync = mergeable.NewSynchronizer(w.merge, cfg.Transport, cfg.SyncInterval, cfg.OnError)
		w.sync.StartSync()
	}

	return w, nil
}

// Mergeable returns the persisted store's mergeable wrapper, or nil when
// sync is disabled.
func (w *Workspace) Mergeable() *mergeable.Store { return w.merge }

// Persist saves the persisted store's snapshot immediately.
func (w *Workspace) Persist() error {
	if w.persister == nil {
		return nil
	}
	return w.persister.Save()
}

// Close stops sync and persistence (flushing pending saves) and releases
// the snapshot database. The in-memory stores stay readable.
func (w *Workspace) Close() error {
	if w.sync != nil {
		w.sync.StopSync()
	}
	if w.merge != nil {
		w.merge.Close()
	}
	if w.Ledger != nil {
		w.Ledger.Close()
	}
	if w.persister != nil {
		w.persister.StopAutoLoading()
		w.persister.StopAutoPersisting()
	}
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// defineDerived declares every index, relationship, query, and metric of
// the persisted store.
func (w *Workspace) defineDerived() {
	s := w.Persisted

	s.SetIndexDefinition(IndexHumansByOrg, TableHumans,
		store.ColumnKey("org_id"), store.IndexOptions{SortColumn: "name"})
	s.SetIndexDefinition(IndexFoldersByParent, TableFolders,
		store.ColumnKey("parent_folder_id"), store.IndexOptions{SortColumn: "name"})
	s.SetIndexDefinition(IndexSessionsByFolder, TableSessions,
		store.ColumnKey("folder_id"), store.IndexOptions{SortColumn: "created_at"})
	s.SetIndexDefinition(IndexEventsByCalendar, TableEvents,
		store.ColumnKey("calendar_id"), store.IndexOptions{SortColumn: "started_at"})
	// Date buckets ordered most recent first.
	s.SetIndexDefinition(IndexEventsByDate, TableEvents,
		func(get store.RowGetter) string {
			v, _ := get("started_at").(string)
			return DateBucket(v)
		},
		store.IndexOptions{
			SortColumn:   "started_at",
			SliceCompare: descending,
		})
	s.SetIndexDefinition(IndexTagsByName, TableTags,
		store.ColumnKey("name"), store.IndexOptions{})
	s.SetIndexDefinition(IndexTagSessionsBySession, TableMappingTagSession,
		store.ColumnKey("session_id"), store.IndexOptions{})
	s.SetIndexDefinition(IndexTagSessionsByTag, TableMappingTagSession,
		store.ColumnKey("tag_id"), store.IndexOptions{})
	s.SetIndexDefinition(IndexChatMessagesByGroup, TableChatMessages,
		store.ColumnKey("chat_group_id"), store.IndexOptions{SortColumn: "created_at"})

	s.SetRelationshipDefinition(RelSessionHuman, TableSessions, TableHumans, "user_id")
	s.SetRelationshipDefinition(RelSessionToFolder, TableSessions, TableFolders, "folder_id")
	s.SetRelationshipDefinition(RelFolderToParentFolder, TableFolders, TableFolders, "parent_folder_id")
	s.SetRelationshipDefinition(RelEventParticipantToHuman, TableMappingEventParticipant, TableHumans, "human_id")
	s.SetRelationshipDefinition(RelEventParticipantToEvent, TableMappingEventParticipant, TableEvents, "event_id")
	s.SetRelationshipDefinition(RelEventToCalendar, TableEvents, TableCalendars, "calendar_id")
	s.SetRelationshipDefinition(RelTagSessionToTag, TableMappingTagSession, TableTags, "tag_id")
	s.SetRelationshipDefinition(RelTagSessionToSession, TableMappingTagSession, TableSessions, "session_id")
	s.SetRelationshipDefinition(RelChatMessageToGroup, TableChatMessages, TableChatGroups, "chat_group_id")

	// Timeline: each session placed at its event's start when it has one,
	// else at its own creation time.
	s.SetQueryDefinition(QueryTimelineSessions, TableSessions, func(q *store.QueryBuilder) {
		q.Select("user_id")
		q.Select("created_at")
		q.Select("title")
		q.Select("event_id")
		q.SelectFrom(TableEvents, "started_at").As("event_started_at")
		q.SelectComputed(func(get store.TableCellGetter) any {
			if started, _ := get(TableEvents, "started_at").(string); started != "" {
				return DateBucket(started)
			}
			created, _ := get(TableSessions, "created_at").(string)
			return DateBucket(created)
		}).As("display_date")
		q.SelectComputed(func(get store.TableCellGetter) any {
			if started, _ := get(TableEvents, "started_at").(string); started != "" {
				return started
			}
			created, _ := get(TableSessions, "created_at").(string)
			return created
		}).As("display_timestamp")
		q.Join(TableEvents, "event_id")
	})

	s.SetMetricDefinition(MetricTotalHumans, TableHumans, store.AggSum, store.One)
	s.SetMetricDefinition(MetricTotalOrganizations, TableOrganizations, store.AggSum, store.One)
}

func descending(a, b string) int {
	switch {
	case a < b:
		return 1
	case a > b:
		return -1
	default:
		return 0
	}
}

// DateBucket truncates an RFC 3339 timestamp to its UTC calendar day
// ("2006-01-02"). Unparseable input buckets as the empty string. UTC keeps
// the bucket stable across machines in different zones, which the sync layer
// relies on.
func DateBucket(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
