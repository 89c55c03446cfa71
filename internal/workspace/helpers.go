package workspace

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/dukaforge/tabula/pkg/schema"
	"github.com/dukaforge/tabula/pkg/store"
)

// Write-helper errors.
var (
	ErrFolderCycle   = errors.New("folder parent would create a cycle")
	ErrGroupNotFound = errors.New("chat group not found")
)

// owned returns the cells every created row starts with.
func (w *Workspace) ownedCells() store.Cells {
	return store.Cells{
		"user_id":    w.UserID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func merged(base store.Cells, extra store.Cells) store.Cells {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// NewSession creates a session. Event and folder references are optional;
// pass empty strings for none.
func (w *Workspace) NewSession(title, rawMD string, transcript schema.Transcript, eventID, folderID string) (string, error) {
	encoded, err := schema.EncodeTranscript(transcript)
	if err != nil {
		return "", err
	}
	return w.Persisted.AddRow(TableSessions, merged(w.ownedCells(), store.Cells{
		"title":       title,
		"raw_md":      rawMD,
		"enhanced_md": "",
		"transcript":  encoded,
		"event_id":    eventID,
		"folder_id":   folderID,
	}))
}

// NewEvent creates a calendar event.
func (w *Workspace) NewEvent(calendarID, title string, startedAt, endedAt time.Time) (string, error) {
	return w.Persisted.AddRow(TableEvents, merged(w.ownedCells(), store.Cells{
		"calendar_id": calendarID,
		"title":       title,
		"started_at":  startedAt.UTC().Format(time.RFC3339),
		"ended_at":    endedAt.UTC().Format(time.RFC3339),
	}))
}

// NewFolder creates a folder under the given parent ("" for top level).
func (w *Workspace) NewFolder(name, parentFolderID string) (string, error) {
	return w.Persisted.AddRow(TableFolders, merged(w.ownedCells(), store.Cells{
		"name":             name,
		"parent_folder_id": parentFolderID,
	}))
}

// NewHuman creates a person, optionally attached to an organization.
func (w *Workspace) NewHuman(name, email, orgID string) (string, error) {
	return w.Persisted.AddRow(TableHumans, merged(w.ownedCells(), store.Cells{
		"name":   name,
		"email":  email,
		"org_id": orgID,
	}))
}

// NewOrganization creates an organization.
func (w *Workspace) NewOrganization(name string) (string, error) {
	return w.Persisted.AddRow(TableOrganizations, merged(w.ownedCells(), store.Cells{"name": name}))
}

// NewCalendar creates a calendar.
func (w *Workspace) NewCalendar(name string) (string, error) {
	return w.Persisted.AddRow(TableCalendars, merged(w.ownedCells(), store.Cells{"name": name}))
}

// NewTag creates a tag.
func (w *Workspace) NewTag(name string) (string, error) {
	return w.Persisted.AddRow(TableTags, merged(w.ownedCells(), store.Cells{"name": name}))
}

// TagSession attaches a tag to a session via a mapping row.
func (w *Workspace) TagSession(tagID, sessionID string) (string, error) {
	return w.Persisted.AddRow(TableMappingTagSession, merged(w.ownedCells(), store.Cells{
		"tag_id":     tagID,
		"session_id": sessionID,
	}))
}

// AddParticipant attaches a human to an event via a mapping row.
func (w *Workspace) AddParticipant(eventID, humanID string) (string, error) {
	return w.Persisted.AddRow(TableMappingEventParticipant, merged(w.ownedCells(), store.Cells{
		"event_id": eventID,
		"human_id": humanID,
	}))
}

// NewTemplate creates a note template with its sections.
func (w *Workspace) NewTemplate(title, description string, sections []schema.TemplateSection) (string, error) {
	encoded, err := schema.EncodeTemplateSections(sections)
	if err != nil {
		return "", err
	}
	return w.Persisted.AddRow(TableTemplates, merged(w.ownedCells(), store.Cells{
		"title":       title,
		"description": description,
		"sections":    encoded,
	}))
}

// NewChatGroup creates an empty chat group.
func (w *Workspace) NewChatGroup(title string) (string, error) {
	return w.Persisted.AddRow(TableChatGroups, merged(w.ownedCells(), store.Cells{"title": title}))
}

// AppendChatMessage adds a message to a group. The message insert and the
// group-title backfill (an untitled group takes its first message as title)
// land in one transaction.
func (w *Workspace) AppendChatMessage(groupID, role, content string, parts []schema.MessagePart, metadata map[string]string) (string, error) {
	encodedParts, err := schema.EncodeMessageParts(parts)
	if err != nil {
		return "", err
	}
	encodedMeta, err := schema.EncodeMessageMetadata(metadata)
	if err != nil {
		return "", err
	}
	msgID := store.NewRowID()
	err = w.Persisted.Transaction(func(tx *store.Tx) error {
		group, ok := tx.GetRow(TableChatGroups, groupID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
		}
		if err := tx.SetRow(TableChatMessages, msgID, merged(w.ownedCells(), store.Cells{
			"chat_group_id": groupID,
			"role":          role,
			"content":       content,
			"parts":         encodedParts,
			"metadata":      encodedMeta,
		})); err != nil {
			return err
		}
		if title, _ := group["title"].(string); title == "" {
			return tx.SetPartialRow(TableChatGroups, groupID, store.Cells{
				"title": truncate(content, 48),
			})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msgID, nil
}

// EnsureConfig returns the configs row id, creating a default config when
// none exists. Defaults: English display and summary language, spoken
// languages ["en"], telemetry on, notifications on, recordings off.
func (w *Workspace) EnsureConfig() (string, error) {
	ids := w.Persisted.RowIDs(TableConfigs)
	if len(ids) > 0 {
		return ids[0], nil
	}
	spoken, err := schema.EncodeStringList([]string{"en"})
	if err != nil {
		return "", err
	}
	jargons, err := schema.EncodeStringList([]string{})
	if err != nil {
		return "", err
	}
	return w.Persisted.AddRow(TableConfigs, merged(w.ownedCells(), store.Cells{
		"autostart":           false,
		"display_language":    "en",
		"spoken_languages":    spoken,
		"jargons":             jargons,
		"telemetry_consent":   true,
		"save_recordings":     false,
		"summary_language":    "en",
		"notification_before": true,
		"notification_auto":   true,
		"ai_specificity":      "3",
	}))
}

// SetSessionEvent points a session at a calendar event ("" detaches).
func (w *Workspace) SetSessionEvent(sessionID, eventID string) error {
	return w.Persisted.SetPartialRow(TableSessions, sessionID, store.Cells{"event_id": eventID})
}

// SetSessionFolder moves a session into a folder ("" removes it).
func (w *Workspace) SetSessionFolder(sessionID, folderID string) error {
	return w.Persisted.SetPartialRow(TableSessions, sessionID, store.Cells{"folder_id": folderID})
}

// SetFolderParent reparents a folder ("" moves it to top level). The write
// is rejected with ErrFolderCycle when the new parent is the folder itself
// or any of its descendants.
func (w *Workspace) SetFolderParent(folderID, parentID string) error {
	return w.Persisted.Transaction(func(tx *store.Tx) error {
		seen := map[string]bool{}
		for cursor := parentID; cursor != ""; {
			if cursor == folderID || seen[cursor] {
				return fmt.Errorf("%w: %s -> %s", ErrFolderCycle, folderID, parentID)
			}
			seen[cursor] = true
			next, _ := tx.GetCell(TableFolders, cursor, "parent_folder_id")
			cursor, _ = next.(string)
		}
		return tx.SetPartialRow(TableFolders, folderID, store.Cells{"parent_folder_id": parentID})
	})
}

// DeleteSession removes a session and its tag mappings in one transaction.
func (w *Workspace) DeleteSession(sessionID string) error {
	mappings := w.Persisted.LocalRowIDs(RelTagSessionToSession, sessionID)
	return w.Persisted.Transaction(func(tx *store.Tx) error {
		for _, id := range mappings {
			if err := tx.DelRow(TableMappingTagSession, id); err != nil {
				return err
			}
		}
		return tx.DelRow(TableSessions, sessionID)
	})
}

// DeleteFolder removes a folder, reparenting child folders to the deleted
// folder's parent and detaching its sessions, all in one transaction.
func (w *Workspace) DeleteFolder(folderID string) error {
	children := w.Persisted.LocalRowIDs(RelFolderToParentFolder, folderID)
	sessions := w.Persisted.LocalRowIDs(RelSessionToFolder, folderID)
	return w.Persisted.Transaction(func(tx *store.Tx) error {
		parent := ""
		if v, ok := tx.GetCell(TableFolders, folderID, "parent_folder_id"); ok {
			parent, _ = v.(string)
		}
		for _, id := range children {
			if err := tx.SetPartialRow(TableFolders, id, store.Cells{"parent_folder_id": parent}); err != nil {
				return err
			}
		}
		for _, id := range sessions {
			if err := tx.SetPartialRow(TableSessions, id, store.Cells{"folder_id": ""}); err != nil {
				return err
			}
		}
		return tx.DelRow(TableFolders, folderID)
	})
}

// DeleteEvent removes an event, detaching its sessions and deleting its
// participant mappings in one transaction.
func (w *Workspace) DeleteEvent(eventID string) error {
	participants := w.Persisted.LocalRowIDs(RelEventParticipantToEvent, eventID)
	var sessions []string
	for rowID, cells := range w.Persisted.GetTable(TableSessions) {
		if ref, _ := cells["event_id"].(string); ref == eventID {
			sessions = append(sessions, rowID)
		}
	}
	return w.Persisted.Transaction(func(tx *store.Tx) error {
		for _, id := range participants {
			if err := tx.DelRow(TableMappingEventParticipant, id); err != nil {
				return err
			}
		}
		for _, id := range sessions {
			if err := tx.SetPartialRow(TableSessions, id, store.Cells{"event_id": ""}); err != nil {
				return err
			}
		}
		return tx.DelRow(TableEvents, eventID)
	})
}

// DeleteTag removes a tag and its session mappings in one transaction.
func (w *Workspace) DeleteTag(tagID string) error {
	mappings := w.Persisted.LocalRowIDs(RelTagSessionToTag, tagID)
	return w.Persisted.Transaction(func(tx *store.Tx) error {
		for _, id := range mappings {
			if err := tx.DelRow(TableMappingTagSession, id); err != nil {
				return err
			}
		}
		return tx.DelRow(TableTags, tagID)
	})
}

// DeleteChatGroup removes a group and all its messages in one transaction.
func (w *Workspace) DeleteChatGroup(groupID string) error {
	messages := w.Persisted.LocalRowIDs(RelChatMessageToGroup, groupID)
	return w.Persisted.Transaction(func(tx *store.Tx) error {
		for _, id := range messages {
			if err := tx.DelRow(TableChatMessages, id); err != nil {
				return err
			}
		}
		return tx.DelRow(TableChatGroups, groupID)
	})
}

// TimelineRow is one entry of the session timeline.
type TimelineRow struct {
	SessionID        string
	Title            string
	DisplayDate      string
	DisplayTimestamp string
}

// Timeline returns the timeline query's rows, most recent first.
func (w *Workspace) Timeline() []TimelineRow {
	result := w.Persisted.ResultTable(QueryTimelineSessions)
	rows := make([]TimelineRow, 0, len(result))
	for sessionID, cells := range result {
		title, _ := cells["title"].(string)
		date, _ := cells["display_date"].(string)
		ts, _ := cells["display_timestamp"].(string)
		rows = append(rows, TimelineRow{
			SessionID:        sessionID,
			Title:            title,
			DisplayDate:      date,
			DisplayTimestamp: ts,
		})
	}
	sortTimeline(rows)
	return rows
}

// sortTimeline orders rows most recent first, session id as tiebreak.
func sortTimeline(rows []TimelineRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DisplayTimestamp != rows[j].DisplayTimestamp {
			return rows[i].DisplayTimestamp > rows[j].DisplayTimestamp
		}
		return rows[i].SessionID < rows[j].SessionID
	})
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
