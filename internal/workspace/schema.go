// Package workspace is the composition root for the Tabula application
// stores: it declares the business tables, their indexes, relationships,
// queries, and metrics, and wires the change ledger, persistence, and sync.
package workspace

import "github.com/dukaforge/tabula/pkg/schema"

// Store ids in the registry.
const (
	StorePersisted = "persisted"
	StoreMain      = "main"
)

// Business tables of the persisted store.
const (
	TableFolders                 = "folders"
	TableSessions                = "sessions"
	TableHumans                  = "humans"
	TableOrganizations           = "organizations"
	TableCalendars               = "calendars"
	TableEvents                  = "events"
	TableMappingEventParticipant = "mapping_event_participant"
	TableTags                    = "tags"
	TableMappingTagSession       = "mapping_tag_session"
	TableTemplates               = "templates"
	TableConfigs                 = "configs"
	TableChatGroups              = "chat_groups"
	TableChatMessages            = "chat_messages"
)

// TableChanges is the change-ledger table of the main store.
const TableChanges = "changes"

// Index names.
const (
	IndexHumansByOrg          = "humansByOrg"
	IndexFoldersByParent      = "foldersByParent"
	IndexSessionsByFolder     = "sessionsByFolder"
	IndexEventsByCalendar     = "eventsByCalendar"
	IndexEventsByDate         = "eventsByDate"
	IndexTagsByName           = "tagsByName"
	IndexTagSessionsBySession = "tagSessionsBySession"
	IndexTagSessionsByTag     = "tagSessionsByTag"
	IndexChatMessagesByGroup  = "chatMessagesByGroup"
)

// Relationship names.
const (
	RelSessionHuman            = "sessionHuman"
	RelSessionToFolder         = "sessionToFolder"
	RelFolderToParentFolder    = "folderToParentFolder"
	RelEventParticipantToHuman = "eventParticipantToHuman"
	RelEventParticipantToEvent = "eventParticipantToEvent"
	RelEventToCalendar         = "eventToCalendar"
	RelTagSessionToTag         = "tagSessionToTag"
	RelTagSessionToSession     = "tagSessionToSession"
	RelChatMessageToGroup      = "chatMessageToGroup"
)

// Query and metric names.
const (
	QueryTimelineSessions = "timelineSessions"

	MetricTotalHumans        = "totalHumans"
	MetricTotalOrganizations = "totalOrganizations"
)

// owned declares the two columns every business row carries, set once at
// creation and never mutated afterward.
func owned() schema.TableSchema {
	return schema.TableSchema{
		"user_id":    {Type: schema.CellString, Required: true},
		"created_at": {Type: schema.CellString, Required: true},
	}
}

func withOwned(cols schema.TableSchema) schema.TableSchema {
	ts := owned()
	for name, col := range cols {
		ts[name] = col
	}
	return ts
}

// PersistedSchema declares the persisted store's tables. Foreign-key cells
// are optional strings; an empty cell means no relation.
func PersistedSchema() schema.Schema {
	str := schema.Column{Type: schema.CellString}
	boolean := schema.Column{Type: schema.CellBool}
	return schema.Schema{
		TableFolders: withOwned(schema.TableSchema{
			"name":             str,
			"parent_folder_id": str,
		}),
		TableSessions: withOwned(schema.TableSchema{
			"folder_id":   str,
			"event_id":    str,
			"title":       str,
			"raw_md":      str,
			"enhanced_md": str,
			"transcript":  str,
		}),
		TableHumans: withOwned(schema.TableSchema{
			"name":   str,
			"email":  str,
			"org_id": str,
		}),
		TableOrganizations: withOwned(schema.TableSchema{
			"name": str,
		}),
		TableCalendars: withOwned(schema.TableSchema{
			"name": str,
		}),
		TableEvents: withOwned(schema.TableSchema{
			"calendar_id": str,
			"title":       str,
			"started_at":  str,
			"ended_at":    str,
		}),
		TableMappingEventParticipant: withOwned(schema.TableSchema{
			"event_id": str,
			"human_id": str,
		}),
		TableTags: withOwned(schema.TableSchema{
			"name": str,
		}),
		TableMappingTagSession: withOwned(schema.TableSchema{
			"tag_id":     str,
			"session_id": str,
		}),
		TableTemplates: withOwned(schema.TableSchema{
			"title":       str,
			"description": str,
			"sections":    str,
		}),
		TableConfigs: withOwned(schema.TableSchema{
			"autostart":                      boolean,
			"display_language":               str,
			"spoken_languages":               str,
			"jargons":                        str,
			"telemetry_consent":              boolean,
			"save_recordings":                boolean,
			"selected_template_id":           str,
			"summary_language":               str,
			"notification_before":            boolean,
			"notification_auto":              boolean,
			"notification_ignored_platforms": str,
			"ai_api_base":                    str,
			"ai_api_key":                     str,
			"ai_specificity":                 str,
		}),
		TableChatGroups: withOwned(schema.TableSchema{
			"title": str,
		}),
		TableChatMessages: withOwned(schema.TableSchema{
			"chat_group_id": str,
			"role":          str,
			"content":       str,
			"metadata":      str,
			"parts":         str,
		}),
	}
}

// MainSchema declares the main store's tables. It carries the change ledger
// records produced from the persisted store's transactions.
func MainSchema() schema.Schema {
	return schema.Schema{
		TableChanges: schema.TableSchema{
			"row_id":  {Type: schema.CellString, Required: true},
			"table":   {Type: schema.CellString, Required: true},
			"deleted": {Type: schema.CellBool, Required: true},
			"updated": {Type: schema.CellBool, Required: true},
		},
	}
}
