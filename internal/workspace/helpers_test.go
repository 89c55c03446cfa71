package workspace

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukaforge/tabula/pkg/schema"
	"github.com/dukaforge/tabula/pkg/store"
)

func TestNewSessionStampsOwnership(t *testing.T) {
	w := openTestWorkspace(t)

	id, err := w.NewSession("standup", "# notes", schema.Transcript{}, "", "")
	require.NoError(t, err)

	got, ok := w.Persisted.GetRow(TableSessions, id)
	require.True(t, ok)
	assert.Equal(t, "user-1", got["user_id"])
	assert.NotEmpty(t, got["created_at"])
	assert.Equal(t, "standup", got["title"])
}

func TestEnsureConfig(t *testing.T) {
	w := openTestWorkspace(t)

	id, err := w.EnsureConfig()
	require.NoError(t, err)

	got, ok := w.Persisted.GetRow(TableConfigs, id)
	require.True(t, ok)
	assert.Equal(t, "en", got["display_language"])
	assert.Equal(t, "en", got["summary_language"])
	assert.Equal(t, true, got["telemetry_consent"])
	assert.Equal(t, false, got["save_recordings"])
	assert.Equal(t, "3", got["ai_specificity"])

	spoken, err := schema.DecodeStringList(got["spoken_languages"].(string))
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, spoken)

	// A second call returns the existing row instead of creating another.
	again, err := w.EnsureConfig()
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, w.Persisted.RowCount(TableConfigs))
}

func TestSetFolderParentRejectsCycles(t *testing.T) {
	w := openTestWorkspace(t)

	root, err := w.NewFolder("root", "")
	require.NoError(t, err)
	child, err := w.NewFolder("child", root)
	require.NoError(t, err)
	grandchild, err := w.NewFolder("grandchild", child)
	require.NoError(t, err)

	// Self-parenting and descendant-parenting are both cycles.
	assert.ErrorIs(t, w.SetFolderParent(root, root), ErrFolderCycle)
	assert.ErrorIs(t, w.SetFolderParent(root, grandchild), ErrFolderCycle)

	// The rejected writes left the tree alone.
	got, _ := w.Persisted.GetCell(TableFolders, root, "parent_folder_id")
	assert.Equal(t, "", got)

	// A legal reparent works.
	require.NoError(t, w.SetFolderParent(grandchild, root))
	got, _ = w.Persisted.GetCell(TableFolders, grandchild, "parent_folder_id")
	assert.Equal(t, root, got)
}

func TestDeleteFolderReparentsAndDetaches(t *testing.T) {
	w := openTestWorkspace(t)

	root, err := w.NewFolder("root", "")
	require.NoError(t, err)
	mid, err := w.NewFolder("mid", root)
	require.NoError(t, err)
	leaf, err := w.NewFolder("leaf", mid)
	require.NoError(t, err)
	sessionID, err := w.NewSession("notes", "", schema.Transcript{}, "", mid)
	require.NoError(t, err)

	require.NoError(t, w.DeleteFolder(mid))

	assert.False(t, w.Persisted.HasRow(TableFolders, mid))

	// The child folder moved up to the deleted folder's parent.
	parent, _ := w.Persisted.GetCell(TableFolders, leaf, "parent_folder_id")
	assert.Equal(t, root, parent)

	// The session survived, detached.
	folder, _ := w.Persisted.GetCell(TableSessions, sessionID, "folder_id")
	assert.Equal(t, "", folder)
}

func TestDeleteEventDetachesSessions(t *testing.T) {
	w := openTestWorkspace(t)

	humanID, err := w.NewHuman("alice", "", "")
	require.NoError(t, err)
	require.NoError(t, w.Persisted.SetRow(TableEvents, "e1", store.Cells{
		"user_id":    w.UserID,
		"created_at": "2024-01-01T00:00:00Z",
		"title":      "kickoff",
		"started_at": "2024-01-01T09:00:00Z",
	}))
	mappingID, err := w.AddParticipant("e1", humanID)
	require.NoError(t, err)
	sessionID, err := w.NewSession("notes", "", schema.Transcript{}, "e1", "")
	require.NoError(t, err)

	require.NoError(t, w.DeleteEvent("e1"))

	assert.False(t, w.Persisted.HasRow(TableEvents, "e1"))
	assert.False(t, w.Persisted.HasRow(TableMappingEventParticipant, mappingID))
	assert.True(t, w.Persisted.HasRow(TableHumans, humanID), "participant humans survive")

	eventRef, _ := w.Persisted.GetCell(TableSessions, sessionID, "event_id")
	assert.Equal(t, "", eventRef)
}

func TestDeleteSessionRemovesTagMappings(t *testing.T) {
	w := openTestWorkspace(t)

	tagID, err := w.NewTag("urgent")
	require.NoError(t, err)
	sessionID, err := w.NewSession("notes", "", schema.Transcript{}, "", "")
	require.NoError(t, err)
	mappingID, err := w.TagSession(tagID, sessionID)
	require.NoError(t, err)

	require.NoError(t, w.DeleteSession(sessionID))

	assert.False(t, w.Persisted.HasRow(TableSessions, sessionID))
	assert.False(t, w.Persisted.HasRow(TableMappingTagSession, mappingID))
	assert.True(t, w.Persisted.HasRow(TableTags, tagID), "tags survive their sessions")
}

func TestDeleteTagRemovesMappings(t *testing.T) {
	w := openTestWorkspace(t)

	tagID, err := w.NewTag("urgent")
	require.NoError(t, err)
	sessionID, err := w.NewSession("notes", "", schema.Transcript{}, "", "")
	require.NoError(t, err)
	mappingID, err := w.TagSession(tagID, sessionID)
	require.NoError(t, err)

	require.NoError(t, w.DeleteTag(tagID))

	assert.False(t, w.Persisted.HasRow(TableTags, tagID))
	assert.False(t, w.Persisted.HasRow(TableMappingTagSession, mappingID))
	assert.True(t, w.Persisted.HasRow(TableSessions, sessionID))
}

func TestAppendChatMessage(t *testing.T) {
	w := openTestWorkspace(t)

	groupID, err := w.NewChatGroup("")
	require.NoError(t, err)

	msgID, err := w.AppendChatMessage(groupID, "user", "summarize my week", nil, nil)
	require.NoError(t, err)

	got, ok := w.Persisted.GetRow(TableChatMessages, msgID)
	require.True(t, ok)
	assert.Equal(t, groupID, got["chat_group_id"])
	assert.Equal(t, "user", got["role"])

	// The untitled group took its first message as title.
	title, _ := w.Persisted.GetCell(TableChatGroups, groupID, "title")
	assert.Equal(t, "summarize my week", title)

	// Later messages leave the title alone.
	_, err = w.AppendChatMessage(groupID, "assistant", "here is your week", nil, nil)
	require.NoError(t, err)
	title, _ = w.Persisted.GetCell(TableChatGroups, groupID, "title")
	assert.Equal(t, "summarize my week", title)
}

func TestAppendChatMessageTruncatesLongTitle(t *testing.T) {
	w := openTestWorkspace(t)

	groupID, err := w.NewChatGroup("")
	require.NoError(t, err)

	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}
	_, err = w.AppendChatMessage(groupID, "user", long, nil, nil)
	require.NoError(t, err)

	title, _ := w.Persisted.GetCell(TableChatGroups, groupID, "title")
	assert.Len(t, title, 48)
}

func TestAppendChatMessageTruncatesTitleOnRuneBoundary(t *testing.T) {
	w := openTestWorkspace(t)

	groupID, err := w.NewChatGroup("")
	require.NoError(t, err)

	// 20 three-byte runes: 60 bytes, and 48 falls mid-rune.
	long := strings.Repeat("週", 20)
	_, err = w.AppendChatMessage(groupID, "user", long, nil, nil)
	require.NoError(t, err)

	title, _ := w.Persisted.GetCell(TableChatGroups, groupID, "title")
	s, ok := title.(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(s), "title is not valid UTF-8: %q", s)
	assert.LessOrEqual(t, len(s), 48)
	assert.Equal(t, strings.Repeat("週", 16), s)
}

func TestAppendChatMessageMissingGroupIsAtomic(t *testing.T) {
	w := openTestWorkspace(t)

	_, err := w.AppendChatMessage("ghost", "user", "hello", nil, nil)
	assert.ErrorIs(t, err, ErrGroupNotFound)

	// The message insert rolled back with the failed group lookup.
	assert.Equal(t, 0, w.Persisted.RowCount(TableChatMessages))
}

func TestDeleteChatGroupRemovesMessages(t *testing.T) {
	w := openTestWorkspace(t)

	groupID, err := w.NewChatGroup("chat")
	require.NoError(t, err)
	msgID, err := w.AppendChatMessage(groupID, "user", "hello", nil, nil)
	require.NoError(t, err)

	require.NoError(t, w.DeleteChatGroup(groupID))
	assert.False(t, w.Persisted.HasRow(TableChatGroups, groupID))
	assert.False(t, w.Persisted.HasRow(TableChatMessages, msgID))
}
