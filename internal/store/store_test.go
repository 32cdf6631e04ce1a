package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
}

func TestUpsertProfile(t *testing.T) {
	db := testDB(t)

	changed, err := db.UpsertProfile(&Profile{ID: "alice", Name: "Alice"})
	require.NoError(t, err)
	require.True(t, changed, "insert should report changed")

	// Identical upsert is a no-op.
	changed, err = db.UpsertProfile(&Profile{ID: "alice", Name: "Alice"})
	require.NoError(t, err)
	require.False(t, changed)

	// Empty fields never clobber stored values.
	changed, err = db.UpsertProfile(&Profile{ID: "alice"})
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = db.UpsertProfile(&Profile{ID: "alice", Name: "Alice B", Avatar: "ipfs://pic"})
	require.NoError(t, err)
	require.True(t, changed)

	p, err := db.GetProfile("alice")
	require.NoError(t, err)
	require.Equal(t, "Alice B", p.Name)
	require.Equal(t, "ipfs://pic", p.Avatar)

	// No duplicate rows.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestGetProfileNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetProfile("missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want *NotFoundError", err)
	}
	if nf.ID != "missing" {
		t.Errorf("error names id %q, want missing", nf.ID)
	}
}

func TestUpsertChatNeverChangesType(t *testing.T) {
	db := testDB(t)

	created, err := db.UpsertChat(&Chat{ID: "alice", Type: ChatPrivate})
	require.NoError(t, err)
	require.True(t, created)

	// A second upsert with a different declared type updates metadata only.
	created, err = db.UpsertChat(&Chat{ID: "alice", Name: "Alice", Type: ChatGroup})
	require.NoError(t, err)
	require.False(t, created)

	c, err := db.GetChat("alice")
	require.NoError(t, err)
	require.Equal(t, ChatPrivate, c.Type)
	require.Equal(t, "Alice", c.Name)
}

func TestListChatsOrderedByID(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"charlie", "alice", "group:1", "bob"} {
		typ := ChatPrivate
		if IsGroupID(id) {
			typ = ChatGroup
		}
		if _, err := db.UpsertChat(&Chat{ID: id, Type: typ}); err != nil {
			t.Fatal(err)
		}
	}

	chats, err := db.ListChats()
	require.NoError(t, err)
	require.Len(t, chats, 4)
	for i := 1; i < len(chats); i++ {
		require.Less(t, chats[i-1].ID, chats[i].ID)
	}
}

func TestListChatsEmptyIsNotNil(t *testing.T) {
	db := testDB(t)

	chats, err := db.ListChats()
	require.NoError(t, err)
	require.NotNil(t, chats)
	require.Empty(t, chats)
}

func seedMessages(t *testing.T, db *DB, chatID string, n int) {
	t.Helper()
	if _, err := db.UpsertChat(&Chat{ID: chatID, Type: ChatPrivate}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertProfile(&Profile{ID: chatID}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		_, err := db.InsertMessage(&Message{
			ChatID:    chatID,
			FromID:    chatID,
			Content:   fmt.Sprintf("msg %d", i),
			Timestamp: int64(1000 + i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "alice", 45)

	page1, err := db.ListMessages("alice", 1)
	require.NoError(t, err)
	require.Len(t, page1, PageSize)

	page2, err := db.ListMessages("alice", 2)
	require.NoError(t, err)
	require.Len(t, page2, PageSize)

	page3, err := db.ListMessages("alice", 3)
	require.NoError(t, err)
	require.Len(t, page3, 5, "short page signals no further pages")

	// Descending by timestamp, contiguous, disjoint windows.
	require.Equal(t, int64(1044), page1[0].Timestamp)
	require.Equal(t, int64(1025), page1[PageSize-1].Timestamp)
	require.Equal(t, int64(1024), page2[0].Timestamp)
	seen := map[int64]bool{}
	for _, m := range append(append(page1, page2...), page3...) {
		require.False(t, seen[m.ID], "message %d appears twice", m.ID)
		seen[m.ID] = true
	}
}

func TestListMessagesPageClamped(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "alice", 3)

	for _, page := range []int{1, 0, -5} {
		msgs, err := db.ListMessages("alice", page)
		require.NoError(t, err)
		require.Len(t, msgs, 3, "page %d should clamp to first window", page)
	}
}

func TestInsertMessageNeverDeduplicates(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "alice", 0)

	m := &Message{ChatID: "alice", FromID: "alice", Content: "hi", Timestamp: 1000}
	first, err := db.InsertMessage(m)
	require.NoError(t, err)
	second, err := db.InsertMessage(m)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestGetMessage(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "alice", 1)

	m, err := db.GetMessage(1)
	require.NoError(t, err)
	require.Equal(t, "msg 0", m.Content)

	_, err = db.GetMessage(99)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestChatMembers(t *testing.T) {
	db := testDB(t)

	_, err := db.UpsertChat(&Chat{ID: "group:7", Type: ChatGroup})
	require.NoError(t, err)
	require.NoError(t, db.AddChatMember("group:7", "alice"))
	require.NoError(t, db.AddChatMember("group:7", "bob"))
	require.NoError(t, db.AddChatMember("group:7", "alice"))

	members, err := db.ListChatMembers("group:7")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, members)
}

func TestClosedHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.ListChats()
	require.ErrorIs(t, err, ErrClosed)
	_, err = db.UpsertProfile(&Profile{ID: "x"})
	require.ErrorIs(t, err, ErrClosed)
	_, err = db.InsertMessage(&Message{ChatID: "x", FromID: "x"})
	require.ErrorIs(t, err, ErrClosed)
}
