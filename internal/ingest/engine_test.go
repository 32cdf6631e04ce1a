package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/bus"
	"github.com/msadley/Basilisk-sub000/internal/store"
	"github.com/msadley/Basilisk-sub000/internal/wire"
	"github.com/stretchr/testify/require"
)

const localID = "me"

func testEngine(t *testing.T) (*Engine, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	return NewEngine(db, b, localID, nil), db, b
}

func rec(from, to, content string, ts int64) wire.ChatMessage {
	return wire.ChatMessage{
		Type:      wire.MessageType,
		Content:   content,
		Timestamp: ts,
		From:      wire.Profile{ID: from, Name: "Name of " + from},
		To:        to,
	}
}

func TestChatIDDerivation(t *testing.T) {
	e, _, _ := testEngine(t)

	cases := []struct {
		name string
		msg  wire.ChatMessage
		want string
	}{
		{"inbound to me routes to sender", rec("alice", localID, "hi", 1), "alice"},
		{"group destination verbatim", rec("alice", "group:xyz", "hi", 1), "group:xyz"},
		{"outbound to peer", rec(localID, "bob", "hi", 1), "bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, e.ChatIDFor(tc.msg))
		})
	}
}

func TestSaveMessageInbound(t *testing.T) {
	e, db, _ := testEngine(t)

	saved, err := e.SaveMessage(rec("alice", localID, "hi", 1000))
	require.NoError(t, err)
	require.Equal(t, "alice", saved.ChatID)
	require.NotZero(t, saved.ID)

	chat, err := db.GetChat("alice")
	require.NoError(t, err)
	require.Equal(t, store.ChatPrivate, chat.Type)
	require.Equal(t, "Name of alice", chat.Name)

	p, err := db.GetProfile("alice")
	require.NoError(t, err)
	require.Equal(t, "Name of alice", p.Name)
}

func TestSaveMessageGroupAddsRoster(t *testing.T) {
	e, db, _ := testEngine(t)

	saved, err := e.SaveMessage(rec("alice", "group:7", "hi", 1000))
	require.NoError(t, err)
	require.Equal(t, "group:7", saved.ChatID)

	chat, err := db.GetChat("group:7")
	require.NoError(t, err)
	require.Equal(t, store.ChatGroup, chat.Type)

	members, err := db.ListChatMembers("group:7")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, members)
}

func TestSaveMessageEmissionOrder(t *testing.T) {
	e, _, b := testEngine(t)
	ch, unsub := b.Subscribe("store.", 16)
	defer unsub()

	_, err := e.SaveMessage(rec("alice", localID, "hi", 1000))
	require.NoError(t, err)

	var kinds []bus.Kind
	for len(kinds) < 3 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("only %d events arrived: %v", len(kinds), kinds)
		}
	}
	require.Equal(t, []bus.Kind{bus.KindProfileUpdated, bus.KindChatStarted, bus.KindMessageSaved}, kinds)
}

func TestSaveMessageTwiceUpsertsOnce(t *testing.T) {
	e, db, b := testEngine(t)
	ch, unsub := b.Subscribe("store.", 16)
	defer unsub()

	m := rec("alice", localID, "hi", 1000)
	first, err := e.SaveMessage(m)
	require.NoError(t, err)
	second, err := e.SaveMessage(m)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID, "messages are never deduplicated")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM profiles WHERE id = 'alice'`).Scan(&count))
	require.Equal(t, 1, count)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM chats WHERE id = 'alice'`).Scan(&count))
	require.Equal(t, 1, count)

	// Second save emits no profile/chat events, only message_saved.
	var kinds []bus.Kind
	timeout := time.After(time.Second)
	for len(kinds) < 4 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-timeout:
			t.Fatalf("events: %v", kinds)
		}
	}
	require.Equal(t, []bus.Kind{
		bus.KindProfileUpdated, bus.KindChatStarted, bus.KindMessageSaved,
		bus.KindMessageSaved,
	}, kinds)
}

func TestEngineConsumesPeerEvents(t *testing.T) {
	e, db, b := testEngine(t)
	e.Start()
	defer e.Stop()

	b.Publish(bus.Event{
		Kind:      bus.KindPeerMessage,
		Timestamp: time.Now(),
		Payload:   bus.PeerMessage{Record: rec("alice", localID, "hi", 1000), Peer: "alice"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := db.ListMessages("alice", 1)
		require.NoError(t, err)
		if len(msgs) == 1 {
			require.Equal(t, "hi", msgs[0].Content)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("inbound event never persisted")
}
