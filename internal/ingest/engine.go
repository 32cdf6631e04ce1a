// Package ingest turns validated chat records into durable state. It is
// the only writer of messages: both inbound records (via the bus) and
// locally sent ones (via the orchestrator) pass through SaveMessage.
package ingest

import (
	"fmt"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/bus"
	"github.com/msadley/Basilisk-sub000/internal/store"
	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

// Engine persists chat records and publishes the resulting store events.
type Engine struct {
	db      *store.DB
	bus     *bus.Bus
	localID string
	logger  *zap.Logger
	stop    func()
}

// NewEngine creates an engine bound to the local peer id. The local id
// drives chat-id derivation for records addressed to this node.
func NewEngine(db *store.DB, b *bus.Bus, localID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, bus: b, localID: localID, logger: logger}
}

// Start subscribes to inbound peer events. One consumer, in arrival
// order, so each event produces its side effects exactly once.
func (e *Engine) Start() {
	ch, unsub := e.bus.Subscribe("peer.", 256)
	done := make(chan struct{})
	e.stop = func() {
		unsub()
		close(done)
	}

	go func() {
		for {
			select {
			case evt := <-ch:
				pm, ok := evt.Payload.(bus.PeerMessage)
				if !ok {
					continue
				}
				if _, err := e.SaveMessage(pm.Record); err != nil {
					e.logger.Error("failed to persist inbound message",
						zap.String("peer", pm.Peer), zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}()
}

// Stop ends event consumption.
func (e *Engine) Stop() {
	if e.stop != nil {
		e.stop()
	}
}

// ChatIDFor derives the chat a record belongs to. A group-marked
// destination is used verbatim; a record addressed to the local node
// routes into the sender's private chat; anything else is a private
// chat named by the destination.
func (e *Engine) ChatIDFor(rec wire.ChatMessage) string {
	if store.IsGroupID(rec.To) {
		return rec.To
	}
	if rec.To == e.localID {
		return rec.From.ID
	}
	return rec.To
}

// SaveMessage persists one record: upsert the sender's profile, upsert
// the chat, insert the message row. Events are published in a fixed
// order — profile, then chat, then message — so consumers can rely on
// the chat existing before any message event referencing it.
func (e *Engine) SaveMessage(rec wire.ChatMessage) (*store.Message, error) {
	chatID := e.ChatIDFor(rec)
	chatType := store.ChatPrivate
	if store.IsGroupID(chatID) {
		chatType = store.ChatGroup
	}

	profile := store.Profile{ID: rec.From.ID, Name: rec.From.Name, Avatar: rec.From.Avatar}
	profileChanged, err := e.db.UpsertProfile(&profile)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	chat := store.Chat{ID: chatID, Type: chatType}
	if chatType == store.ChatPrivate && chatID == rec.From.ID {
		// A private chat spawned by an inbound message takes the
		// sender's name as its initial display name.
		chat.Name = rec.From.Name
		chat.Avatar = rec.From.Avatar
	}
	chatCreated, err := e.db.UpsertChat(&chat)
	if err != nil {
		return nil, fmt.Errorf("upsert chat: %w", err)
	}

	if chatType == store.ChatGroup {
		if err := e.db.AddChatMember(chatID, rec.From.ID); err != nil {
			return nil, fmt.Errorf("add chat member: %w", err)
		}
	}

	saved, err := e.db.InsertMessage(&store.Message{
		ChatID:    chatID,
		FromID:    rec.From.ID,
		Content:   rec.Content,
		Timestamp: rec.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if profileChanged {
		e.bus.Publish(bus.Event{
			Kind:      bus.KindProfileUpdated,
			Timestamp: time.Now(),
			Payload:   bus.ProfileUpdated{Profile: profile},
		})
	}
	if chatCreated {
		stored, err := e.db.GetChat(chatID)
		if err != nil {
			return nil, fmt.Errorf("read back chat: %w", err)
		}
		e.bus.Publish(bus.Event{
			Kind:      bus.KindChatStarted,
			Timestamp: time.Now(),
			Payload:   bus.ChatStarted{Chat: *stored},
		})
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSaved,
		Timestamp: time.Now(),
		Payload:   bus.MessageSaved{Message: *saved},
	})

	return saved, nil
}
