// Package orchestrator is the seam between the UI bridge, the peer
// network, and the store: it turns UI commands into network actions and
// persistence calls, one correlated response per recognized command.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msadley/Basilisk-sub000/internal/bridge"
	"github.com/msadley/Basilisk-sub000/internal/bus"
	"github.com/msadley/Basilisk-sub000/internal/ingest"
	"github.com/msadley/Basilisk-sub000/internal/peers"
	"github.com/msadley/Basilisk-sub000/internal/store"
	"github.com/msadley/Basilisk-sub000/internal/transport"
	"github.com/msadley/Basilisk-sub000/internal/wire"
	"go.uber.org/zap"
)

// Orchestrator dispatches UI commands. It is the only component wired
// to both network actions and store access.
type Orchestrator struct {
	db       *store.DB
	bus      *bus.Bus
	engine   *ingest.Engine
	registry *peers.Registry
	info     *peers.InfoClient
	relay    *transport.RelayMonitor
	localID  string
	log      *zap.Logger
}

// Config wires the orchestrator's collaborators.
type Config struct {
	DB       *store.DB
	Bus      *bus.Bus
	Engine   *ingest.Engine
	Registry *peers.Registry
	Info     *peers.InfoClient
	Relay    *transport.RelayMonitor
	LocalID  string
	Log      *zap.Logger
}

// New builds an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Orchestrator{
		db:       cfg.DB,
		bus:      cfg.Bus,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		info:     cfg.Info,
		relay:    cfg.Relay,
		localID:  cfg.LocalID,
		log:      cfg.Log,
	}
}

// LocalProfile serves the info protocol: the local profile row, or a
// bare id before the first patch.
func (o *Orchestrator) LocalProfile() (wire.Profile, error) {
	p, err := o.db.GetProfile(o.localID)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return wire.Profile{ID: o.localID}, nil
		}
		return wire.Profile{}, err
	}
	return wire.Profile{ID: p.ID, Name: p.Name, Avatar: p.Avatar}, nil
}

// Dispatch executes one UI command and returns its correlated response.
// Unrecognized command types return nil: no response is emitted for
// them, by design.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd bridge.Command) *bridge.Event {
	switch cmd.Type {
	case bridge.CmdPingRelay:
		return o.pingRelay(ctx, cmd)
	case bridge.CmdSendMessage:
		return o.sendMessage(ctx, cmd)
	case bridge.CmdGetProfileUser:
		return o.getProfileUser(ctx, cmd)
	case bridge.CmdPatchProfileSelf:
		return o.patchProfileSelf(cmd)
	case bridge.CmdGetProfile:
		return o.getProfile(cmd)
	case bridge.CmdGetMessages:
		return o.getMessages(cmd)
	case bridge.CmdGetChats:
		return o.getChats(cmd)
	case bridge.CmdCreateChat:
		return o.createChat(cmd)
	case bridge.CmdCloseDatabase:
		return o.closeDatabase(cmd)
	default:
		o.log.Debug("ignoring unrecognized command", zap.String("type", cmd.Type))
		return nil
	}
}

func respond(cmd bridge.Command, typ string, payload any) *bridge.Event {
	return &bridge.Event{Type: typ, ID: cmd.ID, Payload: payload}
}

func respondErr(cmd bridge.Command, typ string, err error) *bridge.Event {
	return &bridge.Event{Type: typ, ID: cmd.ID, Error: err.Error()}
}

func (o *Orchestrator) pingRelay(ctx context.Context, cmd bridge.Command) *bridge.Event {
	if o.relay == nil || o.relay.Addr() == "" {
		return respondErr(cmd, bridge.RespRelayPinged, fmt.Errorf("no relay configured"))
	}
	rtt, err := o.relay.Ping(ctx)
	if err != nil {
		return respondErr(cmd, bridge.RespRelayPinged, err)
	}
	return respond(cmd, bridge.RespRelayPinged, map[string]any{
		"ok":     true,
		"rtt_ms": rtt.Milliseconds(),
	})
}

func (o *Orchestrator) sendMessage(ctx context.Context, cmd bridge.Command) *bridge.Event {
	var p bridge.SendMessagePayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return respondErr(cmd, bridge.RespMessageSent, fmt.Errorf("bad payload: %w", err))
	}
	if p.To == "" {
		return respondErr(cmd, bridge.RespMessageSent, fmt.Errorf("destination required"))
	}

	from, err := o.LocalProfile()
	if err != nil {
		return respondErr(cmd, bridge.RespMessageSent, err)
	}
	rec := wire.ChatMessage{
		Type:      wire.MessageType,
		Content:   p.Content,
		Timestamp: time.Now().UnixMilli(),
		From:      from,
		To:        p.To,
	}

	if err := o.deliver(ctx, rec); err != nil {
		return respondErr(cmd, bridge.RespMessageSent, err)
	}

	saved, err := o.engine.SaveMessage(rec)
	if err != nil {
		return respondErr(cmd, bridge.RespMessageSent, err)
	}
	return respond(cmd, bridge.RespMessageSent, map[string]any{"message": saved})
}

// deliver routes one outgoing record: group destinations fan out to the
// roster, anything else is a direct peer send.
func (o *Orchestrator) deliver(ctx context.Context, rec wire.ChatMessage) error {
	if !store.IsGroupID(rec.To) {
		return o.registry.Deliver(ctx, rec.To, rec)
	}

	members, err := o.db.ListChatMembers(rec.To)
	if err != nil {
		return err
	}
	delivered := 0
	var lastErr error
	for _, member := range members {
		if member == o.localID {
			continue
		}
		if err := o.registry.Deliver(ctx, member, rec); err != nil {
			o.log.Warn("group delivery failed for member",
				zap.String("chat", rec.To), zap.String("member", member), zap.Error(err))
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 {
		if lastErr != nil {
			return &peers.DeliveryError{Peer: rec.To, Err: lastErr}
		}
		return &peers.DeliveryError{Peer: rec.To, Err: fmt.Errorf("group has no reachable members")}
	}
	return nil
}

func (o *Orchestrator) getProfileUser(ctx context.Context, cmd bridge.Command) *bridge.Event {
	var p bridge.ProfileRefPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return respondErr(cmd, bridge.RespProfileUserRetrieved, fmt.Errorf("bad payload: %w", err))
	}
	if p.ID == "" {
		return respondErr(cmd, bridge.RespProfileUserRetrieved, fmt.Errorf("peer id required"))
	}

	remote, err := o.info.QueryProfile(ctx, p.ID)
	if err != nil {
		return respondErr(cmd, bridge.RespProfileUserRetrieved, err)
	}

	profile := store.Profile{ID: remote.ID, Name: remote.Name, Avatar: remote.Avatar}
	changed, err := o.db.UpsertProfile(&profile)
	if err != nil {
		return respondErr(cmd, bridge.RespProfileUserRetrieved, err)
	}
	if changed {
		o.bus.Publish(bus.Event{
			Kind:      bus.KindProfileUpdated,
			Timestamp: time.Now(),
			Payload:   bus.ProfileUpdated{Profile: profile},
		})
	}
	return respond(cmd, bridge.RespProfileUserRetrieved, map[string]any{"profile": profile})
}

func (o *Orchestrator) patchProfileSelf(cmd bridge.Command) *bridge.Event {
	var p bridge.PatchProfilePayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return respondErr(cmd, bridge.RespProfileSelfPatched, fmt.Errorf("bad payload: %w", err))
	}

	profile := store.Profile{ID: o.localID, Name: p.Name, Avatar: p.Avatar}
	changed, err := o.db.UpsertProfile(&profile)
	if err != nil {
		return respondErr(cmd, bridge.RespProfileSelfPatched, err)
	}
	stored, err := o.db.GetProfile(o.localID)
	if err != nil {
		return respondErr(cmd, bridge.RespProfileSelfPatched, err)
	}
	if changed {
		o.bus.Publish(bus.Event{
			Kind:      bus.KindProfileUpdated,
			Timestamp: time.Now(),
			Payload:   bus.ProfileUpdated{Profile: *stored},
		})
	}
	return respond(cmd, bridge.RespProfileSelfPatched, map[string]any{"profile": stored})
}

func (o *Orchestrator) getProfile(cmd bridge.Command) *bridge.Event {
	var p bridge.ProfileRefPayload
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return respondErr(cmd, bridge.RespProfileRetrieved, fmt.Errorf("bad payload: %w", err))
		}
	}
	id := p.ID
	if id == "" {
		id = o.localID
	}
	profile, err := o.db.GetProfile(id)
	if err != nil {
		return respondErr(cmd, bridge.RespProfileRetrieved, err)
	}
	return respond(cmd, bridge.RespProfileRetrieved, map[string]any{"profile": profile})
}

func (o *Orchestrator) getMessages(cmd bridge.Command) *bridge.Event {
	var p bridge.GetMessagesPayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil {
		return respondErr(cmd, bridge.RespMessagesRetrieved, fmt.Errorf("bad payload: %w", err))
	}
	msgs, err := o.db.ListMessages(p.Chat, p.Page)
	if err != nil {
		return respondErr(cmd, bridge.RespMessagesRetrieved, err)
	}
	return respond(cmd, bridge.RespMessagesRetrieved, map[string]any{"messages": msgs})
}

func (o *Orchestrator) getChats(cmd bridge.Command) *bridge.Event {
	chats, err := o.db.ListChats()
	if err != nil {
		return respondErr(cmd, bridge.RespChatsRetrieved, err)
	}
	return respond(cmd, bridge.RespChatsRetrieved, map[string]any{"chats": chats})
}

func (o *Orchestrator) createChat(cmd bridge.Command) *bridge.Event {
	var p bridge.CreateChatPayload
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return respondErr(cmd, bridge.RespChatCreated, fmt.Errorf("bad payload: %w", err))
		}
	}

	id := p.ID
	if id == "" {
		id = store.GroupPrefix + uuid.NewString()
	}
	typ := store.ChatPrivate
	if store.IsGroupID(id) {
		typ = store.ChatGroup
	}

	created, err := o.db.UpsertChat(&store.Chat{ID: id, Name: p.Name, Type: typ})
	if err != nil {
		return respondErr(cmd, bridge.RespChatCreated, err)
	}
	if typ == store.ChatGroup {
		for _, member := range p.Members {
			if err := o.db.AddChatMember(id, member); err != nil {
				return respondErr(cmd, bridge.RespChatCreated, err)
			}
		}
	}

	chat, err := o.db.GetChat(id)
	if err != nil {
		return respondErr(cmd, bridge.RespChatCreated, err)
	}
	if created {
		o.bus.Publish(bus.Event{
			Kind:      bus.KindChatStarted,
			Timestamp: time.Now(),
			Payload:   bus.ChatStarted{Chat: *chat},
		})
	}
	return respond(cmd, bridge.RespChatCreated, map[string]any{"chat": chat})
}

func (o *Orchestrator) closeDatabase(cmd bridge.Command) *bridge.Event {
	if err := o.db.Close(); err != nil {
		return respondErr(cmd, bridge.RespDatabaseClosed, err)
	}
	o.log.Info("store closed on UI request")
	return respond(cmd, bridge.RespDatabaseClosed, map[string]any{})
}
