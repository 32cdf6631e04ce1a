package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/msadley/Basilisk-sub000/internal/bridge"
	"github.com/msadley/Basilisk-sub000/internal/bus"
	"github.com/msadley/Basilisk-sub000/internal/config"
	"github.com/msadley/Basilisk-sub000/internal/home"
	"github.com/msadley/Basilisk-sub000/internal/ingest"
	"github.com/msadley/Basilisk-sub000/internal/lock"
	"github.com/msadley/Basilisk-sub000/internal/logging"
	"github.com/msadley/Basilisk-sub000/internal/metrics"
	"github.com/msadley/Basilisk-sub000/internal/orchestrator"
	"github.com/msadley/Basilisk-sub000/internal/peers"
	"github.com/msadley/Basilisk-sub000/internal/store"
	"github.com/msadley/Basilisk-sub000/internal/transport"
	"github.com/msadley/Basilisk-sub000/internal/wire"
)

// Params holds the resolved data directory passed to the fx module.
type Params struct {
	DataDir    string
	SocketPath string // optional override for testing; empty = use default
	Debug      bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideIdentity,
			provideRegistry,
			provideMetrics,
			provideTransport,
			provideRelay,
			providePeerRegistry,
			provideEngine,
			provideInfoClient,
			provideOrchestrator,
			provideBridge,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := home.EnsureDirs(p.DataDir); err != nil {
		return nil, err
	}
	return logging.New(home.LogPath(p.DataDir), p.Debug)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.LoadOrDefault(home.ConfigPath(p.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := home.DBPath(p.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIdentity(p Params, logger *zap.Logger) (*transport.Identity, error) {
	id, err := transport.LoadOrCreateIdentity(home.IdentityPath(p.DataDir))
	if err != nil {
		return nil, err
	}
	logger.Info("node identity loaded", zap.String("peer_id", id.PeerID))
	return id, nil
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) *metrics.Set {
	return metrics.New(reg)
}

func provideTransport(cfg *config.Config, id *transport.Identity, logger *zap.Logger) (*transport.TCP, error) {
	return transport.NewTCP(transport.TCPConfig{
		Identity:      id,
		ListenAddr:    cfg.ListenAddr,
		AdvertiseAddr: cfg.AdvertiseAddr,
		Log:           logger,
	})
}

func provideRelay(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *transport.RelayMonitor {
	if cfg.RelayAddr == "" {
		return nil
	}
	interval := time.Duration(cfg.RelayInterval) * time.Second
	return transport.NewRelayMonitor(cfg.RelayAddr, interval, b, logger)
}

func providePeerRegistry(t *transport.TCP, m *metrics.Set, logger *zap.Logger) *peers.Registry {
	return peers.NewRegistry(t, m, logger)
}

func provideEngine(db *store.DB, b *bus.Bus, id *transport.Identity, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, id.PeerID, logger)
}

func provideInfoClient(t *transport.TCP, logger *zap.Logger) *peers.InfoClient {
	return peers.NewInfoClient(t, logger)
}

func provideOrchestrator(db *store.DB, b *bus.Bus, engine *ingest.Engine, registry *peers.Registry, info *peers.InfoClient, relay *transport.RelayMonitor, id *transport.Identity, logger *zap.Logger) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		DB:       db,
		Bus:      b,
		Engine:   engine,
		Registry: registry,
		Info:     info,
		Relay:    relay,
		LocalID:  id.PeerID,
		Log:      logger,
	})
}

func provideBridge(p Params, orch *orchestrator.Orchestrator, b *bus.Bus, m *metrics.Set, reg *prometheus.Registry, logger *zap.Logger) *bridge.Server {
	sock := p.SocketPath
	if sock == "" {
		sock = home.SocketPath(p.DataDir)
	}
	return bridge.NewServer(bridge.ServerConfig{
		SocketPath: sock,
		Orch:       orch,
		Bus:        b,
		Metrics:    m,
		Gatherer:   reg,
		Log:        logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, db *store.DB, b *bus.Bus, t *transport.TCP, relay *transport.RelayMonitor, registry *peers.Registry, engine *ingest.Engine, orch *orchestrator.Orchestrator, srv *bridge.Server, m *metrics.Set, id *transport.Identity, lk *lock.Lock, logger *zap.Logger) {
	chatHandler := peers.NewChatHandler(b, m, logger)
	infoServer := peers.NewInfoServer(orch, logger)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Seed the local profile from config before anything can
			// query it.
			if cfg.ProfileName != "" || cfg.ProfileAvatar != "" {
				if _, err := db.UpsertProfile(&store.Profile{
					ID:     id.PeerID,
					Name:   cfg.ProfileName,
					Avatar: cfg.ProfileAvatar,
				}); err != nil {
					return err
				}
			}

			t.RegisterHandler(wire.ChatProtocol, chatHandler.Handle)
			t.RegisterHandler(wire.InfoProtocol, infoServer.Handle)
			t.OnDisconnect(registry.Remove)
			for _, p := range cfg.Peers {
				t.AddPeer(p.ID, p.Addr)
			}

			if err := t.Start(); err != nil {
				return err
			}

			engine.Start()
			if relay != nil {
				relay.Start(context.Background())
			}
			if err := srv.Start(); err != nil {
				return err
			}

			addrs := t.LocalAddrs()
			b.Publish(bus.Event{
				Kind:      bus.KindNodeStarted,
				Timestamp: time.Now(),
				Payload:   bus.NodeStarted{ID: id.PeerID, Addresses: addrs},
			})
			logger.Info("node started",
				zap.String("peer_id", id.PeerID),
				zap.Strings("addresses", addrs))

			if cfg.ShowQR && len(addrs) > 0 {
				printShareQR(id.PeerID, addrs[0])
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("bridge shutdown", zap.Error(err))
			}
			if relay != nil {
				relay.Stop()
			}
			engine.Stop()
			registry.CloseAll()
			t.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("store close", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// printShareQR renders the node's share address as a terminal QR code
// so another device can add this peer by scanning.
func printShareQR(peerID, addr string) {
	share := fmt.Sprintf("basilisk://%s@%s", peerID, addr)
	q, err := qrcode.New(share, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Println(share)
	fmt.Print(q.ToSmallString(false))
}
