package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/five82/torsh/internal/command"
	"github.com/five82/torsh/internal/config"
	"github.com/five82/torsh/internal/daemon"
	"github.com/five82/torsh/internal/logging"
	"github.com/five82/torsh/internal/notify"
	"github.com/five82/torsh/internal/session"
	"github.com/five82/torsh/internal/state"
	"github.com/five82/torsh/internal/syncer"
	"github.com/five82/torsh/internal/transmission"
	"github.com/five82/torsh/internal/ui"
)

// Options configure the torsh application.
type Options struct {
	ConfigPath string         // empty uses ~/.config/torsh/config.toml
	Flags      *pflag.FlagSet // changed flags override config and environment
	Version    string
}

// Run boots torsh and blocks until the UI exits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	mgr, err := config.Load(opts.ConfigPath, opts.Flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Config()

	logger := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logger.Close()
	log := logger.Logger

	log.Info().Str("version", opts.Version).Str("config", mgr.Path()).Msg("torsh starting")
	if ferr := mgr.FileError(); ferr != nil {
		log.Warn().Err(ferr).Msg("config file unusable; using defaults")
	}

	client, err := transmission.NewClient(transmission.Config{
		Host:     cfg.RPC.Host,
		Port:     cfg.RPC.Port,
		Path:     cfg.RPC.Path,
		User:     cfg.RPC.User,
		Password: cfg.RPC.Password,
		UseTLS:   cfg.RPC.TLS,
		Timeout:  cfg.RPC.TimeoutDuration(),
	}, transmission.WithLogger(logging.WithComponent(log, "rpc")))
	if err != nil {
		return fmt.Errorf("init rpc client: %w", err)
	}

	var supervisor *daemon.Supervisor
	if cfg.Daemon.Autostart {
		supervisor = newSupervisor(cfg, client, logging.WithComponent(log, "daemon"))
		ready, err := supervisor.EnsureAvailable(ctx, cfg.Daemon.StartTimeoutDuration(), cfg.Daemon.InstallMissing)
		if err != nil {
			return err
		}
		log.Info().
			Str("version", ready.Version).
			Int("rpc_version", ready.RPCVersion).
			Bool("installed", ready.Installed).
			Bool("started", ready.Started).
			Dur("elapsed", ready.Elapsed).
			Msg("daemon available")
	} else {
		log.Info().Str("endpoint", client.Endpoint()).Msg("autostart disabled; connecting directly")
	}

	sessions := session.Open(cfg.Paths.SessionFile, session.WithLogger(logging.WithComponent(log, "session")))
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Warn().Err(err).Msg("session not saved")
		}
	}()
	prefs := sessions.Load()
	if interval := cfg.Sync.Interval(); interval > 0 {
		prefs.Refresh = interval
	}

	store := &state.Store{}
	engine := syncer.New(client, store, syncer.Options{
		Interval:  prefs.Refresh,
		FullEvery: cfg.Sync.FullEvery,
		Logger:    logging.WithComponent(log, "syncer"),
	})
	router := command.NewRouter(client, engine, store, logging.WithComponent(log, "command"))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ensurer Ensurer
	if supervisor != nil {
		ensurer = supervisor
	}
	reactions := NewReactions(runCtx, ReactionsConfig{
		Commands: router,
		Notifier: notify.NewDesktop(logging.WithComponent(log, "notify")),
		Ensurer:  ensurer,
		Store:    store,
		Logger:   logging.WithComponent(log, "reactions"),
		Behavior: BehaviorFrom(cfg),
	})
	reactions.Attach(engine)

	mgr.Watch(func(next config.Config) {
		level := logging.SetLevel(next.Log.Level)
		reactions.SetBehavior(BehaviorFrom(next))
		log.Info().Str("level", level.String()).Msg("config reloaded")
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return router.Run(gctx) })

	uiErr := ui.Run(ui.Options{
		Context:     gctx,
		Store:       store,
		Commands:    reactions,
		Syncer:      engine,
		Session:     sessions,
		State:       prefs,
		Notices:     reactions.Notices(),
		DaemonLog:   cfg.Daemon.LogPath(),
		Endpoint:    client.Endpoint(),
		DownloadDir: cfg.Paths.DownloadDir,
	})

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("background worker failed")
	}
	reactions.Wait()
	log.Info().Msg("torsh stopped")
	return uiErr
}

func newSupervisor(cfg config.Config, client *transmission.Client, log zerolog.Logger) *daemon.Supervisor {
	starter := daemon.ExecStarter{
		Binary:      cfg.Daemon.Binary,
		ConfigDir:   cfg.Daemon.ConfigDir,
		DownloadDir: cfg.Paths.DownloadDir,
		ExtraArgs:   cfg.Daemon.ExtraArgs,
		LogPath:     cfg.Daemon.LogPath(),
		Log:         log,
	}
	return daemon.NewSupervisor(
		daemon.RPCProber{Client: client},
		daemon.PgrepFinder{Name: cfg.Daemon.Binary},
		daemon.PackageInstaller{Log: log},
		starter,
		daemon.WithLogger(log),
		daemon.WithBinary(cfg.Daemon.Binary),
	)
}
