package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/peerlink/pkg/config"
	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/session"
	"github.com/backkem/peerlink/pkg/statusapi"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// redialInterval is the minimum time between two dial attempts.
const redialInterval = 2 * time.Second

// runner is the part of a Session the App drives.
type runner interface {
	statusapi.Controller
	Close() error
	Name() string
	PeerID() string
}

// App runs one session and, if enabled, the status API.
type App struct {
	opts    Options
	cfg     *config.Config
	log     logging.LeveledLogger
	session runner
	api     *statusapi.Server

	redial   time.Duration
	lastDial time.Time
}

// NewApp loads the configuration and creates the session.
func NewApp(opts Options) (*App, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loggerFactory := cfg.LoggerFactory()
	a := &App{
		opts:   opts,
		cfg:    cfg,
		log:    loggerFactory.NewLogger("peerlink"),
		redial: redialInterval,
	}

	sc, err := cfg.SessionConfig(loggerFactory)
	if err != nil {
		return nil, err
	}
	sc.OnStateChanged = func(state session.State) {
		a.log.Infof("state: %s", state)
	}
	sess, err := session.New(sc)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.session = sess

	if cfg.HTTP.Enabled {
		a.api, err = statusapi.New(statusapi.Config{
			Addr:          cfg.HTTP.Address,
			Session:       a.session,
			LoggerFactory: loggerFactory,
		})
		if err != nil {
			_ = a.session.Close()
			return nil, err
		}
	}
	return a, nil
}

// Run blocks until SIGINT/SIGTERM or until the session fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	a.printInfo()

	g, gctx := errgroup.WithContext(ctx)
	if a.api != nil {
		g.Go(func() error {
			return a.api.ListenAndServe(gctx)
		})
	}
	g.Go(func() error {
		return a.runSession(gctx)
	})

	err := g.Wait()
	a.log.Info("shutting down")
	if cerr := a.session.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// runSession starts the configured role and restarts it whenever the
// session falls back to Idle. A joiner connects to the selected host as
// soon as it is discovered, and at most once per redial interval.
func (a *App) runSession(ctx context.Context) error {
	snaps, cancel := a.session.Subscribe()
	defer cancel()

	if err := a.start(); err != nil {
		return err
	}

	var retry <-chan time.Time
	active := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry:
			retry = nil
			snap := a.session.Snapshot()
			if snap.State != session.StateJoining {
				continue
			}
			if wait := a.connect(snap.Peers); wait > 0 {
				retry = time.After(wait)
			}
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			switch snap.State {
			case session.StateFailed:
				return fmt.Errorf("session failed: %s", snap.LastError)
			case session.StateIdle:
				if !active {
					continue
				}
				active = false
				a.log.Info("link closed, restarting")
				if err := a.start(); err != nil {
					return err
				}
			case session.StateStarting:
			case session.StateJoining:
				active = true
				if wait := a.connect(snap.Peers); wait > 0 && retry == nil {
					retry = time.After(wait)
				}
			default:
				active = true
			}
		}
	}
}

func (a *App) start() error {
	if a.opts.Command == CommandHost {
		return a.session.StartHosting()
	}
	return a.session.StartJoining()
}

// connect dials the first eligible peer. It returns how long to wait when
// the last attempt is too recent, zero otherwise.
func (a *App) connect(peers []discovery.Peer) time.Duration {
	for _, p := range peers {
		if a.opts.PeerID != "" && p.ID != a.opts.PeerID {
			continue
		}
		if wait := a.redial - time.Since(a.lastDial); wait > 0 {
			return wait
		}
		err := a.session.ConnectToPeer(p.ID)
		switch {
		case err == nil:
			a.lastDial = time.Now()
			a.log.Infof("connecting to %s (%s)", p.Name, p.ID)
		case errors.Is(err, session.ErrBusy):
		default:
			a.lastDial = time.Now()
			a.log.Warnf("connect to %s: %v", p.ID, err)
		}
		return 0
	}
	return 0
}

func (a *App) printInfo() {
	fmt.Println("\n========================================")
	fmt.Println("              peerlink")
	fmt.Println("========================================")
	fmt.Printf("Role:        %s\n", a.opts.Command)
	fmt.Printf("Name:        %s\n", a.session.Name())
	fmt.Printf("Peer ID:     %s\n", a.session.PeerID())
	fmt.Printf("Service:     _%s._tcp\n", a.cfg.ServiceID)
	if a.api != nil {
		fmt.Printf("Status API:  http://%s/v1/state\n", a.cfg.HTTP.Address)
	}
	if a.opts.PeerID != "" {
		fmt.Printf("Joining:     %s\n", a.opts.PeerID)
	}
	fmt.Println("========================================")
}
