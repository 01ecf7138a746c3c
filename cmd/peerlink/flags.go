package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/backkem/peerlink/pkg/config"
	"github.com/spf13/pflag"
)

// Command selects the session role.
type Command string

// Commands.
const (
	CommandHost Command = "host"
	CommandJoin Command = "join"
)

// ErrUsage is returned for a missing or unknown command.
var ErrUsage = errors.New("usage: peerlink host|join [options]")

// Options holds the parsed command line.
type Options struct {
	Command Command

	ConfigPath string
	EnvFile    string

	// PeerID is the host to join. Empty joins the first one found.
	PeerID string

	// overrides are applied on top of the loaded configuration. Only
	// flags given on the command line are set.
	overrides []func(*config.Config)
}

// Apply writes the command line overrides into cfg.
func (o Options) Apply(cfg *config.Config) {
	for _, fn := range o.overrides {
		fn(cfg)
	}
}

// ParseFlags parses args of the form "<command> [options]".
func ParseFlags(args []string) (Options, error) {
	var o Options
	var (
		name, service, listen, httpAddr, logLevel string
		stun                                      []string
		loopback                                  bool
	)

	fs := pflag.NewFlagSet("peerlink", pflag.ContinueOnError)
	fs.StringVar(&o.ConfigPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.EnvFile, "env-file", ".env", ".env file loaded before the configuration")
	fs.StringVar(&name, "name", "", "display name advertised to peers")
	fs.StringVar(&service, "service", "", "DNS-SD service ID")
	fs.StringVar(&listen, "listen", "", "signaling listen address when hosting")
	fs.StringSliceVar(&stun, "stun", nil, "STUN server URL (repeatable)")
	fs.BoolVar(&loopback, "loopback", false, "gather loopback ICE candidates")
	fs.StringVar(&httpAddr, "http", "", "status API address (empty disables it)")
	fs.StringVar(&o.PeerID, "peer", "", "peer ID to join")
	fs.StringVar(&logLevel, "log-level", "", "disabled, error, warn, info, debug or trace")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, ErrUsage)
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return o, ErrUsage
	}
	switch Command(rest[0]) {
	case CommandHost, CommandJoin:
		o.Command = Command(rest[0])
	default:
		return o, fmt.Errorf("%w: unknown command %q", ErrUsage, rest[0])
	}
	if o.Command == CommandHost && o.PeerID != "" {
		return o, fmt.Errorf("%w: --peer is only valid with join", ErrUsage)
	}

	if fs.Changed("name") {
		o.overrides = append(o.overrides, func(c *config.Config) { c.Name = name })
	}
	if fs.Changed("service") {
		o.overrides = append(o.overrides, func(c *config.Config) { c.ServiceID = service })
	}
	if fs.Changed("listen") {
		o.overrides = append(o.overrides, func(c *config.Config) { c.ListenAddr = listen })
	}
	if fs.Changed("stun") {
		o.overrides = append(o.overrides, func(c *config.Config) { c.WebRTC.STUNServers = stun })
	}
	if fs.Changed("loopback") {
		o.overrides = append(o.overrides, func(c *config.Config) { c.WebRTC.IncludeLoopback = loopback })
	}
	if fs.Changed("http") {
		o.overrides = append(o.overrides, func(c *config.Config) {
			c.HTTP.Address = httpAddr
			c.HTTP.Enabled = httpAddr != ""
		})
	}
	if fs.Changed("log-level") {
		o.overrides = append(o.overrides, func(c *config.Config) { c.Log.Level = logLevel })
	}
	return o, nil
}
