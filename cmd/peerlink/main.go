// peerlink streams media between two nearby devices.
//
// One device hosts: it advertises itself over mDNS and waits for a joiner.
// The other joins: it browses for hosts and connects to one, after which the
// two negotiate a WebRTC session over a TCP signaling link.
//
// Usage:
//
//	peerlink host [options]
//	peerlink join [--peer ID] [options]
//
// Options:
//
//	--config     YAML configuration file
//	--env-file   .env file loaded before the configuration (default: .env)
//	--name       Display name advertised to peers
//	--service    DNS-SD service ID (default: peerlink)
//	--listen     Signaling listen address when hosting (default: :0)
//	--stun       STUN server URL, repeatable
//	--loopback   Gather loopback ICE candidates
//	--http       Status API address; empty disables it
//	--peer       Peer ID to join; the first discovered host when omitted
//	--log-level  disabled, error, warn, info, debug or trace
//
// Every option can also be set through PEERLINK_* environment variables.
//
// Example:
//
//	peerlink host --name kitchen --http 127.0.0.1:8780
//	peerlink join --peer 6f1c...
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := ParseFlags(args)
	if err != nil {
		return err
	}
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	return app.Run()
}
