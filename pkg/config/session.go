package config

import (
	"github.com/backkem/peerlink/pkg/media"
	"github.com/backkem/peerlink/pkg/session"
	"github.com/pion/logging"
)

// SessionConfig builds a session configuration from c. A nil factory uses
// c.LoggerFactory().
func (c *Config) SessionConfig(loggerFactory logging.LoggerFactory) (session.Config, error) {
	ifaces, err := c.ResolveInterfaces()
	if err != nil {
		return session.Config{}, err
	}
	if loggerFactory == nil {
		loggerFactory = c.LoggerFactory()
	}
	return session.Config{
		PeerID:          c.PeerID,
		Name:            c.Name,
		ServiceID:       c.ServiceID,
		Interfaces:      ifaces,
		BrowseInterval:  c.Discovery.BrowseInterval,
		PeerTTL:         c.Discovery.PeerTTL,
		ListenAddr:      c.ListenAddr,
		ICEServers:      c.WebRTC.STUNServers,
		IncludeLoopback: c.WebRTC.IncludeLoopback,
		MediaTimeout:    c.WebRTC.MediaTimeout,
		Pipeline: media.NewSamplePipeline(media.SampleConfig{
			FrameRate:     c.Media.FrameRate,
			FrameSize:     c.Media.FrameSize,
			LoggerFactory: loggerFactory,
		}),
		LoggerFactory: loggerFactory,
	}, nil
}
