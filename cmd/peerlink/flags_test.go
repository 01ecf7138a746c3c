package main

import (
	"errors"
	"testing"

	"github.com/backkem/peerlink/pkg/config"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Command
		peer    string
		wantErr bool
	}{
		{"host", []string{"host"}, CommandHost, "", false},
		{"join", []string{"join"}, CommandJoin, "", false},
		{"join peer", []string{"join", "--peer", "abc"}, CommandJoin, "abc", false},
		{"flags first", []string{"--peer=abc", "join"}, CommandJoin, "abc", false},
		{"no command", nil, "", "", true},
		{"unknown command", []string{"serve"}, "", "", true},
		{"extra args", []string{"host", "join"}, "", "", true},
		{"host with peer", []string{"host", "--peer", "abc"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseFlags(tt.args)
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Errorf("ParseFlags() error = %v, want ErrUsage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}
			if opts.Command != tt.want {
				t.Errorf("Command = %q, want %q", opts.Command, tt.want)
			}
			if opts.PeerID != tt.peer {
				t.Errorf("PeerID = %q, want %q", opts.PeerID, tt.peer)
			}
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	opts, err := ParseFlags([]string{
		"host",
		"--name", "kitchen",
		"--service", "camlink",
		"--listen", "127.0.0.1:9000",
		"--stun", "stun:a:3478", "--stun", "stun:b:3478",
		"--loopback",
		"--http", "127.0.0.1:9999",
		"--log-level", "debug",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg := &config.Config{Name: "file", ServiceID: "peerlink"}
	opts.Apply(cfg)

	if cfg.Name != "kitchen" || cfg.ServiceID != "camlink" || cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("identity = %q/%q/%q", cfg.Name, cfg.ServiceID, cfg.ListenAddr)
	}
	if len(cfg.WebRTC.STUNServers) != 2 || !cfg.WebRTC.IncludeLoopback {
		t.Errorf("WebRTC = %+v", cfg.WebRTC)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Address != "127.0.0.1:9999" {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestOptions_ApplyUnchanged(t *testing.T) {
	opts, err := ParseFlags([]string{"join"})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	cfg := &config.Config{Name: "file", ServiceID: "camlink"}
	opts.Apply(cfg)
	if cfg.Name != "file" || cfg.ServiceID != "camlink" {
		t.Errorf("Apply() changed unset fields: %q/%q", cfg.Name, cfg.ServiceID)
	}
}
