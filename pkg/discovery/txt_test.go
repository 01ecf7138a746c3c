package discovery

import (
	"errors"
	"strings"
	"testing"
)

func TestHostTXTRoundTrip(t *testing.T) {
	in := HostTXT{PeerID: "abc", Name: "Living Room"}
	out, err := ParseHostTXT(in.Encode())
	if err != nil {
		t.Fatalf("ParseHostTXT() error = %v", err)
	}
	if out.PeerID != "abc" || out.Name != "Living Room" {
		t.Errorf("ParseHostTXT() = %+v", out)
	}
	if out.Role != RoleHost || out.Version != ProtocolVersion {
		t.Errorf("role/version = %q/%q, want %q/%q", out.Role, out.Version, RoleHost, ProtocolVersion)
	}
}

func TestHostTXTEncodeTruncatesName(t *testing.T) {
	h := HostTXT{PeerID: "abc", Name: strings.Repeat("x", 400)}
	for _, rec := range h.Encode() {
		if len(rec) > maxTXTValueLen {
			t.Errorf("record length %d exceeds %d", len(rec), maxTXTValueLen)
		}
	}
}

func TestParseHostTXT(t *testing.T) {
	tests := []struct {
		name    string
		records []string
		wantErr bool
	}{
		{"valid", []string{"id=1", "name=a", "role=host", "v=1"}, false},
		{"uppercase keys", []string{"ID=1", "ROLE=host"}, false},
		{"missing id", []string{"name=a", "role=host"}, true},
		{"wrong role", []string{"id=1", "role=joiner"}, true},
		{"missing role", []string{"id=1"}, true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHostTXT(tt.records)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHostTXT() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTXTRecord) {
				t.Errorf("error = %v, want ErrInvalidTXTRecord", err)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	kv := ParseTXT([]string{"a=1", "flag", "=nokey", "b=x=y"})
	if kv["a"] != "1" {
		t.Errorf("a = %q, want 1", kv["a"])
	}
	if v, ok := kv["flag"]; !ok || v != "" {
		t.Errorf("flag = %q, %v; want empty, true", v, ok)
	}
	if kv["b"] != "x=y" {
		t.Errorf("b = %q, want x=y", kv["b"])
	}
	if len(kv) != 3 {
		t.Errorf("len = %d, want 3", len(kv))
	}
}
