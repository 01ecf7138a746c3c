package discovery

import (
	"net"
	"testing"
)

func TestSortIPsByPreference(t *testing.T) {
	in := []net.IP{
		net.ParseIP("127.0.0.1"),
		net.ParseIP("fe80::1"),
		net.ParseIP("fd00::1"),
		net.ParseIP("2001:db8::1"),
		net.ParseIP("8.8.8.8"),
		net.ParseIP("192.168.1.10"),
	}
	want := []string{
		"192.168.1.10",
		"8.8.8.8",
		"2001:db8::1",
		"fd00::1",
		"fe80::1",
		"127.0.0.1",
	}

	got := SortIPsByPreference(in)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if in[0].String() != "127.0.0.1" {
		t.Error("input slice was modified")
	}
}

func TestFilterIPs(t *testing.T) {
	ips := []net.IP{net.ParseIP("10.0.0.1"), net.ParseIP("fe80::1"), net.ParseIP("10.0.0.2")}
	if got := FilterIPv4(ips); len(got) != 2 {
		t.Errorf("FilterIPv4() len = %d, want 2", len(got))
	}
	if got := FilterIPv6(ips); len(got) != 1 {
		t.Errorf("FilterIPv6() len = %d, want 1", len(got))
	}
}
