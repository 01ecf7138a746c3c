package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference sorts IP addresses for dialing a peer on the same LAN.
// Priority order (highest to lowest):
//  1. Private IPv4 (10/8, 172.16/12, 192.168/16)
//  2. Other unicast IPv4
//  3. Global unicast IPv6
//  4. Unique Local IPv6 (fc00::/7)
//  5. Link-local
//  6. Loopback
//
// The input slice is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}

	switch {
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast() || ip.IsUnspecified():
		return 90
	case ip.IsLinkLocalUnicast():
		return 40
	}

	if ip4 := ip.To4(); ip4 != nil {
		if ip4.IsPrivate() {
			return 0
		}
		return 10
	}

	if isUniqueLocal(ip) {
		return 30
	}
	if ip.IsGlobalUnicast() {
		return 20
	}
	return 50
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address.
func isUniqueLocal(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}
