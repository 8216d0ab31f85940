package helper

import (
	"strconv"
	"strings"
)

const BroadcastMAC = "ff:ff:ff:ff:ff:ff"

// IsBroadcastMAC reports whether mac is the Ethernet broadcast address
func IsBroadcastMAC(mac string) bool {
	return strings.EqualFold(mac, BroadcastMAC)
}

// IsLinkLocalMulticastV6 matches the ff02::/16 all-nodes/all-routers style scope.
func IsLinkLocalMulticastV6(address string) bool {
	return len(address) >= 4 && strings.EqualFold(address[:4], "ff02")
}

// IsMulticastV4 matches dotted-decimal addresses whose first octet is 224-239.
func IsMulticastV4(address string) bool {
	octet, ok := FirstOctet(address)
	return ok && octet >= 224 && octet <= 239
}

// FirstOctet parses the leading decimal component of a dotted IPv4 string.
func FirstOctet(address string) (int, bool) {
	if IsIPv6(address) {
		return 0, false
	}
	head, _, _ := strings.Cut(address, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 || n > 255 {
		return 0, false
	}
	return n, true
}

// IsIPv6 reports whether the address is written in IPv6 notation.
func IsIPv6(address string) bool {
	return strings.Count(address, ":") > 1
}
