package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

func TestQualifies(t *testing.T) {
	tests := []struct {
		name     string
		rec      *model.PacketRecord
		expected bool
	}{
		{"unicast", packet(hostMAC, hostIP, 1, serverMAC, serverIP, 2), true},
		{"ipv6 unicast", packet(hostMAC, "fe80::1", 1, serverMAC, "fe80::2", 2), true},
		{"missing source ip", packet(hostMAC, "", 1, serverMAC, serverIP, 2), false},
		{"missing destination ip", packet(hostMAC, hostIP, 1, serverMAC, "", 2), false},
		{"ipv4 multicast", packet(hostMAC, hostIP, 1, serverMAC, "239.255.255.250", 1900), false},
		{"ipv4 multicast source", packet(hostMAC, "224.0.0.5", 1, serverMAC, serverIP, 2), false},
		{"ipv6 link-local multicast", packet(hostMAC, "fe80::1", 1, serverMAC, "ff02::fb", 5353), false},
		{"broadcast destination", packet(hostMAC, hostIP, 68, "ff:ff:ff:ff:ff:ff", "255.255.255.255", 67), false},
		{"broadcast source", packet("ff:ff:ff:ff:ff:ff", hostIP, 1, serverMAC, serverIP, 2), false},
		{"reserved class e", packet(hostMAC, hostIP, 1, serverMAC, "240.0.0.1", 2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Qualifies(tt.rec))
		})
	}
}
