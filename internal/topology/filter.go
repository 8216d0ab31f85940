package topology

import (
	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// Qualifies reports whether a record takes part in graph building. Both IPs must be
// present and neither side may be broadcast, IPv4 multicast or ff02:: multicast.
func Qualifies(rec *model.PacketRecord) bool {
	if rec.SrcIP == "" || rec.DstIP == "" {
		return false
	}
	for _, ip := range []string{rec.SrcIP, rec.DstIP} {
		if helper.IsLinkLocalMulticastV6(ip) || helper.IsMulticastV4(ip) {
			return false
		}
	}
	return !helper.IsBroadcastMAC(rec.SrcMAC) && !helper.IsBroadcastMAC(rec.DstMAC)
}
