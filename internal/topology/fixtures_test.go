package topology

import (
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

const (
	routerMAC = "aa:aa:aa:aa:aa:01"
	hostMAC   = "00:00:00:00:00:0a"
	serverMAC = "00:00:00:00:00:0b"
	hostIP    = "192.168.1.10"
	serverIP  = "192.168.1.20"
)

func packet(srcMAC, srcIP string, srcPort int, dstMAC, dstIP string, dstPort int) *model.PacketRecord {
	rec := &model.PacketRecord{
		SrcMAC:        srcMAC,
		DstMAC:        dstMAC,
		EtherTypeCode: model.IntPtr(2048),
		EtherType:     model.EtherTypeIPv4,
		SrcIP:         srcIP,
		DstIP:         dstIP,
		Proto:         model.IntPtr(6),
	}
	if srcPort >= 0 {
		rec.SrcPort = model.IntPtr(srcPort)
	}
	if dstPort >= 0 {
		rec.DstPort = model.IntPtr(dstPort)
	}
	return rec
}

// homeNetwork is a host browsing two remote sites through the router, plus a LAN
// web server answering the host directly.
func homeNetwork() []*model.PacketRecord {
	return []*model.PacketRecord{
		packet(hostMAC, hostIP, 50000, routerMAC, "93.184.216.34", 443),
		packet(routerMAC, "93.184.216.34", 443, hostMAC, hostIP, 50000),
		packet(serverMAC, serverIP, 80, hostMAC, hostIP, 50001),
		packet(routerMAC, "142.250.1.1", 80, hostMAC, hostIP, 50002),
	}
}
