package testutil

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Frame describes one synthetic Ethernet frame. An empty SrcIP produces an ARP
// reply; an address containing ':' produces IPv6. Transport segments carry no
// payload so well-known ports are not handed to application decoders.
type Frame struct {
	SrcMAC    string
	DstMAC    string
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	UDP       bool
	VLAN      uint16 // wrap in an 802.1Q tag when non-zero
	Timestamp time.Time
}

// WritePcap serializes frames into a pcap file under t.TempDir and returns its path.
func WritePcap(t testing.TB, frames []Frame) string {
	t.Helper()
	raw := make([][]byte, 0, len(frames))
	stamps := make([]time.Time, 0, len(frames))
	for i, f := range frames {
		raw = append(raw, serializeFrame(t, f))
		ts := f.Timestamp
		if ts.IsZero() {
			ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Millisecond)
		}
		stamps = append(stamps, ts)
	}
	return writeFile(t, raw, stamps)
}

// WriteRawPcap stores already serialized frames, e.g. truncated or malformed ones.
func WriteRawPcap(t testing.TB, frames [][]byte) string {
	t.Helper()
	stamps := make([]time.Time, len(frames))
	for i := range stamps {
		stamps[i] = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Millisecond)
	}
	return writeFile(t, frames, stamps)
}

func writeFile(t testing.TB, frames [][]byte, stamps []time.Time) string {
	buf := &bytes.Buffer{}
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("failed to write pcap header: %v", err)
	}
	for i, data := range frames {
		err := w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     stamps[i],
			Length:        len(data),
			CaptureLength: len(data),
		}, data)
		if err != nil {
			t.Fatalf("failed to write packet %d: %v", i, err)
		}
	}

	path := filepath.Join(t.TempDir(), "capture.pcap")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write pcap file: %v", err)
	}
	return path
}

func mustMAC(t testing.TB, s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("bad MAC %q: %v", s, err)
	}
	return mac
}

// SerializeFrame builds the bytes of a single frame.
func SerializeFrame(t testing.TB, f Frame) []byte {
	t.Helper()
	return serializeFrame(t, f)
}

func serializeFrame(t testing.TB, f Frame) []byte {
	eth := &layers.Ethernet{
		SrcMAC: mustMAC(t, f.SrcMAC),
		DstMAC: mustMAC(t, f.DstMAC),
	}
	var stack []gopacket.SerializableLayer

	var payloadType layers.EthernetType
	var network []gopacket.SerializableLayer
	var ipLayer gopacket.NetworkLayer
	switch {
	case f.SrcIP == "":
		payloadType = layers.EthernetTypeARP
		network = append(network, &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPReply,
			SourceHwAddress:   eth.SrcMAC,
			SourceProtAddress: []byte{0, 0, 0, 0},
			DstHwAddress:      eth.DstMAC,
			DstProtAddress:    []byte{0, 0, 0, 0},
		})
	case strings.Contains(f.SrcIP, ":"):
		payloadType = layers.EthernetTypeIPv6
		ip6 := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			SrcIP:      net.ParseIP(f.SrcIP),
			DstIP:      net.ParseIP(f.DstIP),
			NextHeader: layers.IPProtocolTCP,
		}
		if f.UDP {
			ip6.NextHeader = layers.IPProtocolUDP
		}
		ipLayer = ip6
		network = append(network, ip6)
	default:
		payloadType = layers.EthernetTypeIPv4
		ip4 := &layers.IPv4{
			Version:  4,
			TTL:      64,
			SrcIP:    net.ParseIP(f.SrcIP).To4(),
			DstIP:    net.ParseIP(f.DstIP).To4(),
			Protocol: layers.IPProtocolTCP,
		}
		if f.UDP {
			ip4.Protocol = layers.IPProtocolUDP
		}
		ipLayer = ip4
		network = append(network, ip4)
	}

	if f.VLAN != 0 {
		eth.EthernetType = layers.EthernetTypeDot1Q
		stack = append(stack, eth, &layers.Dot1Q{VLANIdentifier: f.VLAN, Type: payloadType})
	} else {
		eth.EthernetType = payloadType
		stack = append(stack, eth)
	}
	stack = append(stack, network...)

	if ipLayer != nil {
		if f.UDP {
			udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
			if err := udp.SetNetworkLayerForChecksum(ipLayer); err != nil {
				t.Fatalf("failed to set checksum layer: %v", err)
			}
			stack = append(stack, udp)
		} else {
			tcp := &layers.TCP{SrcPort: layers.TCPPort(f.SrcPort), DstPort: layers.TCPPort(f.DstPort), ACK: true, Window: 1024}
			if err := tcp.SetNetworkLayerForChecksum(ipLayer); err != nil {
				t.Fatalf("failed to set checksum layer: %v", err)
			}
			stack = append(stack, tcp)
		}
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		t.Fatalf("failed to serialize frame: %v", err)
	}
	return buf.Bytes()
}
