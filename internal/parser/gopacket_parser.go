package parser

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

var errNoEthernet = errors.New("no ethernet layer")

// GopacketParser reads a pcap capture into packet records.
type GopacketParser struct {
	PcapFile     string
	tables       *helper.ReferenceTables
	errorHandler ErrorHandler
}

func NewGopacketParser(pcapFile string, tables *helper.ReferenceTables, handler ErrorHandler) *GopacketParser {
	if tables == nil {
		tables = helper.DefaultReferenceTables()
	}
	if handler == nil {
		handler = NewNoOpErrorHandler()
	}
	return &GopacketParser{
		PcapFile:     pcapFile,
		tables:       tables,
		errorHandler: handler,
	}
}

// ReadRecords decodes every frame of the capture. Frames without an Ethernet header
// are reported to the error handler and skipped; frames that only partially decode
// still yield a record with whatever fields were recovered.
func (p *GopacketParser) ReadRecords() ([]*model.PacketRecord, error) {
	handle, err := pcap.OpenOffline(p.PcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap: %w", err)
	}
	defer handle.Close()

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetSource.DecodeOptions.Lazy = true
	packetSource.DecodeOptions.NoCopy = true

	var records []*model.PacketRecord
	packetID := 0
	for packet := range packetSource.Packets() {
		packetID++
		rec, decodeErr := p.decode(packet)
		if decodeErr != nil {
			handlerErr := p.errorHandler.HandleRecordError(&RecordError{
				Source:      p.PcapFile,
				Packet:      packetID,
				Timestamp:   packet.Metadata().Timestamp,
				Err:         decodeErr,
				Recoverable: rec != nil,
			})
			if handlerErr != nil {
				return nil, handlerErr
			}
		}
		if rec != nil {
			records = append(records, rec)
		}
	}

	log.Debug().Str("file", p.PcapFile).Int("packets", packetID).Int("records", len(records)).Msg("Capture read")
	return records, nil
}

// decode returns a nil record when the frame cannot be attributed to two MACs.
func (p *GopacketParser) decode(packet gopacket.Packet) (*model.PacketRecord, error) {
	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, fmt.Errorf("%w: %v", errNoEthernet, errLayer.Error())
		}
		return nil, errNoEthernet
	}
	eth := ethLayer.(*layers.Ethernet)

	etherType := int(eth.EthernetType)
	if dot1qLayer := packet.Layer(layers.LayerTypeDot1Q); dot1qLayer != nil {
		etherType = int(dot1qLayer.(*layers.Dot1Q).Type)
	}

	rec := &model.PacketRecord{
		Timestamp:     packet.Metadata().Timestamp,
		SrcMAC:        eth.SrcMAC.String(),
		DstMAC:        eth.DstMAC.String(),
		EtherTypeCode: model.IntPtr(etherType),
	}
	rec.EtherType = p.tables.EtherTypeName(rec.EtherTypeCode)

	// IPv4
	if ip4Layer := packet.Layer(layers.LayerTypeIPv4); ip4Layer != nil {
		ip4 := ip4Layer.(*layers.IPv4)
		rec.SrcIP = ip4.SrcIP.String()
		rec.DstIP = ip4.DstIP.String()
		rec.Proto = model.IntPtr(int(ip4.Protocol))
	}

	// IPv6
	if ip6Layer := packet.Layer(layers.LayerTypeIPv6); ip6Layer != nil {
		ip6 := ip6Layer.(*layers.IPv6)
		rec.SrcIP = ip6.SrcIP.String()
		rec.DstIP = ip6.DstIP.String()
		rec.Proto = model.IntPtr(int(ip6.NextHeader))
	}

	// TCP
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		rec.SrcPort = model.IntPtr(int(tcp.SrcPort))
		rec.DstPort = model.IntPtr(int(tcp.DstPort))
	}

	// UDP
	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		rec.SrcPort = model.IntPtr(int(udp.SrcPort))
		rec.DstPort = model.IntPtr(int(udp.DstPort))
	}

	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return rec, errLayer.Error()
	}
	return rec, nil
}
