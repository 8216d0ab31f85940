package model

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"time"
)

var macAddressRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// Ethertype names as produced by the reference table.
const (
	EtherTypeIPv4    = "ipV4"
	EtherTypeIPv6    = "ipV6"
	EtherTypeUnknown = "unknown"
)

func IsValidIPAddress(address string) bool {
	return net.ParseIP(address) != nil
}

func IsValidMACAddress(address string) bool {
	return macAddressRegex.MatchString(address)
}

// Side selects one endpoint of a packet.
type Side int

const (
	Source Side = iota
	Destination
)

func (s Side) String() string {
	if s == Source {
		return "src"
	}
	return "dst"
}

// PacketRecord is the per-packet metadata consumed by the topology engine.
// Empty strings and nil pointers mean the field was absent in the capture.
type PacketRecord struct {
	Timestamp     time.Time
	SrcMAC        string
	DstMAC        string
	EtherTypeCode *int   // raw ethertype value, if any
	EtherType     string // resolved name ("ipV4", "ipV6", "unknown")
	SrcIP         string
	DstIP         string
	Proto         *int
	SrcPort       *int
	DstPort       *int
}

// Endpoint is the addressing of one side of a packet.
type Endpoint struct {
	MAC  string
	IP   string
	Port *int
}

// Endpoint returns the addressing of the requested side.
func (r *PacketRecord) Endpoint(side Side) Endpoint {
	if side == Source {
		return Endpoint{MAC: r.SrcMAC, IP: r.SrcIP, Port: r.SrcPort}
	}
	return Endpoint{MAC: r.DstMAC, IP: r.DstIP, Port: r.DstPort}
}

// Validate checks the record once at the boundary so the pipeline can trust it.
func (r *PacketRecord) Validate() error {
	if r.SrcMAC == "" {
		return errors.New("source MAC must not be empty")
	}
	if r.DstMAC == "" {
		return errors.New("destination MAC must not be empty")
	}
	if !IsValidMACAddress(r.SrcMAC) {
		return fmt.Errorf("invalid source MAC %q", r.SrcMAC)
	}
	if !IsValidMACAddress(r.DstMAC) {
		return fmt.Errorf("invalid destination MAC %q", r.DstMAC)
	}
	if r.SrcIP != "" && !IsValidIPAddress(r.SrcIP) {
		return fmt.Errorf("invalid source IP %q", r.SrcIP)
	}
	if r.DstIP != "" && !IsValidIPAddress(r.DstIP) {
		return fmt.Errorf("invalid destination IP %q", r.DstIP)
	}
	for _, p := range []*int{r.SrcPort, r.DstPort} {
		if p != nil && (*p < 0 || *p > 65535) {
			return fmt.Errorf("port %d out of range", *p)
		}
	}
	if r.Proto != nil && (*r.Proto < 0 || *r.Proto > 255) {
		return fmt.Errorf("ip protocol %d out of range", *r.Proto)
	}
	return nil
}

// IntPtr is a convenience for building records with optional integer fields.
func IntPtr(v int) *int {
	return &v
}
