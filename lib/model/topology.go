package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeviceKind is derived from subnetwork membership after a run.
type DeviceKind string

const (
	KindRouter     DeviceKind = "router"
	KindLANHost    DeviceKind = "lan-host"
	KindSubnetwork DeviceKind = "subnetwork-node"
	KindWANHost    DeviceKind = "wan-host"
)

// EphemeralPort replaces every port above 1024.
const EphemeralPort Port = ">1024"

// LANPrefix names the implicit subnetwork grouping the router's LAN peers.
const LANPrefix = "lan"

// Address is an observed IP address; the empty value is the "seen but unset" placeholder.
type Address string

func (a Address) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

func (a *Address) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = Address(s)
	return nil
}

func (a Address) MarshalYAML() (interface{}, error) {
	if a == "" {
		return nil, nil
	}
	return string(a), nil
}

// Port is an observed transport port: a decimal value, EphemeralPort, or empty when absent.
type Port string

// NewPort collapses the raw port into its recorded form.
func NewPort(p *int) Port {
	if p == nil {
		return ""
	}
	if *p > 1024 {
		return EphemeralPort
	}
	return Port(strconv.Itoa(*p))
}

// Number returns the numeric port, false for absent or ephemeral values.
func (p Port) Number() (int, bool) {
	if p == "" || p == EphemeralPort {
		return 0, false
	}
	n, err := strconv.Atoi(string(p))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p Port) MarshalJSON() ([]byte, error) {
	if p == "" {
		return []byte("null"), nil
	}
	if n, ok := p.Number(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(p))
}

func (p *Port) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ""
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(strconv.Itoa(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = Port(s)
	return nil
}

func (p Port) MarshalYAML() (interface{}, error) {
	if p == "" {
		return nil, nil
	}
	if n, ok := p.Number(); ok {
		return n, nil
	}
	return string(p), nil
}

// DeviceMetadata is everything observed for one registry index.
type DeviceMetadata struct {
	Index      int                  `json:"index" yaml:"index"`
	Identifier string               `json:"identifier" yaml:"identifier"`
	Kind       DeviceKind           `json:"kind" yaml:"kind"`
	IPv4       *OrderedSet[Address] `json:"ipv4" yaml:"ipv4"`
	IPv6       *OrderedSet[Address] `json:"ipv6" yaml:"ipv6"`
	Ports      *OrderedSet[Port]    `json:"ports" yaml:"ports"`
}

func NewDeviceMetadata(index int, identifier string) *DeviceMetadata {
	return &DeviceMetadata{
		Index:      index,
		Identifier: identifier,
		IPv4:       NewOrderedSet[Address](),
		IPv6:       NewOrderedSet[Address](),
		Ports:      NewOrderedSet[Port](),
	}
}

// Annotation is the hover text shown for the device.
func (d *DeviceMetadata) Annotation() string {
	var sb strings.Builder
	sb.WriteString("MAC : ")
	if d.Kind == KindRouter || d.Kind == KindLANHost {
		sb.WriteString(d.Identifier)
	} else {
		sb.WriteString("None")
	}
	sb.WriteString("\nIP : ")
	if d.Kind == KindSubnetwork {
		sb.WriteString(d.Identifier)
		return sb.String()
	}
	ips := make([]string, 0, d.IPv4.Size())
	for _, ip := range d.IPv4.List() {
		if ip != "" {
			ips = append(ips, string(ip))
		}
	}
	sb.WriteString(strings.Join(ips, ", "))
	return sb.String()
}

// Subnetwork groups device indices under one classful prefix.
type Subnetwork struct {
	Index   int              `json:"index" yaml:"index"`
	Prefix  string           `json:"prefix" yaml:"prefix"`
	Members *OrderedSet[int] `json:"members" yaml:"members"`
}

func NewSubnetwork(index int, prefix string) *Subnetwork {
	return &Subnetwork{Index: index, Prefix: prefix, Members: NewOrderedSet[int]()}
}

// EdgeKey is the canonical (lower, higher) form of an undirected device pair.
type EdgeKey struct {
	A int
	B int
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%d-%d", k.A, k.B)
}

// Edge is an undirected link with the traffic seen on it.
type Edge struct {
	A         int `json:"a" yaml:"a"`
	B         int `json:"b" yaml:"b"`
	Packets   int `json:"packets" yaml:"packets"`
	PacketsAB int `json:"packets_a_to_b" yaml:"packets_a_to_b"`
	PacketsBA int `json:"packets_b_to_a" yaml:"packets_b_to_a"`
}

func (e *Edge) Key() EdgeKey {
	return EdgeKey{A: e.A, B: e.B}
}

// RelationMember is either a device index or a directed device pair.
type RelationMember struct {
	A      int
	B      int
	IsEdge bool
}

func NodeMember(index int) RelationMember {
	return RelationMember{A: index, B: index}
}

func EdgeMember(from, to int) RelationMember {
	return RelationMember{A: from, B: to, IsEdge: true}
}

func (m RelationMember) String() string {
	if m.IsEdge {
		return fmt.Sprintf("(%d,%d)", m.A, m.B)
	}
	return strconv.Itoa(m.A)
}

func (m RelationMember) MarshalJSON() ([]byte, error) {
	if m.IsEdge {
		return json.Marshal([2]int{m.A, m.B})
	}
	return json.Marshal(m.A)
}

func (m *RelationMember) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err == nil {
		*m = EdgeMember(pair[0], pair[1])
		return nil
	}
	var node int
	if err := json.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("relation member must be an index or a pair: %w", err)
	}
	*m = NodeMember(node)
	return nil
}

func (m RelationMember) MarshalYAML() (interface{}, error) {
	if m.IsEdge {
		return []int{m.A, m.B}, nil
	}
	return m.A, nil
}

// ConnectionRow is one line of a device's connection table.
type ConnectionRow struct {
	PortSrc   Port   `json:"port_src" yaml:"port_src"`
	PortDst   Port   `json:"port_dst" yaml:"port_dst"`
	DeviceDst string `json:"device_dst" yaml:"device_dst"`
}

// Stats summarizes a run.
type Stats struct {
	Packets          int `json:"packets" yaml:"packets"`
	Accepted         int `json:"accepted" yaml:"accepted"`
	Filtered         int `json:"filtered" yaml:"filtered"`
	Invalid          int `json:"invalid" yaml:"invalid"`
	RouterCandidates int `json:"router_candidates" yaml:"router_candidates"`
	RouterRounds     int `json:"router_rounds" yaml:"router_rounds"`
}

// Topology is the read-only result of a run handed to the presentation layer.
type Topology struct {
	RunID       string                              `json:"run_id" yaml:"run_id"`
	Source      string                              `json:"source" yaml:"source"`
	CreatedAt   time.Time                           `json:"created_at" yaml:"created_at"`
	Router      int                                 `json:"router" yaml:"router"`
	Devices     []*DeviceMetadata                   `json:"devices" yaml:"devices"`
	Subnetworks []*Subnetwork                       `json:"subnetworks" yaml:"subnetworks"`
	Edges       []*Edge                             `json:"edges" yaml:"edges"`
	Relations   map[int]*OrderedSet[RelationMember] `json:"relations" yaml:"relations"`
	Connections map[int][]ConnectionRow             `json:"connections" yaml:"connections"`
	Stats       Stats                               `json:"stats" yaml:"stats"`
}

// Device returns the metadata for index, or nil.
func (t *Topology) Device(index int) *DeviceMetadata {
	if index < 0 || index >= len(t.Devices) {
		return nil
	}
	return t.Devices[index]
}

// Edge looks up the link between a and b in either orientation.
func (t *Topology) Edge(a, b int) *Edge {
	if a > b {
		a, b = b, a
	}
	for _, e := range t.Edges {
		if e.A == a && e.B == b {
			return e
		}
	}
	return nil
}

func (t *Topology) Subnetwork(index int) *Subnetwork {
	for _, s := range t.Subnetworks {
		if s.Index == index {
			return s
		}
	}
	return nil
}

// Relation returns the highlight set for index; empty when nothing was recorded.
func (t *Topology) Relation(index int) *OrderedSet[RelationMember] {
	if rel, ok := t.Relations[index]; ok {
		return rel
	}
	return NewOrderedSet[RelationMember]()
}

// RunSummary is a stored run as listed by the repository.
type RunSummary struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Source    string    `json:"source" yaml:"source"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Router    string    `json:"router" yaml:"router"`
	Devices   int       `json:"devices" yaml:"devices"`
	Edges     int       `json:"edges" yaml:"edges"`
}
