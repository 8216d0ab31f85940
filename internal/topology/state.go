package topology

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// EngineState is everything one run accumulates. It is owned by the caller and
// mutated only by the engine while the run is in progress.
type EngineState struct {
	Registry    *Registry
	Classifier  *Classifier
	Graph       *Graph
	Relations   *RelationMapping
	Connections *ConnectionTable
	Router      int
	Stats       model.Stats

	devices     map[int]*model.DeviceMetadata
	subnetworks map[int]*model.Subnetwork
	subnetOrder []int
}

// NewEngineState registers routerMAC first so it receives index 0, and creates the
// LAN subnetwork under the router's index.
func NewEngineState(routerMAC string) *EngineState {
	registry := NewRegistry()
	router := registry.Resolve(routerMAC)

	s := &EngineState{
		Registry:    registry,
		Classifier:  NewClassifier(registry),
		Graph:       NewGraph(),
		Relations:   NewRelationMapping(router),
		Connections: NewConnectionTable(),
		Router:      router,
		devices:     make(map[int]*model.DeviceMetadata),
		subnetworks: make(map[int]*model.Subnetwork),
	}
	s.device(router)
	s.addSubnetwork(router, model.LANPrefix)
	return s
}

// endpoint is what resolving one side of a packet yields.
type endpoint struct {
	Primary int        // device seen on the wire: the MAC's index
	Distant int        // host behind the router, or Primary for LAN devices
	Subnet  int        // subnetwork of Distant
	Port    model.Port // collapsed port of this side
}

func (s *EngineState) device(idx int) *model.DeviceMetadata {
	dev, ok := s.devices[idx]
	if !ok {
		dev = model.NewDeviceMetadata(idx, s.Registry.Identifier(idx))
		s.devices[idx] = dev
	}
	return dev
}

func (s *EngineState) addSubnetwork(idx int, prefix string) *model.Subnetwork {
	if sub, ok := s.subnetworks[idx]; ok {
		return sub
	}
	sub := model.NewSubnetwork(idx, prefix)
	s.subnetworks[idx] = sub
	s.subnetOrder = append(s.subnetOrder, idx)
	return sub
}

func (s *EngineState) lan() *model.Subnetwork {
	return s.subnetworks[s.Router]
}

func observe(dev *model.DeviceMetadata, ip string, ipv6 bool, port model.Port) {
	if ipv6 {
		dev.IPv6.Add(model.Address(ip))
	} else {
		dev.IPv4.Add(model.Address(ip))
	}
	dev.Ports.Add(port)
}

// resolve processes one side of a qualifying packet.
func (s *EngineState) resolve(rec *model.PacketRecord, side model.Side) (endpoint, error) {
	ep := rec.Endpoint(side)
	port := model.NewPort(ep.Port)
	ipv6 := rec.EtherType == model.EtherTypeIPv6 || helper.IsIPv6(ep.IP)

	idx := s.Registry.Resolve(ep.MAC)
	if idx != s.Router {
		observe(s.device(idx), ep.IP, ipv6, port)
		s.lan().Members.Add(idx)
		return endpoint{Primary: idx, Distant: idx, Subnet: s.Router, Port: port}, nil
	}

	// The router itself keeps no addressing; what it carried belongs to the host behind it.
	wan := s.Registry.Resolve(ep.IP)
	observe(s.device(wan), ep.IP, ipv6, port)
	if ipv6 {
		return endpoint{Primary: idx, Distant: wan, Subnet: s.Router, Port: port}, nil
	}

	subnet, prefix, created, err := s.Classifier.Classify(ep.IP)
	if err != nil {
		return endpoint{}, err
	}
	if created {
		s.device(subnet)
		log.Debug().Str("prefix", prefix).Int("index", subnet).Msg("New subnetwork")
	}
	s.addSubnetwork(subnet, prefix).Members.Add(wan)
	return endpoint{Primary: idx, Distant: wan, Subnet: subnet, Port: port}, nil
}

// Apply folds one qualifying packet into the state.
func (s *EngineState) Apply(rec *model.PacketRecord) error {
	src, err := s.resolve(rec, model.Source)
	if err != nil {
		return err
	}
	dst, err := s.resolve(rec, model.Destination)
	if err != nil {
		return err
	}

	s.Connections.Update(src.Distant, src.Port, s.Registry.Identifier(dst.Distant), dst.Port)
	s.Relations.Record(src.Primary, src.Subnet, src.Distant, dst.Primary)
	s.Relations.Record(dst.Primary, dst.Subnet, dst.Distant, src.Primary)

	links := []Link{{From: src.Primary, To: dst.Primary}}
	for _, e := range []endpoint{src, dst} {
		if e.Primary == s.Router {
			links = append(links, Link{From: e.Distant, To: e.Subnet}, Link{From: e.Subnet, To: s.Router})
		}
	}
	s.Graph.AddPacket(links)
	return nil
}

// Kind derives the role of idx from subnetwork membership.
func (s *EngineState) Kind(idx int) model.DeviceKind {
	switch {
	case idx == s.Router:
		return model.KindRouter
	case s.Classifier.IsSubnetwork(idx):
		return model.KindSubnetwork
	case s.lan().Members.Contains(idx):
		return model.KindLANHost
	default:
		return model.KindWANHost
	}
}

// Snapshot copies the state into a Topology. The state can keep growing afterwards
// without affecting the returned value.
func (s *EngineState) Snapshot(source string) *model.Topology {
	top := &model.Topology{
		Source:      source,
		CreatedAt:   time.Now().UTC(),
		Router:      s.Router,
		Devices:     make([]*model.DeviceMetadata, 0, s.Registry.Len()),
		Subnetworks: make([]*model.Subnetwork, 0, len(s.subnetOrder)),
		Edges:       s.Graph.Edges(),
		Relations:   s.Relations.All(),
		Connections: s.Connections.All(),
		Stats:       s.Stats,
	}
	for idx := 0; idx < s.Registry.Len(); idx++ {
		src := s.device(idx)
		dev := &model.DeviceMetadata{
			Index:      idx,
			Identifier: src.Identifier,
			Kind:       s.Kind(idx),
			IPv4:       model.NewOrderedSet(src.IPv4.List()...),
			IPv6:       model.NewOrderedSet(src.IPv6.List()...),
			Ports:      model.NewOrderedSet(src.Ports.List()...),
		}
		top.Devices = append(top.Devices, dev)
	}
	for _, idx := range s.subnetOrder {
		sub := s.subnetworks[idx]
		top.Subnetworks = append(top.Subnetworks, &model.Subnetwork{
			Index:   sub.Index,
			Prefix:  sub.Prefix,
			Members: model.NewOrderedSet(sub.Members.List()...),
		})
	}
	return top
}
