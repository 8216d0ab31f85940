package topology

import "github.com/InfraSecConsult/pcap-topology-go/lib/model"

// RelationMapping holds, per device, the nodes and directed links to highlight with it.
// Sets only grow.
type RelationMapping struct {
	router int
	sets   map[int]*model.OrderedSet[model.RelationMember]
}

func NewRelationMapping(router int) *RelationMapping {
	return &RelationMapping{router: router, sets: make(map[int]*model.OrderedSet[model.RelationMember])}
}

// Record notes that device1 talked to device2. When device1 is the router, dist1 is
// the host behind it and ntwk1 that host's subnetwork, and both ends also get the
// full dist1 - ntwk1 - router - device2 chain.
func (m *RelationMapping) Record(device1, ntwk1, dist1, device2 int) {
	m.add(device1,
		model.NodeMember(device1),
		model.NodeMember(device2),
		model.EdgeMember(device1, device2),
		model.EdgeMember(device2, device1),
	)
	if device1 != m.router {
		return
	}
	m.chain(dist1, ntwk1, device2, device1)
	m.chain(device2, device1, dist1, ntwk1)
}

// chain links dev1 behind hop1 to dev2 behind hop2, recorded on dev1.
func (m *RelationMapping) chain(dev1, hop1, dev2, hop2 int) {
	m.add(dev1,
		model.NodeMember(hop2),
		model.NodeMember(dev2),
		model.NodeMember(hop1),
		model.NodeMember(dev1),
		model.EdgeMember(hop1, hop2),
		model.EdgeMember(dev1, hop1),
		model.EdgeMember(dev2, hop2),
		model.EdgeMember(hop2, hop1),
		model.EdgeMember(hop1, dev1),
		model.EdgeMember(hop2, dev2),
	)
}

func (m *RelationMapping) add(owner int, members ...model.RelationMember) {
	set, ok := m.sets[owner]
	if !ok {
		set = model.NewOrderedSet[model.RelationMember]()
		m.sets[owner] = set
	}
	for _, member := range members {
		if member.IsEdge && member.A == member.B {
			continue
		}
		set.Add(member)
	}
}

// Get returns the set recorded for index, or nil.
func (m *RelationMapping) Get(index int) *model.OrderedSet[model.RelationMember] {
	return m.sets[index]
}

// All returns copies of every recorded set.
func (m *RelationMapping) All() map[int]*model.OrderedSet[model.RelationMember] {
	out := make(map[int]*model.OrderedSet[model.RelationMember], len(m.sets))
	for idx, set := range m.sets {
		out[idx] = model.NewOrderedSet(set.List()...)
	}
	return out
}
