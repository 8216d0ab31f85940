package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

func TestRelationMapping_LocalPair(t *testing.T) {
	m := NewRelationMapping(0)
	m.Record(1, 0, 1, 2)
	m.Record(2, 0, 2, 1)

	assert.Equal(t, []model.RelationMember{
		model.NodeMember(1), model.NodeMember(2), model.EdgeMember(1, 2), model.EdgeMember(2, 1),
	}, m.Get(1).List())
	assert.True(t, m.Get(2).Contains(model.NodeMember(1)))
	assert.Nil(t, m.Get(0))
}

func TestRelationMapping_RouterChain(t *testing.T) {
	const router, host, wan, subnet = 0, 1, 2, 3
	m := NewRelationMapping(router)
	m.Record(router, subnet, wan, host)

	assert.ElementsMatch(t, []model.RelationMember{
		model.NodeMember(router), model.NodeMember(host),
		model.EdgeMember(router, host), model.EdgeMember(host, router),
	}, m.Get(router).List())

	expectedChain := []model.RelationMember{
		model.NodeMember(router), model.NodeMember(host), model.NodeMember(subnet), model.NodeMember(wan),
		model.EdgeMember(subnet, router), model.EdgeMember(router, subnet),
		model.EdgeMember(wan, subnet), model.EdgeMember(subnet, wan),
		model.EdgeMember(host, router), model.EdgeMember(router, host),
	}
	assert.ElementsMatch(t, expectedChain, m.Get(wan).List())
	assert.ElementsMatch(t, expectedChain, m.Get(host).List())
}

func TestRelationMapping_GrowsWithoutDuplicates(t *testing.T) {
	m := NewRelationMapping(0)
	m.Record(0, 3, 2, 1)
	size := m.Get(1).Size()
	m.Record(0, 3, 2, 1)
	assert.Equal(t, size, m.Get(1).Size())

	m.Record(0, 5, 4, 1)
	assert.True(t, m.Get(1).Contains(model.NodeMember(4)))
	assert.True(t, m.Get(1).Contains(model.NodeMember(2)))
}

func TestRelationMapping_SkipsSelfEdges(t *testing.T) {
	m := NewRelationMapping(0)
	// IPv6 host behind the router: its subnetwork is the router itself
	m.Record(0, 0, 4, 1)
	for _, member := range m.Get(4).List() {
		if member.IsEdge {
			assert.NotEqual(t, member.A, member.B)
		}
	}
	assert.False(t, m.Get(4).Contains(model.EdgeMember(0, 0)))

	all := m.All()
	all[4].Add(model.NodeMember(99))
	assert.False(t, m.Get(4).Contains(model.NodeMember(99)))
}
