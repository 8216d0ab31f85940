package topology

import (
	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// Link is one directed observation between two device indices.
type Link struct {
	From int
	To   int
}

// Graph is the undirected device graph. Edges are stored once per canonical pair
// and remember how many packets went each way.
type Graph struct {
	edges map[model.EdgeKey]*model.Edge
	order []model.EdgeKey
}

func NewGraph() *Graph {
	return &Graph{edges: make(map[model.EdgeKey]*model.Edge)}
}

// AddEdge counts one packet from -> to. Self-loops are not stored.
func (g *Graph) AddEdge(from, to int) bool {
	if from == to {
		return false
	}
	key, reversed := helper.CanonicalizeEdge(from, to)
	edge, ok := g.edges[key]
	if !ok {
		edge = &model.Edge{A: key.A, B: key.B}
		g.edges[key] = edge
		g.order = append(g.order, key)
	}
	edge.Packets++
	if reversed {
		edge.PacketsBA++
	} else {
		edge.PacketsAB++
	}
	return true
}

// AddPacket counts every distinct pair in links once, whatever its orientation.
func (g *Graph) AddPacket(links []Link) int {
	seen := make(map[model.EdgeKey]struct{}, len(links))
	added := 0
	for _, l := range links {
		key, _ := helper.CanonicalizeEdge(l.From, l.To)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if g.AddEdge(l.From, l.To) {
			added++
		}
	}
	return added
}

// Edge returns the edge between a and b in either orientation, or nil.
func (g *Graph) Edge(a, b int) *model.Edge {
	key, _ := helper.CanonicalizeEdge(a, b)
	return g.edges[key]
}

// Edges returns copies of all edges in first-seen order.
func (g *Graph) Edges() []*model.Edge {
	out := make([]*model.Edge, 0, len(g.order))
	for _, key := range g.order {
		e := *g.edges[key]
		out = append(out, &e)
	}
	return out
}

func (g *Graph) Len() int {
	return len(g.order)
}
