package helper

import "github.com/InfraSecConsult/pcap-topology-go/lib/model"

// CanonicalizeEdge orders an undirected pair so the lower index comes first.
// reversed reports whether the observed direction was b -> a in canonical terms.
func CanonicalizeEdge(from, to int) (key model.EdgeKey, reversed bool) {
	if from <= to {
		return model.EdgeKey{A: from, B: to}, false
	}
	return model.EdgeKey{A: to, B: from}, true
}
