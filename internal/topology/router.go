package topology

import (
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

const maxRefinementRounds = 10

// Source ports that mark a device as answering web traffic.
var webPorts = map[int]struct{}{80: {}, 443: {}}

// RouterDetection is the outcome of a successful detection pass.
type RouterDetection struct {
	MAC        string
	Candidates []string // every MAC seen answering from a web port, first-seen order
	Rounds     int
}

// DetectRouter picks the premises router out of the capture.
//
// Every MAC that sends from port 80 or 443 is a candidate, together with the
// source IPs it used. A web server on the LAN answers from one address; the
// router relays answers from many remote servers. A candidate whose IPs disagree
// in their first three characters is therefore taken as the router and the
// candidate list collapses to it. Exactly one remaining candidate is required.
func DetectRouter(records []*model.PacketRecord) (*RouterDetection, error) {
	var candidates []string
	peers := make(map[string]*model.OrderedSet[string])

	for _, rec := range records {
		if rec.SrcPort == nil {
			continue
		}
		if _, ok := webPorts[*rec.SrcPort]; !ok {
			continue
		}
		ips, ok := peers[rec.SrcMAC]
		if !ok {
			ips = model.NewOrderedSet[string]()
			peers[rec.SrcMAC] = ips
			candidates = append(candidates, rec.SrcMAC)
		}
		ips.Add(rec.SrcIP)
	}
	all := append([]string(nil), candidates...)

	rounds := 0
	for rounds < maxRefinementRounds && len(candidates) > 1 {
		rounds++
		divergent, found := firstDivergent(candidates, peers)
		if !found {
			break
		}
		log.Debug().Str("mac", divergent).Int("round", rounds).Msg("Candidate answers from diverging addresses")
		candidates = []string{divergent}
	}

	if len(candidates) != 1 {
		return nil, &RouterNotFoundError{Candidates: candidates, Iterations: rounds}
	}
	return &RouterDetection{MAC: candidates[0], Candidates: all, Rounds: rounds}, nil
}

// firstDivergent returns the first candidate whose addresses differ in their leading
// three characters. Empty and 0.0.0.0 addresses are ignored.
func firstDivergent(candidates []string, peers map[string]*model.OrderedSet[string]) (string, bool) {
	for _, mac := range candidates {
		var reference string
		for _, ip := range peers[mac].List() {
			if ip == "" || ip == "0.0.0.0" {
				continue
			}
			if reference == "" {
				reference = leading(ip)
				continue
			}
			if leading(ip) != reference {
				return mac, true
			}
		}
	}
	return "", false
}

func leading(ip string) string {
	if len(ip) < 3 {
		return ip
	}
	return ip[:3]
}
