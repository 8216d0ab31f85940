package topology

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// Builder turns a packet record stream into a topology.
type Builder interface {
	Build(source string, records []*model.PacketRecord) (*model.Topology, error)
}

// Engine is the default Builder. It runs router detection over the whole stream,
// then a single pass that fills an EngineState.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Build runs both passes. The only failures are router detection and an address the
// subnet classifier cannot place; anything else a record lacks is recorded as absent.
func (e *Engine) Build(source string, records []*model.PacketRecord) (*model.Topology, error) {
	stats := model.Stats{Packets: len(records)}

	valid := make([]*model.PacketRecord, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			stats.Invalid++
			continue
		}
		if err := rec.Validate(); err != nil {
			stats.Invalid++
			log.Debug().Int("packet", i).Err(err).Msg("Skipping invalid record")
			continue
		}
		valid = append(valid, rec)
	}

	detection, err := DetectRouter(valid)
	if err != nil {
		return nil, err
	}
	stats.RouterCandidates = len(detection.Candidates)
	stats.RouterRounds = detection.Rounds
	log.Info().
		Str("router", detection.MAC).
		Int("candidates", stats.RouterCandidates).
		Int("rounds", stats.RouterRounds).
		Msg("Router detected")

	state := NewEngineState(detection.MAC)
	for _, rec := range valid {
		if !Qualifies(rec) {
			stats.Filtered++
			continue
		}
		if err := state.Apply(rec); err != nil {
			return nil, fmt.Errorf("packet %s -> %s: %w", rec.SrcIP, rec.DstIP, err)
		}
		stats.Accepted++
	}
	state.Stats = stats

	top := state.Snapshot(source)
	log.Info().
		Int("packets", stats.Packets).
		Int("accepted", stats.Accepted).
		Int("filtered", stats.Filtered).
		Int("invalid", stats.Invalid).
		Int("devices", len(top.Devices)).
		Int("subnetworks", len(top.Subnetworks)).
		Int("edges", len(top.Edges)).
		Msg("Topology built")
	return top, nil
}
