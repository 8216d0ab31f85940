package testutil

import (
	"fmt"
	"sort"

	"github.com/InfraSecConsult/pcap-topology-go/internal/repository"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// MockRepository keeps snapshots in memory.
type MockRepository struct {
	repository.Repository
	Topologies   map[string]*model.Topology
	KeyValues    map[string]string
	SaveErr      error
	CommitCalled bool
	CloseCalled  bool
	nextID       int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Topologies: make(map[string]*model.Topology),
		KeyValues:  make(map[string]string),
	}
}

func (m *MockRepository) SaveTopology(top *model.Topology) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	if top.RunID == "" {
		m.nextID++
		top.RunID = fmt.Sprintf("run-%d", m.nextID)
	}
	if _, exists := m.Topologies[top.RunID]; exists {
		return "", fmt.Errorf("%w: %s", repository.ErrRunExists, top.RunID)
	}
	m.Topologies[top.RunID] = top
	m.KeyValues[repository.LatestRunKey] = top.RunID
	return top.RunID, nil
}

func (m *MockRepository) GetTopology(runID string) (*model.Topology, error) {
	top, ok := m.Topologies[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrRunNotFound, runID)
	}
	return top, nil
}

func (m *MockRepository) ListRuns() ([]*model.RunSummary, error) {
	runs := make([]*model.RunSummary, 0, len(m.Topologies))
	for _, top := range m.Topologies {
		s := &model.RunSummary{
			RunID:     top.RunID,
			Source:    top.Source,
			CreatedAt: top.CreatedAt,
			Devices:   len(top.Devices),
			Edges:     len(top.Edges),
		}
		if d := top.Device(top.Router); d != nil {
			s.Router = d.Identifier
		}
		runs = append(runs, s)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (m *MockRepository) SetKeyValue(key, value string) error {
	m.KeyValues[key] = value
	return nil
}

func (m *MockRepository) GetKeyValue(key string) (string, bool, error) {
	v, ok := m.KeyValues[key]
	return v, ok, nil
}

func (m *MockRepository) DeleteKeyValue(key string) error {
	delete(m.KeyValues, key)
	return nil
}

func (m *MockRepository) GetAllKeyValues() (map[string]string, error) {
	out := make(map[string]string, len(m.KeyValues))
	for k, v := range m.KeyValues {
		out[k] = v
	}
	return out, nil
}

func (m *MockRepository) Commit() error {
	m.CommitCalled = true
	return nil
}

func (m *MockRepository) Close() error {
	m.CloseCalled = true
	return nil
}
