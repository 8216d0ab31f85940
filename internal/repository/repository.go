package repository

import (
	"errors"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExists   = errors.New("run already stored")
)

// Repository stores topology snapshots, one per run.
type Repository interface {
	// SaveTopology stores top and returns its run ID, generating one when top.RunID is empty.
	SaveTopology(top *model.Topology) (string, error)
	GetTopology(runID string) (*model.Topology, error)
	// ListRuns returns stored runs, newest first
	ListRuns() ([]*model.RunSummary, error)

	// Key-value operations
	SetKeyValue(key, value string) error
	GetKeyValue(key string) (string, bool, error)
	DeleteKeyValue(key string) error
	GetAllKeyValues() (map[string]string, error)

	// Transaction operations
	Commit() error
	Close() error
}
