package testutil

import (
	"github.com/stretchr/testify/mock"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// MockRecordSource is a mock implementation of parser.RecordSource
type MockRecordSource struct {
	mock.Mock
}

func (m *MockRecordSource) ReadRecords() ([]*model.PacketRecord, error) {
	args := m.Called()
	records, _ := args.Get(0).([]*model.PacketRecord)
	return records, args.Error(1)
}
