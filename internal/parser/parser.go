package parser

import (
	"path/filepath"
	"strings"

	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// RecordSource produces the packet record stream for one capture.
type RecordSource interface {
	ReadRecords() ([]*model.PacketRecord, error)
}

// NewRecordSource picks the reader for path: JSON record files by extension,
// everything else is opened as a pcap capture.
func NewRecordSource(path string, tables *helper.ReferenceTables, handler ErrorHandler) RecordSource {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONRecordReader(path, tables, handler)
	}
	return NewGopacketParser(path, tables, handler)
}
