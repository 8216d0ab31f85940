package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// Timestamp layout of the "ts" field.
const recordTimeLayout = "2006-01-02 15:04:05.000000"

var acceptedTimeLayouts = []string{
	recordTimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// jsonPacket is one entry of a record file. Absent values are JSON null.
type jsonPacket struct {
	Src     string  `json:"src"`
	Dst     string  `json:"dst"`
	Ts      string  `json:"ts"`
	Type    *int    `json:"type"`
	IPSrc   *string `json:"ip_src"`
	IPDst   *string `json:"ip_dst"`
	Proto   *int    `json:"proto"`
	PortSrc *int    `json:"port_src"`
	PortDst *int    `json:"port_dst"`
}

type jsonCapture struct {
	Paquets []jsonPacket `json:"paquets"`
}

// JSONRecordReader reads a record file produced by WriteJSONRecords.
type JSONRecordReader struct {
	Path         string
	tables       *helper.ReferenceTables
	errorHandler ErrorHandler
}

func NewJSONRecordReader(path string, tables *helper.ReferenceTables, handler ErrorHandler) *JSONRecordReader {
	if tables == nil {
		tables = helper.DefaultReferenceTables()
	}
	if handler == nil {
		handler = NewNoOpErrorHandler()
	}
	return &JSONRecordReader{Path: path, tables: tables, errorHandler: handler}
}

func (r *JSONRecordReader) ReadRecords() ([]*model.PacketRecord, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()
	return r.Decode(f)
}

// Decode reads records from any reader; Path is only used in error reports.
func (r *JSONRecordReader) Decode(in io.Reader) ([]*model.PacketRecord, error) {
	var capture jsonCapture
	if err := json.NewDecoder(in).Decode(&capture); err != nil {
		return nil, fmt.Errorf("failed to decode record file %s: %w", r.Path, err)
	}

	records := make([]*model.PacketRecord, 0, len(capture.Paquets))
	for i, p := range capture.Paquets {
		rec := &model.PacketRecord{
			SrcMAC:        p.Src,
			DstMAC:        p.Dst,
			EtherTypeCode: p.Type,
			EtherType:     r.tables.EtherTypeName(p.Type),
			Proto:         p.Proto,
			SrcPort:       p.PortSrc,
			DstPort:       p.PortDst,
		}
		if p.IPSrc != nil {
			rec.SrcIP = *p.IPSrc
		}
		if p.IPDst != nil {
			rec.DstIP = *p.IPDst
		}
		if p.Ts != "" {
			ts, err := parseRecordTime(p.Ts)
			if err != nil {
				if handlerErr := r.errorHandler.HandleRecordError(&RecordError{
					Source:      r.Path,
					Packet:      i + 1,
					Err:         err,
					Recoverable: true,
				}); handlerErr != nil {
					return nil, handlerErr
				}
			}
			rec.Timestamp = ts
		}
		records = append(records, rec)
	}

	log.Debug().Str("file", r.Path).Int("records", len(records)).Msg("Record file read")
	return records, nil
}

func parseRecordTime(value string) (time.Time, error) {
	for _, layout := range acceptedTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// WriteJSONRecords writes records in the record file format.
func WriteJSONRecords(out io.Writer, records []*model.PacketRecord) error {
	capture := jsonCapture{Paquets: make([]jsonPacket, 0, len(records))}
	for _, rec := range records {
		p := jsonPacket{
			Src:     rec.SrcMAC,
			Dst:     rec.DstMAC,
			Type:    rec.EtherTypeCode,
			Proto:   rec.Proto,
			PortSrc: rec.SrcPort,
			PortDst: rec.DstPort,
		}
		if !rec.Timestamp.IsZero() {
			p.Ts = rec.Timestamp.UTC().Format(recordTimeLayout)
		}
		if rec.SrcIP != "" {
			p.IPSrc = &rec.SrcIP
		}
		if rec.DstIP != "" {
			p.IPDst = &rec.DstIP
		}
		capture.Paquets = append(capture.Paquets, p)
	}

	encoder := json.NewEncoder(out)
	if err := encoder.Encode(capture); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}

// ConvertCapture reads a capture with source and writes it as a record file to path.
func ConvertCapture(source RecordSource, path string) (int, error) {
	records, err := source.ReadRecords()
	if err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create record file: %w", err)
	}
	if err := WriteJSONRecords(f, records); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close record file: %w", err)
	}
	return len(records), nil
}
