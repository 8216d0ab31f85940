package parser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/pcap-topology-go/internal/testutil"
	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

const recordFile = `{"paquets": [
  {"src": "00:11:22:33:44:55", "dst": "aa:bb:cc:dd:ee:ff", "ts": "2023-05-04 10:11:12.123456",
   "type": 2048, "ip_src": "192.168.1.10", "ip_dst": "93.184.216.34", "proto": 6, "port_src": 50000, "port_dst": 443},
  {"src": "00:11:22:33:44:55", "dst": "ff:ff:ff:ff:ff:ff", "ts": "2023-05-04 10:11:13",
   "type": 2054, "ip_src": null, "ip_dst": null, "port_src": null, "port_dst": null},
  {"src": "00:11:22:33:44:55", "dst": "aa:bb:cc:dd:ee:ff", "ts": "yesterday",
   "type": null, "ip_src": "fe80::1", "ip_dst": "ff02::1", "port_src": null, "port_dst": null}
]}`

func TestJSONRecordReader_Decode(t *testing.T) {
	handler := &recordingHandler{}
	reader := NewJSONRecordReader("capture.json", nil, handler)

	records, err := reader.Decode(strings.NewReader(recordFile))
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "00:11:22:33:44:55", first.SrcMAC)
	assert.Equal(t, model.EtherTypeIPv4, first.EtherType)
	assert.Equal(t, "93.184.216.34", first.DstIP)
	assert.Equal(t, 6, *first.Proto)
	assert.Equal(t, 443, *first.DstPort)
	assert.Equal(t, time.Date(2023, 5, 4, 10, 11, 12, 123456000, time.UTC), first.Timestamp)

	arp := records[1]
	assert.Equal(t, "arp", arp.EtherType)
	assert.Empty(t, arp.SrcIP)
	assert.Nil(t, arp.SrcPort)
	assert.Nil(t, arp.Proto)

	unknown := records[2]
	assert.Equal(t, helper.Unknown, unknown.EtherType)
	assert.Nil(t, unknown.EtherTypeCode)
	assert.True(t, unknown.Timestamp.IsZero())

	require.Len(t, handler.errs, 1)
	assert.Equal(t, 3, handler.errs[0].Packet)
	assert.True(t, handler.errs[0].Recoverable)
}

func TestJSONRecordReader_Malformed(t *testing.T) {
	_, err := NewJSONRecordReader("bad.json", nil, nil).Decode(strings.NewReader(`{"paquets": [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}

func TestWriteJSONRecords_ReadBack(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.UTC)
	in := []*model.PacketRecord{
		{
			Timestamp:     ts,
			SrcMAC:        "00:11:22:33:44:55",
			DstMAC:        "aa:bb:cc:dd:ee:ff",
			EtherTypeCode: model.IntPtr(34525),
			SrcIP:         "2001:db8::1",
			DstIP:         "2001:db8::2",
			Proto:         model.IntPtr(17),
			SrcPort:       model.IntPtr(546),
			DstPort:       model.IntPtr(547),
		},
		{SrcMAC: "00:11:22:33:44:55", DstMAC: "ff:ff:ff:ff:ff:ff"},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteJSONRecords(buf, in))
	assert.Contains(t, buf.String(), `"ip_src":null`)
	assert.Contains(t, buf.String(), `"ts":"2024-01-02 03:04:05.600000"`)

	out, err := NewJSONRecordReader("mem", nil, nil).Decode(buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ts, out[0].Timestamp)
	assert.Equal(t, model.EtherTypeIPv6, out[0].EtherType)
	assert.Equal(t, "2001:db8::2", out[0].DstIP)
	assert.Equal(t, 547, *out[0].DstPort)
	assert.Empty(t, out[1].SrcIP)
	assert.Nil(t, out[1].EtherTypeCode)
}

func TestConvertCapture(t *testing.T) {
	pcapPath := testutil.WritePcap(t, []testutil.Frame{
		{SrcMAC: clientMAC, DstMAC: routerMAC, SrcIP: "192.168.1.10", DstIP: "93.184.216.34", SrcPort: 50000, DstPort: 443},
		{SrcMAC: routerMAC, DstMAC: clientMAC, SrcIP: "93.184.216.34", DstIP: "192.168.1.10", SrcPort: 443, DstPort: 50000},
	})
	out := filepath.Join(t.TempDir(), "records.json")

	n, err := ConvertCapture(NewRecordSource(pcapPath, nil, nil), out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"paquets"`)

	records, err := NewRecordSource(out, nil, nil).ReadRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, routerMAC, records[1].SrcMAC)
	assert.Equal(t, 443, *records[1].SrcPort)
	assert.Equal(t, model.EtherTypeIPv4, records[1].EtherType)
}

func TestConvertCapture_SourceError(t *testing.T) {
	source := &testutil.MockRecordSource{}
	source.On("ReadRecords").Return(nil, assert.AnError)

	_, err := ConvertCapture(source, filepath.Join(t.TempDir(), "never.json"))
	require.ErrorIs(t, err, assert.AnError)
	source.AssertExpectations(t)
}
