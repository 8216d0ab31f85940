package topology

import "github.com/InfraSecConsult/pcap-topology-go/lib/model"

type connectionColumns struct {
	portSrc   map[model.Port]struct{}
	portDst   map[model.Port]struct{}
	deviceDst map[string]struct{}
}

// ConnectionTable lists, per sending device, the ports it used and who it reached.
// A row is only added when its source port is known and none of its three values
// already appear in their column for that device.
type ConnectionTable struct {
	rows    map[int][]model.ConnectionRow
	columns map[int]*connectionColumns
}

func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{
		rows:    make(map[int][]model.ConnectionRow),
		columns: make(map[int]*connectionColumns),
	}
}

// Update records one packet from src. The device gets an (empty) table even when
// no row qualifies.
func (t *ConnectionTable) Update(src int, portSrc model.Port, deviceDst string, portDst model.Port) bool {
	cols, ok := t.columns[src]
	if !ok {
		cols = &connectionColumns{
			portSrc:   make(map[model.Port]struct{}),
			portDst:   make(map[model.Port]struct{}),
			deviceDst: make(map[string]struct{}),
		}
		t.columns[src] = cols
		t.rows[src] = []model.ConnectionRow{}
	}
	if portSrc == "" {
		return false
	}
	if _, seen := cols.portSrc[portSrc]; seen {
		return false
	}
	if _, seen := cols.portDst[portDst]; seen {
		return false
	}
	if _, seen := cols.deviceDst[deviceDst]; seen {
		return false
	}
	cols.portSrc[portSrc] = struct{}{}
	cols.portDst[portDst] = struct{}{}
	cols.deviceDst[deviceDst] = struct{}{}
	t.rows[src] = append(t.rows[src], model.ConnectionRow{PortSrc: portSrc, PortDst: portDst, DeviceDst: deviceDst})
	return true
}

// Rows returns the table of src.
func (t *ConnectionTable) Rows(src int) []model.ConnectionRow {
	return t.rows[src]
}

// All returns a copy of every table.
func (t *ConnectionTable) All() map[int][]model.ConnectionRow {
	out := make(map[int][]model.ConnectionRow, len(t.rows))
	for idx, rows := range t.rows {
		out[idx] = append([]model.ConnectionRow{}, rows...)
	}
	return out
}
