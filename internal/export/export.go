// Package export renders topology snapshots for the presentation layer.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/InfraSecConsult/pcap-topology-go/lib/helper"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatTable, FormatJSON, FormatYAML}

// UnsupportedFormatError is returned for a format outside Formats.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q (expected one of %s)", e.Format, strings.Join(Formats, ", "))
}

// ValidateFormat checks a format name before any work is done.
func ValidateFormat(format string) error {
	for _, f := range Formats {
		if f == format {
			return nil
		}
	}
	return &UnsupportedFormatError{Format: format}
}

type deviceView struct {
	Index      int              `json:"index" yaml:"index"`
	Identifier string           `json:"identifier" yaml:"identifier"`
	Kind       model.DeviceKind `json:"kind" yaml:"kind"`
	IPv4       []model.Address  `json:"ipv4" yaml:"ipv4"`
	IPv6       []model.Address  `json:"ipv6" yaml:"ipv6"`
	Ports      []model.Port     `json:"ports" yaml:"ports"`
	Services   []string         `json:"services" yaml:"services"`
	Annotation string           `json:"annotation" yaml:"annotation"`
}

type subnetworkView struct {
	Index   int    `json:"index" yaml:"index"`
	Prefix  string `json:"prefix" yaml:"prefix"`
	Members []int  `json:"members" yaml:"members"`
}

type document struct {
	RunID       string                         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Source      string                         `json:"source" yaml:"source"`
	CreatedAt   time.Time                      `json:"created_at" yaml:"created_at"`
	Router      int                            `json:"router" yaml:"router"`
	Devices     []deviceView                   `json:"devices" yaml:"devices"`
	Subnetworks []subnetworkView               `json:"subnetworks" yaml:"subnetworks"`
	Edges       []*model.Edge                  `json:"edges" yaml:"edges"`
	Relations   map[int][]model.RelationMember `json:"relations" yaml:"relations"`
	Connections map[int][]model.ConnectionRow  `json:"connections" yaml:"connections"`
	Stats       model.Stats                    `json:"stats" yaml:"stats"`
}

// Services names the well-known ports of a device, e.g. "443/https".
func Services(d *model.DeviceMetadata, tables *helper.ReferenceTables) []string {
	services := make([]string, 0, d.Ports.Size())
	for _, p := range d.Ports.List() {
		n, ok := p.Number()
		if !ok {
			continue
		}
		services = append(services, strconv.Itoa(n)+"/"+tables.ServiceName(n))
	}
	return services
}

func newDocument(top *model.Topology, tables *helper.ReferenceTables) *document {
	doc := &document{
		RunID:       top.RunID,
		Source:      top.Source,
		CreatedAt:   top.CreatedAt,
		Router:      top.Router,
		Devices:     make([]deviceView, 0, len(top.Devices)),
		Subnetworks: make([]subnetworkView, 0, len(top.Subnetworks)),
		Edges:       top.Edges,
		Relations:   make(map[int][]model.RelationMember, len(top.Relations)),
		Connections: top.Connections,
		Stats:       top.Stats,
	}
	if doc.Edges == nil {
		doc.Edges = []*model.Edge{}
	}
	for _, d := range top.Devices {
		doc.Devices = append(doc.Devices, deviceView{
			Index:      d.Index,
			Identifier: d.Identifier,
			Kind:       d.Kind,
			IPv4:       d.IPv4.List(),
			IPv6:       d.IPv6.List(),
			Ports:      d.Ports.List(),
			Services:   Services(d, tables),
			Annotation: d.Annotation(),
		})
	}
	for _, s := range top.Subnetworks {
		doc.Subnetworks = append(doc.Subnetworks, subnetworkView{Index: s.Index, Prefix: s.Prefix, Members: s.Members.List()})
	}
	for idx, set := range top.Relations {
		doc.Relations[idx] = set.List()
	}
	return doc
}

// Render writes top to w in the requested format.
func Render(w io.Writer, top *model.Topology, format string, tables *helper.ReferenceTables) error {
	if tables == nil {
		tables = helper.DefaultReferenceTables()
	}
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(newDocument(top, tables))
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(newDocument(top, tables)); err != nil {
			return err
		}
		return encoder.Close()
	case FormatTable:
		return formatTopologyTable(w, top, tables)
	default:
		return &UnsupportedFormatError{Format: format}
	}
}

func joinAddresses(addrs []model.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == "" {
			parts = append(parts, "-")
			continue
		}
		parts = append(parts, string(a))
	}
	return strings.Join(parts, ", ")
}

func joinPorts(ports []model.Port) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, string(p))
	}
	return strings.Join(parts, ", ")
}

func formatTopologyTable(out io.Writer, top *model.Topology, tables *helper.ReferenceTables) error {
	router := ""
	if d := top.Device(top.Router); d != nil {
		router = d.Identifier
	}
	if top.RunID != "" {
		fmt.Fprintf(out, "Run:     %s\n", top.RunID)
	}
	fmt.Fprintf(out, "Source:  %s\n", top.Source)
	fmt.Fprintf(out, "Router:  %s (index %d)\n", router, top.Router)
	fmt.Fprintf(out, "Packets: %d total, %d accepted, %d filtered, %d invalid\n\n",
		top.Stats.Packets, top.Stats.Accepted, top.Stats.Filtered, top.Stats.Invalid)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "INDEX\tKIND\tIDENTIFIER\tIPV4\tIPV6\tPORTS\tSERVICES\n")
	for _, d := range top.Devices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Index, d.Kind, d.Identifier, joinAddresses(d.IPv4.List()), joinAddresses(d.IPv6.List()),
			joinPorts(d.Ports.List()), strings.Join(Services(d, tables), ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SUBNETWORK\tPREFIX\tMEMBERS\n")
	for _, s := range top.Subnetworks {
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Index, s.Prefix, s.Members.ToString())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "EDGE\tFROM\tTO\tPACKETS\tA->B\tB->A\n")
	for _, e := range top.Edges {
		fmt.Fprintf(w, "%d-%d\t%s\t%s\t%d\t%d\t%d\n",
			e.A, e.B, identifier(top, e.A), identifier(top, e.B), e.Packets, e.PacketsAB, e.PacketsBA)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DEVICE\tPORT SRC\tPORT DST\tDEVICE DST\n")
	for _, idx := range sortedKeys(top.Connections) {
		for _, row := range top.Connections[idx] {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", identifier(top, idx), orDash(string(row.PortSrc)), orDash(string(row.PortDst)), row.DeviceDst)
		}
	}
	return w.Flush()
}

func identifier(top *model.Topology, idx int) string {
	if d := top.Device(idx); d != nil {
		return d.Identifier
	}
	return strconv.Itoa(idx)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// RenderRuns writes a run listing in the requested format.
func RenderRuns(w io.Writer, runs []*model.RunSummary, format string) error {
	if runs == nil {
		runs = []*model.RunSummary{}
	}
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(runs); err != nil {
			return err
		}
		return encoder.Close()
	case FormatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "RUN ID\tCREATED\tSOURCE\tROUTER\tDEVICES\tEDGES\n")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
				r.RunID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Source, r.Router, r.Devices, r.Edges)
		}
		return tw.Flush()
	default:
		return &UnsupportedFormatError{Format: format}
	}
}
