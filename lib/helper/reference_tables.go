package helper

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Unknown is returned for any code a reference table does not know.
const Unknown = "unknown"

const (
	EtherTypesFile   = "ethertypes.json"
	IPProtocolsFile  = "ip-protocol-numbers.json"
	ServicePortsFile = "ports.json"
)

//go:embed numbers/*.json
var embeddedNumbers embed.FS

// ReferenceTables maps raw protocol numbers to readable names. Read-only after load.
type ReferenceTables struct {
	etherTypes map[string]string
	protocols  map[string]string
	ports      map[string]string
}

// DefaultReferenceTables returns the tables compiled into the binary.
func DefaultReferenceTables() *ReferenceTables {
	rt, err := LoadReferenceTables("")
	if err != nil {
		// embedded files are part of the build; failing here is a packaging bug
		panic(err)
	}
	return rt
}

// LoadReferenceTables reads the three tables from dir. Files missing from dir, or
// an empty dir, fall back to the embedded copy.
func LoadReferenceTables(dir string) (*ReferenceTables, error) {
	rt := &ReferenceTables{}
	targets := []struct {
		name string
		dst  *map[string]string
	}{
		{EtherTypesFile, &rt.etherTypes},
		{IPProtocolsFile, &rt.protocols},
		{ServicePortsFile, &rt.ports},
	}

	for _, target := range targets {
		data, err := readTable(dir, target.name)
		if err != nil {
			return nil, err
		}
		table := make(map[string]string)
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse reference table %s: %w", target.name, err)
		}
		*target.dst = table
	}
	return rt, nil
}

func readTable(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read reference table %s: %w", name, err)
		}
		log.Debug().Str("dir", dir).Str("table", name).Msg("Reference table not found, using embedded copy")
	}
	return embeddedNumbers.ReadFile("numbers/" + name)
}

// EtherTypeName resolves a raw ethertype; nil yields Unknown.
func (rt *ReferenceTables) EtherTypeName(code *int) string {
	if code == nil {
		return Unknown
	}
	return lookup(rt.etherTypes, *code)
}

func (rt *ReferenceTables) ProtocolName(proto int) string {
	return lookup(rt.protocols, proto)
}

func (rt *ReferenceTables) ServiceName(port int) string {
	return lookup(rt.ports, port)
}

func lookup(table map[string]string, code int) string {
	if name, ok := table[strconv.Itoa(code)]; ok && name != "" {
		return name
	}
	return Unknown
}
