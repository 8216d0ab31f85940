package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

// timestamps are stored fixed-width so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LatestRunKey names the key-value entry holding the most recently saved run.
const LatestRunKey = "latest_run"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// a second pooled connection to ":memory:" would see a different, empty database
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			router INTEGER NOT NULL,
			stats TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS devices (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			identifier TEXT NOT NULL,
			kind TEXT NOT NULL,
			ipv4 TEXT,
			ipv6 TEXT,
			ports TEXT,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs (run_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS subnetworks (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			position INTEGER NOT NULL,
			prefix TEXT NOT NULL,
			members TEXT,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs (run_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS edges (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			device_a INTEGER NOT NULL,
			device_b INTEGER NOT NULL,
			packets INTEGER NOT NULL,
			packets_a_to_b INTEGER NOT NULL DEFAULT 0,
			packets_b_to_a INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, device_a, device_b),
			FOREIGN KEY (run_id) REFERENCES runs (run_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS relations (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			members TEXT NOT NULL,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs (run_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS connections (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			entries TEXT NOT NULL,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs (run_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS key_values (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveTopology writes the whole snapshot in a single transaction.
func (r *SQLiteRepository) SaveTopology(top *model.Topology) (string, error) {
	if top.RunID == "" {
		top.RunID = uuid.NewString()
	}
	if top.CreatedAt.IsZero() {
		top.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	stats, err := toJSON(top.Stats)
	if err != nil {
		return "", err
	}
	_, err = tx.Exec(`INSERT INTO runs (run_id, source, created_at, router, stats) VALUES (?, ?, ?, ?, ?);`,
		top.RunID, top.Source, top.CreatedAt.UTC().Format(timeLayout), top.Router, stats)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return "", fmt.Errorf("%w: %s", ErrRunExists, top.RunID)
		}
		return "", err
	}

	if err := insertDevices(tx, top); err != nil {
		return "", fmt.Errorf("failed to store devices: %w", err)
	}
	if err := insertSubnetworks(tx, top); err != nil {
		return "", fmt.Errorf("failed to store subnetworks: %w", err)
	}
	if err := insertEdges(tx, top); err != nil {
		return "", fmt.Errorf("failed to store edges: %w", err)
	}
	if err := insertRelations(tx, top); err != nil {
		return "", fmt.Errorf("failed to store relations: %w", err)
	}
	if err := insertConnections(tx, top); err != nil {
		return "", fmt.Errorf("failed to store connections: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO key_values (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, LatestRunKey, top.RunID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	log.Debug().Str("run", top.RunID).Int("devices", len(top.Devices)).Int("edges", len(top.Edges)).Msg("Topology stored")
	return top.RunID, nil
}

func insertDevices(tx *sql.Tx, top *model.Topology) error {
	stmt, err := tx.Prepare(`INSERT INTO devices (run_id, idx, identifier, kind, ipv4, ipv6, ports) VALUES (?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range top.Devices {
		ipv4, err := toJSON(d.IPv4)
		if err != nil {
			return err
		}
		ipv6, err := toJSON(d.IPv6)
		if err != nil {
			return err
		}
		ports, err := toJSON(d.Ports)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(top.RunID, d.Index, d.Identifier, string(d.Kind), ipv4, ipv6, ports); err != nil {
			return err
		}
	}
	return nil
}

func insertSubnetworks(tx *sql.Tx, top *model.Topology) error {
	stmt, err := tx.Prepare(`INSERT INTO subnetworks (run_id, idx, position, prefix, members) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, s := range top.Subnetworks {
		members, err := toJSON(s.Members)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(top.RunID, s.Index, pos, s.Prefix, members); err != nil {
			return err
		}
	}
	return nil
}

func insertEdges(tx *sql.Tx, top *model.Topology) error {
	stmt, err := tx.Prepare(`INSERT INTO edges (run_id, position, device_a, device_b, packets, packets_a_to_b, packets_b_to_a) VALUES (?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, e := range top.Edges {
		if _, err := stmt.Exec(top.RunID, pos, e.A, e.B, e.Packets, e.PacketsAB, e.PacketsBA); err != nil {
			return err
		}
	}
	return nil
}

func insertRelations(tx *sql.Tx, top *model.Topology) error {
	stmt, err := tx.Prepare(`INSERT INTO relations (run_id, idx, members) VALUES (?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for idx, set := range top.Relations {
		members, err := toJSON(set)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(top.RunID, idx, members); err != nil {
			return err
		}
	}
	return nil
}

func insertConnections(tx *sql.Tx, top *model.Topology) error {
	stmt, err := tx.Prepare(`INSERT INTO connections (run_id, idx, entries) VALUES (?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for idx, rows := range top.Connections {
		encoded, err := toJSON(rows)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(top.RunID, idx, encoded); err != nil {
			return err
		}
	}
	return nil
}

// GetTopology loads a stored snapshot. Unknown IDs yield ErrRunNotFound.
func (r *SQLiteRepository) GetTopology(runID string) (*model.Topology, error) {
	top := &model.Topology{
		RunID:       runID,
		Relations:   make(map[int]*model.OrderedSet[model.RelationMember]),
		Connections: make(map[int][]model.ConnectionRow),
	}

	var createdAt, stats string
	err := r.db.QueryRow(`SELECT source, created_at, router, COALESCE(stats, '{}') FROM runs WHERE run_id = ?;`, runID).
		Scan(&top.Source, &createdAt, &top.Router, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	if top.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(stats), &top.Stats); err != nil {
		return nil, fmt.Errorf("invalid stats for run %s: %w", runID, err)
	}

	if top.Devices, err = r.getDevices(runID); err != nil {
		return nil, err
	}
	if top.Subnetworks, err = r.getSubnetworks(runID); err != nil {
		return nil, err
	}
	if top.Edges, err = r.getEdges(runID); err != nil {
		return nil, err
	}
	if err := r.loadRelations(runID, top); err != nil {
		return nil, err
	}
	if err := r.loadConnections(runID, top); err != nil {
		return nil, err
	}
	return top, nil
}

func (r *SQLiteRepository) getDevices(runID string) ([]*model.DeviceMetadata, error) {
	rows, err := r.db.Query(`SELECT idx, identifier, kind, ipv4, ipv6, ports FROM devices WHERE run_id = ? ORDER BY idx;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*model.DeviceMetadata
	for rows.Next() {
		var idx int
		var identifier, kind, ipv4, ipv6, ports string
		if err := rows.Scan(&idx, &identifier, &kind, &ipv4, &ipv6, &ports); err != nil {
			return nil, err
		}
		d := model.NewDeviceMetadata(idx, identifier)
		d.Kind = model.DeviceKind(kind)
		if err := json.Unmarshal([]byte(ipv4), d.IPv4); err != nil {
			return nil, fmt.Errorf("device %d ipv4: %w", idx, err)
		}
		if err := json.Unmarshal([]byte(ipv6), d.IPv6); err != nil {
			return nil, fmt.Errorf("device %d ipv6: %w", idx, err)
		}
		if err := json.Unmarshal([]byte(ports), d.Ports); err != nil {
			return nil, fmt.Errorf("device %d ports: %w", idx, err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *SQLiteRepository) getSubnetworks(runID string) ([]*model.Subnetwork, error) {
	rows, err := r.db.Query(`SELECT idx, prefix, members FROM subnetworks WHERE run_id = ? ORDER BY position;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subnetworks []*model.Subnetwork
	for rows.Next() {
		var idx int
		var prefix, members string
		if err := rows.Scan(&idx, &prefix, &members); err != nil {
			return nil, err
		}
		s := model.NewSubnetwork(idx, prefix)
		if err := json.Unmarshal([]byte(members), s.Members); err != nil {
			return nil, fmt.Errorf("subnetwork %d members: %w", idx, err)
		}
		subnetworks = append(subnetworks, s)
	}
	return subnetworks, rows.Err()
}

func (r *SQLiteRepository) getEdges(runID string) ([]*model.Edge, error) {
	rows, err := r.db.Query(`SELECT device_a, device_b, packets, packets_a_to_b, packets_b_to_a FROM edges WHERE run_id = ? ORDER BY position;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*model.Edge
	for rows.Next() {
		e := &model.Edge{}
		if err := rows.Scan(&e.A, &e.B, &e.Packets, &e.PacketsAB, &e.PacketsBA); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (r *SQLiteRepository) loadRelations(runID string, top *model.Topology) error {
	rows, err := r.db.Query(`SELECT idx, members FROM relations WHERE run_id = ?;`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var members string
		if err := rows.Scan(&idx, &members); err != nil {
			return err
		}
		set := model.NewOrderedSet[model.RelationMember]()
		if err := json.Unmarshal([]byte(members), set); err != nil {
			return fmt.Errorf("relation %d: %w", idx, err)
		}
		top.Relations[idx] = set
	}
	return rows.Err()
}

func (r *SQLiteRepository) loadConnections(runID string, top *model.Topology) error {
	rows, err := r.db.Query(`SELECT idx, entries FROM connections WHERE run_id = ?;`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var encoded string
		if err := rows.Scan(&idx, &encoded); err != nil {
			return err
		}
		table := []model.ConnectionRow{}
		if err := json.Unmarshal([]byte(encoded), &table); err != nil {
			return fmt.Errorf("connections %d: %w", idx, err)
		}
		top.Connections[idx] = table
	}
	return rows.Err()
}

func (r *SQLiteRepository) ListRuns() ([]*model.RunSummary, error) {
	rows, err := r.db.Query(`SELECT r.run_id, r.source, r.created_at,
			COALESCE((SELECT d.identifier FROM devices d WHERE d.run_id = r.run_id AND d.idx = r.router), ''),
			(SELECT COUNT(*) FROM devices d WHERE d.run_id = r.run_id),
			(SELECT COUNT(*) FROM edges e WHERE e.run_id = r.run_id)
		FROM runs r
		ORDER BY r.created_at DESC, r.run_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.RunSummary
	for rows.Next() {
		s := &model.RunSummary{}
		var createdAt string
		if err := rows.Scan(&s.RunID, &s.Source, &createdAt, &s.Router, &s.Devices, &s.Edges); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at for run %s: %w", s.RunID, err)
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

var errEmptyKey = errors.New("key must not be empty")

func (r *SQLiteRepository) SetKeyValue(key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	_, err := r.db.Exec(`INSERT INTO key_values (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, key, value)
	return err
}

func (r *SQLiteRepository) GetKeyValue(key string) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyKey
	}
	var value string
	err := r.db.QueryRow(`SELECT value FROM key_values WHERE key = ?;`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *SQLiteRepository) DeleteKeyValue(key string) error {
	if key == "" {
		return errEmptyKey
	}
	_, err := r.db.Exec(`DELETE FROM key_values WHERE key = ?;`, key)
	return err
}

func (r *SQLiteRepository) GetAllKeyValues() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM key_values;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		kv[k] = v
	}
	return kv, rows.Err()
}

func (r *SQLiteRepository) Commit() error {
	// No-op for now (autocommit)
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
