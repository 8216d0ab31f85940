package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/pcap-topology-go/internal/parser"
	"github.com/InfraSecConsult/pcap-topology-go/internal/repository"
	"github.com/InfraSecConsult/pcap-topology-go/internal/testutil"
	"github.com/InfraSecConsult/pcap-topology-go/internal/topology"
	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

const (
	routerMAC = "aa:aa:aa:aa:aa:01"
	hostMAC   = "00:00:00:00:00:0a"
	serverMAC = "00:00:00:00:00:0b"
)

func record(srcMAC, srcIP string, srcPort int, dstMAC, dstIP string, dstPort int) *model.PacketRecord {
	return &model.PacketRecord{
		SrcMAC:        srcMAC,
		DstMAC:        dstMAC,
		EtherTypeCode: model.IntPtr(2048),
		EtherType:     model.EtherTypeIPv4,
		SrcIP:         srcIP,
		DstIP:         dstIP,
		Proto:         model.IntPtr(6),
		SrcPort:       model.IntPtr(srcPort),
		DstPort:       model.IntPtr(dstPort),
	}
}

func homeRecords() []*model.PacketRecord {
	return []*model.PacketRecord{
		record(hostMAC, "192.168.1.10", 50000, routerMAC, "93.184.216.34", 443),
		record(routerMAC, "93.184.216.34", 443, hostMAC, "192.168.1.10", 50000),
		record(serverMAC, "192.168.1.20", 80, hostMAC, "192.168.1.10", 50001),
		record(routerMAC, "142.250.1.1", 80, hostMAC, "192.168.1.10", 50002),
	}
}

func homeFrames() []testutil.Frame {
	return []testutil.Frame{
		{SrcMAC: hostMAC, DstMAC: routerMAC, SrcIP: "192.168.1.10", DstIP: "93.184.216.34", SrcPort: 50000, DstPort: 443},
		{SrcMAC: routerMAC, DstMAC: hostMAC, SrcIP: "93.184.216.34", DstIP: "192.168.1.10", SrcPort: 443, DstPort: 50000},
		{SrcMAC: serverMAC, DstMAC: hostMAC, SrcIP: "192.168.1.20", DstIP: "192.168.1.10", SrcPort: 80, DstPort: 50001},
		{SrcMAC: routerMAC, DstMAC: hostMAC, SrcIP: "142.250.1.1", DstIP: "192.168.1.10", SrcPort: 80, DstPort: 50002},
	}
}

// isolate runs the command from an empty directory so no config file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
	t.Setenv("HOME", dir)
	return dir
}

func execute(t *testing.T, provider *DependencyProvider, args ...string) (string, error) {
	t.Helper()
	cmd, logs := newRootCmd(provider)
	defer logs.Close()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildCommand_StoresAndRenders(t *testing.T) {
	isolate(t)
	source := &testutil.MockRecordSource{}
	source.On("ReadRecords").Return(homeRecords(), nil)
	repo := testutil.NewMockRepository()

	out, err := execute(t, &DependencyProvider{Source: source, Repository: repo}, "build", "home.pcap", "--format", "json")
	require.NoError(t, err)
	source.AssertExpectations(t)

	var doc struct {
		RunID   string `json:"run_id"`
		Devices []struct {
			Identifier string `json:"identifier"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	require.Len(t, doc.Devices, 7)
	assert.Equal(t, routerMAC, doc.Devices[0].Identifier)

	assert.Contains(t, repo.Topologies, "run-1")
	assert.Equal(t, "run-1", repo.KeyValues[repository.LatestRunKey])
	assert.Contains(t, repo.KeyValues, toolVersionKey)
	assert.True(t, repo.CommitCalled)
	assert.True(t, repo.CloseCalled)
}

func TestBuildCommand_NoStoreWritesOutFile(t *testing.T) {
	dir := isolate(t)
	source := &testutil.MockRecordSource{}
	source.On("ReadRecords").Return(homeRecords(), nil)
	repo := testutil.NewMockRepository()
	outPath := filepath.Join(dir, "topology.yaml")

	out, err := execute(t, &DependencyProvider{Source: source, Repository: repo},
		"build", "home.pcap", "--no-store", "--format", "yaml", "--out", outPath)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, repo.Topologies)
	assert.False(t, repo.CommitCalled)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "source: home.pcap")
}

func TestBuildCommand_Failures(t *testing.T) {
	isolate(t)

	t.Run("router not found", func(t *testing.T) {
		source := &testutil.MockRecordSource{}
		source.On("ReadRecords").Return([]*model.PacketRecord{
			record(hostMAC, "192.168.1.10", 50000, serverMAC, "192.168.1.20", 22),
		}, nil)
		repo := testutil.NewMockRepository()

		_, err := execute(t, &DependencyProvider{Source: source, Repository: repo}, "build", "ssh.pcap")
		require.Error(t, err)
		assert.True(t, errors.Is(err, topology.ErrRouterNotFound))
		assert.Equal(t, exitRouterNotFound, exitCode(err))
		assert.Empty(t, repo.Topologies)
	})

	t.Run("unclassifiable router address", func(t *testing.T) {
		source := &testutil.MockRecordSource{}
		source.On("ReadRecords").Return([]*model.PacketRecord{
			record(routerMAC, "93.184.216.34", 443, hostMAC, "192.168.1.10", 50000),
			record(routerMAC, "142.250.1.1", 443, hostMAC, "192.168.1.10", 50001),
			record(routerMAC, "240.0.0.1", 443, hostMAC, "192.168.1.10", 50002),
		}, nil)

		_, err := execute(t, &DependencyProvider{Source: source, Repository: testutil.NewMockRepository()}, "build", "bad.pcap")
		require.Error(t, err)
		assert.True(t, errors.Is(err, topology.ErrClassification))
		assert.Equal(t, exitClassification, exitCode(err))
	})

	t.Run("source error", func(t *testing.T) {
		source := &testutil.MockRecordSource{}
		source.On("ReadRecords").Return(nil, errors.New("read failed"))

		_, err := execute(t, &DependencyProvider{Source: source, Repository: testutil.NewMockRepository()}, "build", "x.pcap")
		assert.ErrorContains(t, err, "read failed")
		assert.Equal(t, exitFailure, exitCode(err))
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := execute(t, &DependencyProvider{}, "build", "x.pcap", "--format", "csv")
		assert.ErrorContains(t, err, "unsupported output format")
	})
}

func TestRunsAndShowCommands(t *testing.T) {
	isolate(t)
	repo := testutil.NewMockRepository()
	source := &testutil.MockRecordSource{}
	source.On("ReadRecords").Return(homeRecords(), nil)
	provider := &DependencyProvider{Source: source, Repository: repo}

	_, err := execute(t, provider, "show", "latest")
	assert.True(t, errors.Is(err, repository.ErrRunNotFound))

	_, err = execute(t, provider, "build", "home.pcap")
	require.NoError(t, err)

	out, err := execute(t, provider, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, routerMAC)

	out, err = execute(t, provider, "show", "latest", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Run:     run-1")

	_, err = execute(t, provider, "show", "nope")
	assert.True(t, errors.Is(err, repository.ErrRunNotFound))
}

func TestEndToEnd_PcapToSQLite(t *testing.T) {
	dir := isolate(t)
	capture := testutil.WritePcap(t, homeFrames())
	dbPath := filepath.Join(dir, "runs.sqlite")

	out, err := execute(t, &DependencyProvider{}, "build", capture, "--db-path", dbPath, "--format", "json")
	require.NoError(t, err)
	var built model.Topology
	require.NoError(t, json.Unmarshal([]byte(out), &built))
	require.NotEmpty(t, built.RunID)

	repo, err := repository.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	stored, err := repo.GetTopology(built.RunID)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	assert.Equal(t, capture, stored.Source)
	require.Len(t, stored.Devices, 7)
	assert.Equal(t, model.KindRouter, stored.Devices[0].Kind)
	assert.Equal(t, model.KindWANHost, stored.Devices[2].Kind)
	assert.Equal(t, "142.250", stored.Devices[6].Identifier)
	assert.NotNil(t, stored.Edge(0, 1))
}

func TestConvertCommand(t *testing.T) {
	dir := isolate(t)
	capture := testutil.WritePcap(t, homeFrames())
	outPath := filepath.Join(dir, "records.json")

	out, err := execute(t, &DependencyProvider{}, "convert", capture, outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 4 records")

	records, err := parser.NewJSONRecordReader(outPath, nil, nil).ReadRecords()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "93.184.216.34", records[1].SrcIP)
	assert.Equal(t, model.EtherTypeIPv4, records[1].EtherType)

	// the record file builds the same topology as the capture
	jsonOut, err := execute(t, &DependencyProvider{}, "build", outPath, "--no-store", "--format", "json")
	require.NoError(t, err)
	var top model.Topology
	require.NoError(t, json.Unmarshal([]byte(jsonOut), &top))
	assert.Len(t, top.Devices, 7)
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, &DependencyProvider{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "topology ")
}

func TestLogFileClosedAfterFailedBuild(t *testing.T) {
	dir := isolate(t)
	logPath := filepath.Join(dir, "topology.log")
	source := &testutil.MockRecordSource{}
	source.On("ReadRecords").Return([]*model.PacketRecord{
		record(routerMAC, "93.184.216.34", 443, hostMAC, "192.168.1.10", 50000),
		record(routerMAC, "240.0.0.1", 443, hostMAC, "192.168.1.10", 50001),
	}, nil)

	cmd, logs := newRootCmd(&DependencyProvider{Source: source, Repository: testutil.NewMockRepository()})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"build", "bad.pcap", "--log-file", logPath})
	err := cmd.Execute()
	require.True(t, errors.Is(err, topology.ErrClassification))

	s, ok := logs.(*settings)
	require.True(t, ok)
	require.NotNil(t, s.logCloser)
	require.NoError(t, logs.Close())
	assert.Nil(t, s.logCloser)
	assert.NoError(t, logs.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Router detected")
}

func TestRenderToFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("writes and closes", func(t *testing.T) {
		path := filepath.Join(dir, "out.txt")
		require.NoError(t, renderToFile(path, func(w io.Writer) error {
			_, err := io.WriteString(w, "topology")
			return err
		}))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "topology", string(data))
	})

	t.Run("render error is returned", func(t *testing.T) {
		err := renderToFile(filepath.Join(dir, "broken.txt"), func(io.Writer) error {
			return errors.New("encoder failed")
		})
		assert.ErrorContains(t, err, "encoder failed")
	})

	t.Run("missing directory", func(t *testing.T) {
		err := renderToFile(filepath.Join(dir, "nope", "out.txt"), func(io.Writer) error { return nil })
		assert.ErrorContains(t, err, "failed to create output file")
	})

	t.Run("device full", func(t *testing.T) {
		if _, err := os.Stat("/dev/full"); err != nil {
			t.Skip("/dev/full not available")
		}
		err := renderToFile("/dev/full", func(w io.Writer) error {
			_, err := io.WriteString(w, "topology")
			return err
		})
		assert.Error(t, err)
	})
}
