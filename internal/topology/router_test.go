package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/pcap-topology-go/lib/model"
)

func TestDetectRouter_SingleCandidate(t *testing.T) {
	records := []*model.PacketRecord{
		packet(hostMAC, hostIP, 50000, serverMAC, serverIP, 80),
		packet(serverMAC, serverIP, 80, hostMAC, hostIP, 50000),
		packet(serverMAC, serverIP, 80, hostMAC, "192.168.1.11", 50001),
	}
	d, err := DetectRouter(records)
	require.NoError(t, err)
	assert.Equal(t, serverMAC, d.MAC)
	assert.Equal(t, []string{serverMAC}, d.Candidates)
	assert.Equal(t, 0, d.Rounds)
}

func TestDetectRouter_DivergentCandidateWins(t *testing.T) {
	d, err := DetectRouter(homeNetwork())
	require.NoError(t, err)
	assert.Equal(t, routerMAC, d.MAC)
	assert.Equal(t, []string{routerMAC, serverMAC}, d.Candidates)
	assert.Equal(t, 1, d.Rounds)
}

func TestDetectRouter_IgnoresUnsetAddresses(t *testing.T) {
	records := []*model.PacketRecord{
		packet(serverMAC, serverIP, 443, hostMAC, hostIP, 50000),
		packet(serverMAC, "0.0.0.0", 443, hostMAC, hostIP, 50000),
		packet(serverMAC, "", 443, hostMAC, hostIP, 50000),
		packet("aa:aa:aa:aa:aa:02", "192.168.1.30", 80, hostMAC, hostIP, 50001),
	}
	_, err := DetectRouter(records)
	require.Error(t, err)

	var rnf *RouterNotFoundError
	require.True(t, errors.As(err, &rnf))
	assert.Equal(t, []string{serverMAC, "aa:aa:aa:aa:aa:02"}, rnf.Candidates)
	assert.Equal(t, 1, rnf.Iterations)
	assert.Contains(t, rnf.Error(), "2 candidates")
}

func TestDetectRouter_NoWebTraffic(t *testing.T) {
	_, err := DetectRouter([]*model.PacketRecord{
		packet(hostMAC, hostIP, 5000, serverMAC, serverIP, 22),
		packet(hostMAC, hostIP, -1, serverMAC, serverIP, -1),
	})
	assert.ErrorIs(t, err, ErrRouterNotFound)
}

func TestDetectRouter_OnlyFirstDivergentKept(t *testing.T) {
	other := "aa:aa:aa:aa:aa:02"
	records := []*model.PacketRecord{
		packet(routerMAC, "93.184.216.34", 443, hostMAC, hostIP, 50000),
		packet(other, "10.0.0.1", 443, hostMAC, hostIP, 50000),
		packet(routerMAC, "142.250.1.1", 443, hostMAC, hostIP, 50000),
		packet(other, "172.16.0.1", 443, hostMAC, hostIP, 50000),
	}
	d, err := DetectRouter(records)
	require.NoError(t, err)
	assert.Equal(t, routerMAC, d.MAC)
}

// The divergence check compares only the leading three characters of the address
// text, so 1.92.0.0 and 1.9.20.0 look alike even though they are different hosts.
// Neither candidate is singled out and detection fails.
func TestDetectRouter_LeadingCharactersOnly(t *testing.T) {
	assert.Equal(t, "1.9", leading("1.92.0.0"))
	assert.Equal(t, "1.9", leading("1.9.20.0"))
	assert.Equal(t, "::", leading("::"))

	records := []*model.PacketRecord{
		packet(routerMAC, "1.92.0.0", 443, hostMAC, hostIP, 50000),
		packet(routerMAC, "1.9.20.0", 443, hostMAC, hostIP, 50001),
		packet(serverMAC, serverIP, 80, hostMAC, hostIP, 50002),
	}
	_, err := DetectRouter(records)
	require.ErrorIs(t, err, ErrRouterNotFound)

	var rnf *RouterNotFoundError
	require.True(t, errors.As(err, &rnf))
	assert.Equal(t, []string{routerMAC, serverMAC}, rnf.Candidates)
	assert.Equal(t, 1, rnf.Iterations)
}
