package summary

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/pcaptest"
)

func TestFileScenario(t *testing.T) {
	pkts := pcaptest.Scenario(t)
	path := pcaptest.WriteFile(t, t.TempDir(), pkts...)

	st := File(context.Background(), path)
	require.NoError(t, st.Err)

	var bytes uint64
	for _, p := range pkts {
		bytes += uint64(len(p.Data))
	}
	assert.Equal(t, "Ethernet", st.LinkType)
	assert.Equal(t, uint64(5), st.Records)
	assert.Equal(t, bytes, st.CapturedBytes)
	assert.Equal(t, uint64(1), st.ARP)
	assert.Equal(t, uint64(4), st.IP)
	assert.Equal(t, uint64(1), st.TCP)
	assert.Equal(t, uint64(2), st.UDP)
	assert.Equal(t, uint64(1), st.ICMP)
	assert.Equal(t, uint64(1), st.DNS)
	assert.Zero(t, st.Truncated)
	assert.Zero(t, st.Anomalies)
}

func TestRunKeepsPathOrder(t *testing.T) {
	var paths []string
	for i := 0; i < 6; i++ {
		dir := t.TempDir()
		pkts := pcaptest.Scenario(t)[:i%5+1]
		paths = append(paths, pcaptest.WriteFile(t, dir, pkts...))
	}
	bad := pcaptest.WriteBytes(t, t.TempDir(), "bad.pcap", []byte("nope"))
	paths = append(paths, bad, filepath.Join(t.TempDir(), "missing.pcap"))

	results, err := Run(context.Background(), paths, 3)
	require.NoError(t, err)
	require.Len(t, results, len(paths))

	var total FileStats
	for i := 0; i < 6; i++ {
		assert.Equal(t, paths[i], results[i].Path)
		require.NoError(t, results[i].Err)
		assert.Equal(t, uint64(i%5+1), results[i].Records)
		total.Add(results[i])
	}
	assert.Equal(t, uint64(1+2+3+4+5+1), total.Records)
	assert.Equal(t, uint64(6), total.ARP)

	assert.ErrorIs(t, results[6].Err, core.ErrFormat)
	assert.Error(t, results[7].Err)
}

func TestRunTruncatedFileKeepsCounts(t *testing.T) {
	frame := pcaptest.TCPSYN(t, 1, 2, 3)
	n := uint32(len(frame))
	path := pcaptest.NewRawFile(binary.BigEndian, true, 65535, 1).
		Record(pcaptest.BaseTime, n, n, frame).
		Record(pcaptest.BaseTime, n, n, frame[:8]).
		Write(t, t.TempDir(), "cut.pcap")

	results, err := Run(context.Background(), []string{path}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, core.ErrTruncatedRecord)
	assert.Equal(t, uint64(1), results[0].Records)
	assert.Equal(t, uint64(1), results[0].TCP)
}

func TestRunOversizedRecord(t *testing.T) {
	frame := pcaptest.UDPDatagram(t, 1, 2, make([]byte, 100))
	n := uint32(len(frame))
	path := pcaptest.NewRawFile(binary.LittleEndian, false, 64, 1).
		Record(pcaptest.BaseTime, n, n, frame).
		Write(t, t.TempDir(), "big.pcap")

	st := File(context.Background(), path)
	require.NoError(t, st.Err)
	assert.Equal(t, uint64(1), st.Truncated)
	assert.Equal(t, uint64(1), st.Anomalies)
}

func TestRunCancelled(t *testing.T) {
	path := pcaptest.WriteFile(t, t.TempDir(), pcaptest.Scenario(t)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Run(ctx, []string{path, path}, 2)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunNoPaths(t *testing.T) {
	results, err := Run(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunWorkerPanicFailsFile(t *testing.T) {
	good := pcaptest.WriteFile(t, t.TempDir(), pcaptest.Scenario(t)...)
	prev := scanFile
	scanFile = func(ctx context.Context, path string) FileStats {
		if path != good {
			panic("decoder bug")
		}
		return File(ctx, path)
	}
	t.Cleanup(func() { scanFile = prev })

	results, err := Run(context.Background(), []string{good, "boom.pcap"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	assert.Equal(t, uint64(5), results[0].Records)

	assert.Equal(t, "boom.pcap", results[1].Path)
	assert.ErrorContains(t, results[1].Err, "panicked: decoder bug")
	assert.Zero(t, results[1].Records)
}
