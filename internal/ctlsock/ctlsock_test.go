// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlsock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l7classd/internal/flow"
	"l7classd/internal/logx"
)

func TestDumpRoundTrip(t *testing.T) {
	table := flow.New(time.Minute)
	h, _ := table.GetOrCreate("tcp src=a dst=b sport=1 dport=2", "tcp src=b dst=a sport=2 dport=1")
	h.Entry().PacketsEgress = 5
	h.Release()

	sockPath := filepath.Join(t.TempDir(), "l7classd.sock")
	ln, err := Serve(sockPath, table, logx.New("[CTL]", nil))
	require.NoError(t, err)
	defer ln.Close()

	reply, err := Dump(sockPath)
	require.NoError(t, err)
	require.Len(t, reply.Entries, 1)
	assert.Equal(t, uint64(5), reply.Entries[0].PacketsEgress)
}

func TestDumpFailsWithoutServer(t *testing.T) {
	_, err := Dump(filepath.Join(t.TempDir(), "nonexistent.sock"))
	assert.Error(t, err)
}
