package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventDB struct {
	mu   sync.Mutex
	args [][]any
	err  error
}

func (d *fakeEventDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.args = append(d.args, args)
	return pgconn.CommandTag{}, d.err
}

func (d *fakeEventDB) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.args))
	for i, a := range d.args {
		out[i], _ = a[0].(string)
	}
	return out
}

func TestLifecycleEventsAreRecorded(t *testing.T) {
	fdb := &fakeEventDB{}
	rl := New(Config{Events: &PGEventLog{DB: fdb}})
	defer rl.Close()

	a := rl.CreateAgent(&fakeConn{}, "10.0.0.5:1")
	rl.HandleAgentMessage(a.ID, snapshotFrame("web1@10.0.0.5", 1))
	rl.RemoveAgent(a.ID)

	assert.Equal(t, []string{"agent_connected", "host_bound", "agent_disconnected"}, fdb.kinds())

	require.Len(t, fdb.args, 3)
	assert.Equal(t, a.ID, fdb.args[1][1])
	assert.Equal(t, "web1@10.0.0.5", fdb.args[1][2])
}

func TestEventLogErrorsAreSwallowed(t *testing.T) {
	fdb := &fakeEventDB{err: errors.New("db down")}
	rl := New(Config{Events: &PGEventLog{DB: fdb}})
	defer rl.Close()

	// nothing panics, nothing propagates
	a := rl.CreateAgent(&fakeConn{}, "x")
	rl.HandleAgentMessage(a.ID, snapshotFrame("web1", 1))
	rl.RemoveAgent(a.ID)

	assert.Len(t, fdb.kinds(), 3)
}
