package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/grantmesh/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ feed.Sink = (*Ledger)(nil)

// testLedger creates a temporary SQLite ledger for testing.
func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func event(typ feed.EventType, grantID int64, payload any) feed.Event {
	ev := feed.NewEvent(typ, payload)
	ev.GrantID = grantID
	return ev
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLedger_PublishAndTail(t *testing.T) {
	ctx := context.Background()
	l := testLedger(t)

	first := event(feed.EventGrantCreated, 1, map[string]any{"title": "Indexer"})
	require.NoError(t, l.Publish(ctx, first))
	require.NoError(t, l.Publish(ctx, event(feed.EventEvaluationAdded, 1, map[string]any{"score": 80})))
	msg := feed.NewEvent(feed.EventAgentMessage, "hello")
	msg.AgentID = "tech-1"
	msg.Topic = "general"
	require.NoError(t, l.Publish(ctx, msg))

	// duplicate ids are ignored
	require.NoError(t, l.Publish(ctx, first))
	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tail, err := l.Tail(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, feed.EventEvaluationAdded, tail[0].Type)
	assert.Equal(t, feed.EventAgentMessage, tail[1].Type)
	assert.Equal(t, "tech-1", tail[1].AgentID)
	assert.Equal(t, "general", tail[1].Topic)
	assert.JSONEq(t, `"hello"`, string(tail[1].Payload))
	assert.Less(t, tail[0].Seq, tail[1].Seq)

	all, err := l.Tail(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[0].ID)
	assert.WithinDuration(t, first.Time, all[0].Time, time.Microsecond)
}

func TestLedger_ByGrantAndSince(t *testing.T) {
	ctx := context.Background()
	l := testLedger(t)

	require.NoError(t, l.Publish(ctx, event(feed.EventGrantCreated, 1, nil)))
	require.NoError(t, l.Publish(ctx, event(feed.EventGrantCreated, 2, nil)))
	require.NoError(t, l.Publish(ctx, event(feed.EventVotingUpdated, 1, nil)))

	one, err := l.ByGrant(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 2)
	assert.Nil(t, one[0].Payload)

	since, err := l.Since(ctx, one[0].Seq, feed.EventVotingUpdated, feed.EventEvaluationAdded)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, feed.EventVotingUpdated, since[0].Type)

	everything, err := l.Since(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

func TestLedger_InMemory(t *testing.T) {
	l, err := Open(":memory:")
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Publish(context.Background(), event(feed.EventGrantCreated, 1, nil)))
	n, err := l.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
