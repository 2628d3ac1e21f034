package mqtt

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// freeAddr reserves a loopback port and releases it for the broker to bind.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startBroker spins up an in-process MQTT broker on addr and records every
// message published under prefix through its inline client.
func startBroker(t *testing.T, addr, prefix string) *received {
	t.Helper()
	broker := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: addr,
	})))

	r := &received{msgs: map[string][][]byte{}}
	require.NoError(t, broker.Subscribe(prefix+"/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		r.mu.Lock()
		r.msgs[pk.TopicName] = append(r.msgs[pk.TopicName], append([]byte(nil), pk.Payload...))
		r.mu.Unlock()
	}))

	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })
	return r
}

type received struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (r *received) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[topic])
}

func (r *received) get(topic string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.msgs[topic]...)
}

func TestRealPublisherPublishes(t *testing.T) {
	addr := freeAddr(t)
	got := startBroker(t, addr, "test/relay")

	p, err := NewRealPublisher(Options{
		Broker:      "tcp://" + addr,
		TopicPrefix: "test/relay",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.True(t, p.IsConnected())

	require.NoError(t, p.PublishRun(logic.RunEvent{Type: logic.RunStarted, RunID: "run-1"}, time.Now()))
	require.NoError(t, p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}))

	require.Eventually(t, func() bool {
		return got.count("test/relay/runs") == 1 && got.count("test/relay/system") == 1
	}, 5*time.Second, 10*time.Millisecond)

	var run RunPayload
	require.NoError(t, json.Unmarshal(got.get("test/relay/runs")[0], &run))
	assert.Equal(t, "RUN_STARTED", run.Run.Event)
	assert.Equal(t, "run-1", run.Run.RunID)
}

func TestRealPublisherReplaysAfterConnect(t *testing.T) {
	addr := freeAddr(t)

	p, err := newOfflinePublisher(addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.False(t, p.IsConnected())

	for i := 1; i <= 3; i++ {
		ev := logic.RunEvent{Type: logic.BatchSent, RunID: "run-1", Count: i}
		require.NoError(t, p.PublishRun(ev, time.Now()))
	}
	assert.Equal(t, 3, p.Buffered())

	got := startBroker(t, addr, "replay")

	require.Eventually(t, func() bool {
		return got.count("replay/runs") == 3
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())

	for i, raw := range got.get("replay/runs") {
		var run RunPayload
		require.NoError(t, json.Unmarshal(raw, &run))
		assert.Equal(t, i+1, run.Run.Count, "replay order")
	}
}

// newOfflinePublisher builds a publisher against an address with nothing
// listening yet, retrying quickly so the test does not wait long.
func newOfflinePublisher(addr string) (*RealPublisher, error) {
	return NewRealPublisher(Options{
		Broker:         "tcp://" + addr,
		TopicPrefix:    "replay",
		RetryInterval:  100 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
	})
}

func TestRealPublisherRequiresBroker(t *testing.T) {
	_, err := NewRealPublisher(Options{})
	assert.Error(t, err)
}
