package mqtt

import "log/slog"

// DefaultReplaySize is the number of messages held while the broker is unreachable.
const DefaultReplaySize = 256

// pendingMsg is a serialized publish held for replay after reconnection.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// replayQueue is a bounded FIFO of publishes made while disconnected.
// When full the oldest message is evicted: a fresh heartbeat or run event is
// worth more than a stale one. Not safe for concurrent use.
type replayQueue struct {
	msgs    []pendingMsg
	start   int
	size    int
	evicted uint64
	warned  bool
}

func newReplayQueue(capacity int) *replayQueue {
	if capacity <= 0 {
		capacity = DefaultReplaySize
	}
	return &replayQueue{msgs: make([]pendingMsg, capacity)}
}

func (q *replayQueue) push(msg pendingMsg) {
	capacity := len(q.msgs)
	if q.size == capacity {
		q.msgs[q.start] = msg
		q.start = (q.start + 1) % capacity
		q.evicted++
		if !q.warned {
			slog.Warn("mqtt: replay queue full, dropping oldest", "capacity", capacity)
			q.warned = true
		}
		return
	}
	q.msgs[(q.start+q.size)%capacity] = msg
	q.size++
}

// drain returns the queued messages oldest first and empties the queue.
func (q *replayQueue) drain() []pendingMsg {
	if q.size == 0 {
		return nil
	}
	out := make([]pendingMsg, q.size)
	for i := range out {
		out[i] = q.msgs[(q.start+i)%len(q.msgs)]
		q.msgs[(q.start+i)%len(q.msgs)] = pendingMsg{}
	}
	q.start, q.size, q.warned = 0, 0, false
	return out
}

func (q *replayQueue) len() int { return q.size }
