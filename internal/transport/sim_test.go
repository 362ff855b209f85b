package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moldmap/internal/geom"
	"moldmap/internal/protocol"
)

// collector gathers delivered events for assertions.
type collector struct {
	mu  sync.Mutex
	evs []protocol.Event
}

func (c *collector) handle(ev protocol.Event) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *collector) snapshot() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Event, len(c.evs))
	copy(out, c.evs)
	return out
}

func (c *collector) countKind(kind string) int {
	n := 0
	for _, ev := range c.snapshot() {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func makePath(n int) []geom.Point3 {
	pts := make([]geom.Point3, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, geom.Pt(float64(i), 0, 0))
	}
	return pts
}

func TestSimEmptyPathRejected(t *testing.T) {
	s := NewSim(1000)
	var c collector
	s.Subscribe(c.handle)
	require.True(t, s.Connect())
	defer s.Disconnect()

	require.True(t, s.SendMap("j-empty", nil, "mm", 50))
	waitFor(t, 2*time.Second, func() bool {
		return c.countKind(protocol.TypeValidation) == 1
	}, "validation event")

	// nothing else may follow
	time.Sleep(50 * time.Millisecond)
	evs := c.snapshot()
	require.Len(t, evs, 1)
	v := evs[0].(protocol.Validation)
	assert.Equal(t, protocol.StatusInvalid, v.Status)
}

func TestSimFullRun(t *testing.T) {
	s := NewSim(500)
	var c collector
	s.Subscribe(c.handle)
	require.True(t, s.Connect())
	defer s.Disconnect()

	require.True(t, s.SendMap("j-25", makePath(25), "mm", 50))
	waitFor(t, 5*time.Second, func() bool {
		return c.countKind(protocol.TypeComplete) == 1
	}, "complete event")

	evs := c.snapshot()
	v := evs[0].(protocol.Validation)
	assert.Equal(t, protocol.StatusValid, v.Status)

	assert.Equal(t, 25, c.countKind(protocol.TypePosition))

	var progress []int
	for _, ev := range evs {
		if p, ok := ev.(protocol.Progress); ok {
			progress = append(progress, p.Visited)
			assert.Equal(t, 25, p.Total)
		}
	}
	assert.Equal(t, []int{10, 20, 25}, progress)

	done := evs[len(evs)-1].(protocol.Complete)
	assert.Equal(t, "j-25", done.JobID)
	assert.Greater(t, done.DurationS, 0.0)
}

func TestSimPositionsInPathOrder(t *testing.T) {
	s := NewSim(1000)
	var c collector
	s.Subscribe(c.handle)
	require.True(t, s.Connect())
	defer s.Disconnect()

	path := makePath(5)
	require.True(t, s.SendMap("j-order", path, "mm", 50))
	waitFor(t, 2*time.Second, func() bool {
		return c.countKind(protocol.TypeComplete) == 1
	}, "complete event")

	i := 0
	for _, ev := range c.snapshot() {
		if p, ok := ev.(protocol.Position); ok {
			assert.Equal(t, path[i], p.Point())
			i++
		}
	}
	assert.Equal(t, len(path), i)
}

func TestSimStopInterruptsRun(t *testing.T) {
	s := NewSim(50) // 200 waypoints at 50/s would take 4s uninterrupted
	var c collector
	s.Subscribe(c.handle)
	require.True(t, s.Connect())
	defer s.Disconnect()

	require.True(t, s.SendMap("j-stop", makePath(200), "mm", 50))
	waitFor(t, 2*time.Second, func() bool {
		return c.countKind(protocol.TypePosition) >= 1
	}, "first position")

	require.True(t, s.SendStop())

	// the loop must notice the stop and never reach completion
	time.Sleep(200 * time.Millisecond)
	before := c.countKind(protocol.TypePosition)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, c.countKind(protocol.TypePosition), "positions kept flowing after stop")
	assert.Zero(t, c.countKind(protocol.TypeComplete))
	assert.Less(t, before, 200)
}

func TestSimIdleStopDoesNotCancelNextMap(t *testing.T) {
	s := NewSim(1000)
	var c collector
	s.Subscribe(c.handle)
	require.True(t, s.Connect())
	defer s.Disconnect()

	require.True(t, s.SendStop())
	require.True(t, s.SendMap("j-after-stop", makePath(3), "mm", 50))
	waitFor(t, 2*time.Second, func() bool {
		return c.countKind(protocol.TypeComplete) == 1
	}, "complete event after idle stop")
}

func TestSimSendWhenDisconnected(t *testing.T) {
	s := NewSim(0)
	assert.False(t, s.SendMap("j", makePath(1), "mm", 50))
	assert.False(t, s.SendStop())
	assert.False(t, s.IsConnected())
}

func TestSimDisconnectIdempotent(t *testing.T) {
	s := NewSim(0)
	s.Disconnect() // never connected: no-op

	require.True(t, s.Connect())
	assert.True(t, s.IsConnected())
	s.Disconnect()
	assert.False(t, s.IsConnected())
	s.Disconnect() // second call: no-op
}

func TestSimReconnectFreshSession(t *testing.T) {
	s := NewSim(1000)
	var c collector
	s.Subscribe(c.handle)
	require.True(t, s.Connect())
	s.Disconnect()

	require.True(t, s.Connect())
	defer s.Disconnect()
	require.True(t, s.SendMap("j-again", makePath(2), "mm", 50))
	waitFor(t, 2*time.Second, func() bool {
		return c.countKind(protocol.TypeComplete) == 1
	}, "complete after reconnect")
}

func TestSimSaturatedQueueDoesNotStallLifecycle(t *testing.T) {
	s := NewSim(50)
	require.True(t, s.Connect())

	// occupy the consumer with a long run, then overfill the queue so
	// further senders block on the enqueue
	require.True(t, s.SendMap("j-long", makePath(200), "mm", 50))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 40; i++ {
			s.SendMap("j-flood", makePath(1), "mm", 50)
		}
	}()

	// lifecycle calls must not queue behind the blocked senders
	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.IsConnected()
		s.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("disconnect stalled behind a saturated queue")
	}
	wg.Wait()
	assert.False(t, s.IsConnected())
}

func TestHandlerReplacement(t *testing.T) {
	s := NewSim(1000)
	var first, second collector
	s.Subscribe(first.handle)
	s.Subscribe(second.handle) // replaces the first
	require.True(t, s.Connect())
	defer s.Disconnect()

	require.True(t, s.SendMap("j-h", makePath(2), "mm", 50))
	waitFor(t, 2*time.Second, func() bool {
		return second.countKind(protocol.TypeComplete) == 1
	}, "complete on replacement handler")
	assert.Empty(t, first.snapshot())
}
