package main

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/pulse-relay/internal/gpio"
	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/mqtt"
	"github.com/sweeney/pulse-relay/internal/relay"
	"github.com/sweeney/pulse-relay/internal/status"
	"github.com/sweeney/pulse-relay/internal/transport"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestPickHardwareAddress(t *testing.T) {
	mac, _ := net.ParseMAC("b8:27:eb:12:34:56")
	ifaces := []net.Interface{
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
		{Name: "eth0", Flags: 0, HardwareAddr: net.HardwareAddr{1, 2, 3, 4, 5, 6}},
		{Name: "tun0", Flags: net.FlagUp},
		{Name: "wlan0", Flags: net.FlagUp, HardwareAddr: mac},
	}
	if got := pickHardwareAddress(ifaces); got != "b8:27:eb:12:34:56" {
		t.Errorf("got %q", got)
	}
	if got := pickHardwareAddress(ifaces[:3]); got != "" {
		t.Errorf("expected empty address, got %q", got)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("got %s", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("got %s", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("got %s", got)
	}
}

// harness drives runLoop with a manual device clock.
type harness struct {
	t      *testing.T
	ms     atomic.Uint32
	tr     *transport.FakeTransport
	pub    *mqtt.FakePublisher
	src    *gpio.FakeSource
	relay  *relay.Relay
	track  *status.Tracker
	tick   chan time.Time
	sig    chan os.Signal
	errCh  chan error
	config relay.Config
}

func newHarness(t *testing.T, heartbeat time.Duration, withPublisher bool) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		tr:    transport.NewFakeTransport(),
		src:   gpio.NewFakeSource(),
		track: status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}),
		tick:  make(chan time.Time),
		sig:   make(chan os.Signal, 1),
		errCh: make(chan error, 1),
	}
	h.config = relay.DefaultConfig()
	h.config.Retry.NoJitter = true
	h.config.Retry.After = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	h.relay = relay.New(h.config, h.tr, func() logic.Timestamp { return logic.Timestamp(h.ms.Load()) })
	if err := h.src.Watch(func() { h.relay.Capture().OnTrigger() }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	deps := loopDeps{
		relay:     h.relay,
		collector: h.tr,
		tracker:   h.track,
		heartbeat: heartbeat,
		now:       func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	if withPublisher {
		h.pub = mqtt.NewFakePublisher()
		h.pub.Connected = true
		deps.publisher = h.pub
		deps.mqttStatus = h.pub
	}
	go func() {
		h.errCh <- runLoop(context.Background(), deps, h.tick, h.sig)
	}()
	return h
}

// pulseAt fires one edge at device tick ms.
func (h *harness) pulseAt(ms uint32) {
	h.ms.Store(ms)
	h.src.Trigger(1)
}

// stepAt runs one loop iteration at device tick ms.
func (h *harness) stepAt(ms uint32) {
	h.ms.Store(ms)
	h.tick <- time.Time{}
}

func (h *harness) stop(s os.Signal) {
	h.t.Helper()
	h.sig <- s
	select {
	case err := <-h.errCh:
		if err != nil {
			h.t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		h.t.Fatal("runLoop did not exit")
	}
}

func equalTypes(got []logic.RunEventType, want ...logic.RunEventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRunLoopPulsesBecomeBatch(t *testing.T) {
	h := newHarness(t, 0, true)
	h.pulseAt(100)
	h.pulseAt(105) // bounce
	h.pulseAt(200)
	h.stepAt(1500)
	h.stop(syscall.SIGTERM)

	batches := h.tr.SubmittedBatches()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if batches[0].RunID != "run-1" {
		t.Errorf("unexpected run id: %s", batches[0].RunID)
	}
	if got := batches[0].Batch; len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Errorf("unexpected batch: %v", got)
	}

	if got := h.pub.RunTypes(); !equalTypes(got, logic.RunStarted, logic.BatchSent) {
		t.Errorf("unexpected run events: %v", got)
	}
	names := h.pub.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "SHUTDOWN" {
		t.Errorf("unexpected system events: %v", names)
	}
	if !strings.Contains(string(h.pub.SystemPayloads[1]), `"reason":"SIGTERM"`) {
		t.Errorf("shutdown payload missing reason: %s", h.pub.SystemPayloads[1])
	}

	snap := h.track.Snapshot()
	if snap.Relay.Bounces != 1 || snap.Relay.Accepted != 2 || snap.Relay.Sent != 1 {
		t.Errorf("unexpected tracker stats: %+v", snap.Relay)
	}
	if !snap.CollectorConnected || !snap.MQTTConnected {
		t.Error("expected collector and mqtt connected in snapshot")
	}
}

func TestRunLoopRespectsPostInterval(t *testing.T) {
	h := newHarness(t, 0, true)
	h.pulseAt(100)
	h.stepAt(500) // under 1s since boot
	if n := len(h.tr.SubmittedBatches()); n != 0 {
		t.Errorf("expected no batch before the post interval, got %d", n)
	}
	h.stop(syscall.SIGINT)
}

func TestRunLoopFlushesOnShutdown(t *testing.T) {
	h := newHarness(t, 0, true)
	h.pulseAt(100)
	h.stepAt(200)
	h.stop(syscall.SIGINT)

	batches := h.tr.SubmittedBatches()
	if len(batches) != 1 || len(batches[0].Batch) != 1 || batches[0].Batch[0] != 100 {
		t.Fatalf("expected flushed batch [100], got %+v", batches)
	}
	if !strings.Contains(string(h.pub.SystemPayloads[len(h.pub.SystemPayloads)-1]), `"reason":"SIGINT"`) {
		t.Error("expected SIGINT reason on shutdown")
	}
}

func TestRunLoopFinalizesAfterTimeout(t *testing.T) {
	h := newHarness(t, 0, true)
	h.pulseAt(100)
	h.stepAt(1500)

	timeout := uint32(h.config.RunTimeout.Milliseconds())
	h.stepAt(100 + timeout + 1)
	h.stop(syscall.SIGTERM)

	if got := h.tr.FinalizedRuns(); len(got) != 1 || got[0] != "run-1" {
		t.Errorf("unexpected finalized runs: %v", got)
	}
	if got := h.pub.RunTypes(); !equalTypes(got, logic.RunStarted, logic.BatchSent, logic.RunFinalized) {
		t.Errorf("unexpected run events: %v", got)
	}
	if phase := h.track.Snapshot().Relay.Phase; phase != logic.NoRun {
		t.Errorf("expected no run after finalize, got %s", phase)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newHarness(t, time.Minute, true)
	h.stepAt(30_000)
	h.stepAt(60_000)
	h.stepAt(90_000)
	h.stepAt(120_000)
	h.stop(syscall.SIGTERM)

	var beats int
	for _, name := range h.pub.SystemEventNames() {
		if name == "HEARTBEAT" {
			beats++
		}
	}
	if beats != 2 {
		t.Errorf("expected 2 heartbeats, got %d", beats)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	h := newHarness(t, 0, true)
	h.stepAt(3_600_000)
	h.stop(syscall.SIGTERM)

	for _, name := range h.pub.SystemEventNames() {
		if name == "HEARTBEAT" {
			t.Fatal("heartbeat published while disabled")
		}
	}
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	h := newHarness(t, time.Second, false)
	h.pulseAt(100)
	h.stepAt(1500)
	h.stepAt(3000)
	h.stop(syscall.SIGTERM)

	if n := len(h.tr.SubmittedBatches()); n != 1 {
		t.Errorf("expected 1 batch, got %d", n)
	}
}

func TestRunLoopPublishErrorDoesNotStopRelay(t *testing.T) {
	h := newHarness(t, 0, true)
	h.pub.PublishRunError = errors.New("broker gone")
	h.pulseAt(100)
	h.stepAt(1500)
	h.stop(syscall.SIGTERM)

	if n := len(h.tr.SubmittedBatches()); n != 1 {
		t.Errorf("expected 1 batch despite publish errors, got %d", n)
	}
}

func TestRunLoopSignalInterruptsAcquisition(t *testing.T) {
	tr := transport.NewFakeTransport()
	tr.AcquireErrors = []error{errors.New("collector down")}

	var ms atomic.Uint32
	cfg := relay.DefaultConfig()
	// Never fire, so the first failure blocks until the signal.
	cfg.Retry.After = func(time.Duration) <-chan time.Time { return nil }
	r := relay.New(cfg, tr, func() logic.Timestamp { return logic.Timestamp(ms.Load()) })

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), loopDeps{
			relay:   r,
			tracker: status.NewTracker(time.Now(), status.Config{}),
			now:     time.Now,
		}, tick, sig)
	}()

	ms.Store(100)
	r.Capture().OnTrigger()
	ms.Store(1500)
	tick <- time.Time{}
	sig <- syscall.SIGTERM

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop blocked in acquisition after signal")
	}

	// The shutdown flush acquires on a fresh context and sends the held batch.
	batches := tr.SubmittedBatches()
	if len(batches) != 1 || len(batches[0].Batch) != 1 || batches[0].Batch[0] != 100 {
		t.Errorf("expected held batch flushed on shutdown, got %+v", batches)
	}
}

func TestRunLoopContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := relay.New(relay.DefaultConfig(), transport.NewFakeTransport(), func() logic.Timestamp { return 0 })
	pub := mqtt.NewFakePublisher()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(ctx, loopDeps{
			relay:     r,
			publisher: pub,
			tracker:   status.NewTracker(time.Now(), status.Config{}),
			now:       time.Now,
		}, nil, nil)
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not exit on cancel")
	}
	names := pub.SystemEventNames()
	if len(names) != 2 || names[1] != "SHUTDOWN" {
		t.Errorf("unexpected system events: %v", names)
	}
}

func TestStepSkippedAfterCancel(t *testing.T) {
	tr := transport.NewFakeTransport()
	var ms atomic.Uint32
	r := relay.New(relay.DefaultConfig(), tr, func() logic.Timestamp { return logic.Timestamp(ms.Load()) })
	d := loopDeps{
		relay:     r,
		collector: tr,
		tracker:   status.NewTracker(time.Now(), status.Config{}),
		now:       time.Now,
	}

	ms.Store(100)
	r.Capture().OnTrigger()
	ms.Store(1500)
	if _, ok := d.step(context.Background()); !ok {
		t.Fatal("expected step to run")
	}
	if r.Stats().Phase != logic.RunActive {
		t.Fatal("expected an active run")
	}

	// The run has now timed out, but a cancelled loop must not finalize it
	// with a request that cannot be delivered.
	ms.Store(100 + uint32(relay.DefaultRunTimeout.Milliseconds()) + 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := d.step(ctx); ok {
		t.Error("expected step to be skipped after cancel")
	}
	if got := tr.FinalizedRuns(); len(got) != 0 {
		t.Errorf("unexpected finalize: %v", got)
	}
	if r.Stats().Phase != logic.RunActive {
		t.Error("run id cleared by a skipped step")
	}
}
