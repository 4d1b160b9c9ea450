package device

import (
	"context"
	"io"
	"time"

	"github.com/snugbit/toygateway/pkg/frame"
	"github.com/snugbit/toygateway/pkg/led"
	"github.com/snugbit/toygateway/pkg/logging"
)

// errorHoldDuration is the "brief hold" §4.6 describes before an errored
// device returns to idle.
const errorHoldDuration = 2 * time.Second

// Device orchestrates one toy's full client-side stack: the connection,
// the state machine driving led, and the capture/playback pipelines
// (§4.5, §4.6). It is the device-side analogue of gateway.Manager.
type Device struct {
	DeviceID string
	ToyID    string

	conn     *Connection
	machine  *Machine
	playback *Playback
	logger   logging.Logger

	captureFormat string
	captureRate   int
}

// Config configures a Device. Fields beyond the connection/audio basics
// (AuthToken, the feature flags, the audio device overrides, and the OTA
// target) are carried here rather than consulted directly so LoadConfig is
// the single place that interprets the device-side environment (§6).
type Config struct {
	GatewayURL           string
	DeviceID             string
	ToyID                string
	AuthToken            string
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	CaptureFormat        string // "pcm16" default
	CaptureSampleRate    int    // default 16000
	SinkSampleRate       int    // default 48000 (Bluetooth)

	FeatureWakeWord    bool
	FeatureOfflineMode bool

	AudioInputDevice  string
	AudioOutputDevice string

	PlaybackSampleRateOverride int // 0 = use sink default

	OTABucket      string
	OTAManifestKey string
}

// New builds a Device. sink is the audio output stream (e.g. an ALSA/
// Bluetooth write handle); leds may be nil for a no-op controller.
func New(ctx context.Context, cfg Config, sink io.Writer, leds led.Controller, logger logging.Logger) *Device {
	if logger == nil {
		logger = logging.Default("device: ")
	}
	if cfg.CaptureFormat == "" {
		cfg.CaptureFormat = "pcm16"
	}
	if cfg.CaptureSampleRate == 0 {
		cfg.CaptureSampleRate = 16000
	}

	conn := NewConnection(ctx, cfg.GatewayURL, cfg.DeviceID, cfg.ToyID, cfg.ReconnectMaxAttempts, logger)
	if cfg.ReconnectBaseDelay > 0 {
		conn.baseDelay = cfg.ReconnectBaseDelay
	}
	machine := NewMachine(leds, logger)
	sinkRate := cfg.SinkSampleRate
	if cfg.PlaybackSampleRateOverride > 0 {
		sinkRate = cfg.PlaybackSampleRateOverride
	}
	playback := NewPlayback(conn, sink, sinkRate, logger)

	d := &Device{
		DeviceID:      cfg.DeviceID,
		ToyID:         cfg.ToyID,
		conn:          conn,
		machine:       machine,
		playback:      playback,
		logger:        logger,
		captureFormat: cfg.CaptureFormat,
		captureRate:   cfg.CaptureSampleRate,
	}

	conn.OnConnectionStateChange(d.handleConnectionStateChange)
	conn.OnFrame(frame.TypeTextResponse, d.handleTextResponse)
	conn.OnFrame(frame.TypeError, d.handleError)
	conn.OnFrame(frame.TypeStatus, d.handleStatus)

	return d
}

// Run drives the connection's reconnect loop; blocks until it gives up or
// ctx is cancelled.
func (d *Device) Run() error {
	d.machine.Enter(StateConnecting)
	return d.conn.Run()
}

// State reports the device's current lifecycle state.
func (d *Device) State() State {
	return d.machine.State()
}

func (d *Device) handleConnectionStateChange(connected bool) {
	if connected {
		d.machine.Enter(StateIdle)
	} else {
		d.machine.Enter(StateOffline)
	}
}

func (d *Device) handleStatus(fr frame.Frame) {
	if fr.Status == "processing" {
		d.machine.Enter(StateProcessing)
	}
}

func (d *Device) handleTextResponse(fr frame.Frame) {
	if !d.machine.Enter(StateSpeaking) {
		return
	}
	ctx := context.Background()
	d.playback.Trigger(ctx)
	go d.waitForPlaybackCompletion(ctx)
}

func (d *Device) handleError(fr frame.Frame) {
	d.machine.Enter(StateError)
	go func() {
		time.Sleep(errorHoldDuration)
		d.machine.Enter(StateIdle)
	}()
}

// waitForPlaybackCompletion returns the machine to idle once the playback
// task finishes (§4.6's "idle on playback completion").
func (d *Device) waitForPlaybackCompletion(ctx context.Context) {
	for d.playback.Running() {
		time.Sleep(20 * time.Millisecond)
	}
	d.machine.Enter(StateIdle)
}

// StartListening enters listening and streams src as the user's utterance,
// ending with the isFinal terminal marker (§4.6's capture pipeline).
func (d *Device) StartListening(ctx context.Context, src io.Reader) error {
	if d.conn.InteractionBoundary() {
		d.conn.DrainInbound()
	}
	if !d.machine.Enter(StateListening) {
		return nil
	}
	capture := NewCapture(d.conn, d.captureRate, d.captureFormat)
	err := capture.Run(ctx, src)
	d.machine.Enter(StateProcessing)

	// Fallback watchdog (§4.6): if no text_response arrives within 500ms of
	// the terminal marker but inbound audio already has, start playback
	// anyway so a late or dropped text_response doesn't strand the turn.
	go d.playbackWatchdog(ctx)
	return err
}

func (d *Device) playbackWatchdog(ctx context.Context) {
	time.Sleep(playbackWatchdog)
	if d.State() != StateSpeaking && !d.playback.Running() && d.conn.HasQueuedAudio() {
		d.logger.WarnPrintf("playback watchdog fired: audio arrived without text_response")
		d.machine.Enter(StateSpeaking)
		d.playback.Trigger(ctx)
		go d.waitForPlaybackCompletion(ctx)
	}
}

// Close shuts down the connection and any in-flight background work.
func (d *Device) Close() error {
	return d.conn.Close()
}
