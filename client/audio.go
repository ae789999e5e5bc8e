package client

import (
	"log"
	"math"
	"sync"
	"sync/atomic"

	"client/internal/aec"
	"client/internal/agc"
	"client/internal/noisegate"
	"client/internal/vad"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 48000
	channels   = 1
	// FrameSize is 20 ms of audio at 48 kHz mono: the fixed unit the capture
	// source produces and the playback sink consumes.
	FrameSize = 960

	// captureChannelBuf bounds the raw-PCM channel between the capture
	// callback and the media loop. When full, the oldest queued frame is
	// dropped to make room for the newest, bounding memory growth if the
	// encoder stalls.
	captureChannelBuf = 30
	// playbackChannelBuf bounds the decoded-PCM channel feeding the mixer.
	// No jitter buffer: each playback tick mixes every queued frame at once,
	// and a frame pushed while the channel is full is dropped. Frames are
	// never reordered or held back.
	playbackChannelBuf = 30
)

// AudioDevice describes an available capture or playback device.
type AudioDevice struct {
	ID   int
	Name string
}

// paStream abstracts a PortAudio stream so the engine can be exercised
// without real hardware in tests.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

// taggedPCM is one decoded frame queued for mixing, tagged with the
// originating user so the mixer can track per-sender state.
type taggedPCM struct {
	userID uint32
	pcm    []int16
}

// AudioEngine is the capture source and playback sink for one session: it
// owns the PortAudio streams and the capture-path DSP chain (AGC, noise
// gate, VAD hint, echo-cancellation seam). It knows nothing about Opus or
// QUIC — encoding/decoding and datagram framing are the media loop's job.
type AudioEngine struct {
	mu sync.Mutex

	inputDeviceID  int
	outputDeviceID int
	volume         float64

	captureStream  paStream
	playbackStream paStream

	// CaptureOut carries raw PCM int16 frames (FrameSize each) ready for the
	// media loop to encode and send.
	CaptureOut chan []int16
	// playbackIn carries decoded PCM frames tagged by sender, pushed by the
	// media loop on every inbound datagram.
	playbackIn chan taggedPCM

	aecProc    *aec.AEC
	aecEnabled atomic.Bool

	agcProc    *agc.AGC
	agcEnabled atomic.Bool

	gateProc *noisegate.Gate

	running  atomic.Bool
	deafened atomic.Bool

	captureDropped  atomic.Uint64
	playbackDropped atomic.Uint64

	inputLevel atomic.Uint32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewAudioEngine returns an AudioEngine with default device selection and
// DSP settings.
func NewAudioEngine() *AudioEngine {
	ae := &AudioEngine{
		inputDeviceID:  -1,
		outputDeviceID: -1,
		volume:         1.0,
		aecProc:        aec.New(),
		agcProc:        agc.New(),
		gateProc:       noisegate.New(vad.New()),
		CaptureOut:     make(chan []int16, captureChannelBuf),
		playbackIn:     make(chan taggedPCM, playbackChannelBuf),
		stopCh:         make(chan struct{}),
	}
	return ae
}

// ListInputDevices returns available capture devices.
func (ae *AudioEngine) ListInputDevices() []AudioDevice {
	return listDevices(func(d *portaudio.DeviceInfo) bool { return d.MaxInputChannels > 0 })
}

// ListOutputDevices returns available playback devices.
func (ae *AudioEngine) ListOutputDevices() []AudioDevice {
	return listDevices(func(d *portaudio.DeviceInfo) bool { return d.MaxOutputChannels > 0 })
}

func listDevices(match func(*portaudio.DeviceInfo) bool) []AudioDevice {
	devices, err := portaudio.Devices()
	if err != nil {
		log.Printf("[audio] list devices: %v", err)
		return nil
	}
	var out []AudioDevice
	for i, d := range devices {
		if match(d) {
			out = append(out, AudioDevice{ID: i, Name: d.Name})
		}
	}
	return out
}

// SetInputDevice sets the capture device by index.
func (ae *AudioEngine) SetInputDevice(id int) {
	ae.mu.Lock()
	ae.inputDeviceID = id
	ae.mu.Unlock()
}

// SetOutputDevice sets the playback device by index.
func (ae *AudioEngine) SetOutputDevice(id int) {
	ae.mu.Lock()
	ae.outputDeviceID = id
	ae.mu.Unlock()
}

// SetVolume sets the playback volume in [0.0, 1.0].
func (ae *AudioEngine) SetVolume(vol float64) {
	if vol < 0 {
		vol = 0
	}
	if vol > 1 {
		vol = 1
	}
	ae.mu.Lock()
	ae.volume = vol
	ae.mu.Unlock()
}

// SetAEC enables or disables the echo-cancellation seam on the capture path.
func (ae *AudioEngine) SetAEC(enabled bool) {
	ae.aecProc.SetEnabled(enabled)
	ae.aecEnabled.Store(enabled)
}

// SetAGC enables or disables automatic gain control on the capture path.
func (ae *AudioEngine) SetAGC(enabled bool) {
	if enabled {
		ae.agcProc.Reset()
	}
	ae.agcEnabled.Store(enabled)
}

// SetDeafened enables or disables playback entirely.
func (ae *AudioEngine) SetDeafened(deafened bool) {
	ae.deafened.Store(deafened)
}

// InputLevel returns the most recent pre-gate RMS mic level (0.0-1.0).
func (ae *AudioEngine) InputLevel() float32 {
	return math.Float32frombits(ae.inputLevel.Load())
}

// DroppedFrames returns and resets the capture/playback drop counters.
func (ae *AudioEngine) DroppedFrames() (capture, playback uint64) {
	return ae.captureDropped.Swap(0), ae.playbackDropped.Swap(0)
}

// Start opens the capture and playback PortAudio streams and begins the
// capture/playback goroutines.
func (ae *AudioEngine) Start() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	if ae.running.Load() {
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}

	inputDev, err := resolveDevice(devices, ae.inputDeviceID, portaudio.DefaultInputDevice)
	if err != nil {
		return err
	}
	outputDev, err := resolveDevice(devices, ae.outputDeviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		return err
	}

	captureBuf := make([]float32, FrameSize)
	captureParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDev,
			Channels: channels,
			Latency:  inputDev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: FrameSize,
	}
	captureStream, err := portaudio.OpenStream(captureParams, captureBuf)
	if err != nil {
		return err
	}

	playbackBuf := make([]float32, FrameSize)
	playbackParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: channels,
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: FrameSize,
	}
	playbackStream, err := portaudio.OpenStream(playbackParams, playbackBuf)
	if err != nil {
		captureStream.Close()
		return err
	}

	if err := captureStream.Start(); err != nil {
		captureStream.Close()
		playbackStream.Close()
		return err
	}
	if err := playbackStream.Start(); err != nil {
		captureStream.Stop()
		captureStream.Close()
		playbackStream.Close()
		return err
	}

	ae.captureStream = captureStream
	ae.playbackStream = playbackStream
	ae.stopCh = make(chan struct{})
	ae.running.Store(true)

	ae.wg.Add(2)
	go func() { defer ae.wg.Done(); ae.captureLoop(captureBuf) }()
	go func() { defer ae.wg.Done(); ae.playbackLoop(playbackBuf) }()

	log.Printf("[audio] started capture=%s playback=%s", inputDev.Name, outputDev.Name)
	return nil
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

// Stop halts capture and playback and releases the PortAudio streams.
//
// Streams are stopped (unblocking any Read/Write in the loop goroutines)
// before the goroutines are joined, and joined before Close — closing a
// stream a goroutine may still be touching would be a use-after-free at the
// native layer.
func (ae *AudioEngine) Stop() {
	if !ae.running.CompareAndSwap(true, false) {
		return
	}
	close(ae.stopCh)

	ae.mu.Lock()
	if ae.captureStream != nil {
		ae.captureStream.Stop()
	}
	if ae.playbackStream != nil {
		ae.playbackStream.Stop()
	}
	ae.mu.Unlock()

	ae.wg.Wait()

	ae.mu.Lock()
	if ae.captureStream != nil {
		ae.captureStream.Close()
		ae.captureStream = nil
	}
	if ae.playbackStream != nil {
		ae.playbackStream.Close()
		ae.playbackStream = nil
	}
	ae.mu.Unlock()

	for {
		select {
		case <-ae.playbackIn:
		default:
			log.Println("[audio] stopped")
			return
		}
	}
}

func zeroFloat32(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

func clampFloat32(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// captureLoop reads 20 ms frames from the device, runs the capture-path DSP
// chain (echo cancellation, noise gate with VAD hint, AGC), and pushes the
// processed PCM to CaptureOut for the media loop to encode.
func (ae *AudioEngine) captureLoop(buf []float32) {
	pcm := make([]int16, FrameSize)

	for ae.running.Load() {
		if err := ae.captureStream.Read(); err != nil {
			if ae.running.Load() {
				log.Printf("[audio] capture read: %v", err)
			}
			return
		}

		if ae.aecEnabled.Load() {
			ae.aecProc.Process(buf)
		}

		preGateRMS := vad.RMS(buf)
		ae.inputLevel.Store(math.Float32bits(preGateRMS))
		ae.gateProc.Process(buf)

		if ae.agcEnabled.Load() {
			ae.agcProc.Process(buf)
		}

		for i, s := range buf {
			pcm[i] = int16(clampFloat32(s) * 32767)
		}

		frame := make([]int16, FrameSize)
		copy(frame, pcm)
		select {
		case ae.CaptureOut <- frame:
		default:
			// Drop the oldest queued frame to make room for the newest.
			select {
			case <-ae.CaptureOut:
			default:
			}
			select {
			case ae.CaptureOut <- frame:
			default:
				ae.captureDropped.Add(1)
			}
		}
	}
}

// PushPlayback queues a decoded PCM frame from sender userID for mixing into
// the next playback tick. Non-blocking: if the sink is full, the frame (and
// only this frame) is dropped — there is no reorder or hold logic.
func (ae *AudioEngine) PushPlayback(userID uint32, pcm []int16) {
	select {
	case ae.playbackIn <- taggedPCM{userID: userID, pcm: pcm}:
	default:
		ae.playbackDropped.Add(1)
	}
}

func (ae *AudioEngine) playbackLoop(buf []float32) {
	for {
		select {
		case <-ae.stopCh:
			return
		default:
		}

		zeroFloat32(buf)

		if !ae.deafened.Load() {
			ae.mu.Lock()
			vol := ae.volume
			ae.mu.Unlock()
			scale := float32(vol) / 32768.0

		drain:
			for {
				select {
				case tf := <-ae.playbackIn:
					n := len(tf.pcm)
					if n > len(buf) {
						n = len(buf)
					}
					for i := 0; i < n; i++ {
						buf[i] = clampFloat32(buf[i] + float32(tf.pcm[i])*scale)
					}
				default:
					break drain
				}
			}
		}

		ae.aecProc.FeedFarEnd(buf)

		if err := ae.playbackStream.Write(); err != nil {
			if ae.running.Load() {
				log.Printf("[audio] playback write: %v", err)
			}
			return
		}
	}
}
