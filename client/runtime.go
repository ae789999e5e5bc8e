package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/hraban/opus.v2"
)

// maxReconnectAttempts and the backoff schedule implement reconnect with
// backoff: delay before attempt n (1-indexed) is min(2^(n-1), 30) seconds,
// up to 5 attempts.
const maxReconnectAttempts = 5

func backoffDelay(attempt int) time.Duration {
	d := 1 << uint(attempt-1)
	if d > 30 {
		d = 30
	}
	return time.Duration(d) * time.Second
}

// opusEncoder/opusDecoder narrow the hraban/opus.v2 API to what the media
// loop uses, so tests can substitute fakes without a real Opus codec.
type opusEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

type opusDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

const opusMaxPacketBytes = 1275 // RFC 6716 max Opus packet size

// inboundDatagram pairs a received datagram with the read error that ended
// the stream, if any — the read goroutine sends exactly one of the two down
// the same channel per iteration, then exits on error.
type inboundDatagram struct {
	data []byte
	err  error
}

// activeSession holds the QUIC connection, per-frame counters, and the Opus
// codec instances for one successful authentication.
// Decoders are keyed per remote user so interleaved senders never corrupt
// each other's Opus decoder state.
type activeSession struct {
	conn     *session
	encoder  opusEncoder
	decoders map[uint32]opusDecoder

	sequence  atomic.Uint32
	timestamp atomic.Uint32

	inbound chan inboundDatagram
}

func newActiveSession(sess *session, enc opusEncoder) *activeSession {
	as := &activeSession{
		conn:     sess,
		encoder:  enc,
		decoders: make(map[uint32]opusDecoder),
		inbound:  make(chan inboundDatagram, 64),
	}
	return as
}

func (as *activeSession) decoderFor(userID uint32) (opusDecoder, error) {
	if dec, ok := as.decoders[userID]; ok {
		return dec, nil
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	as.decoders[userID] = dec
	return dec, nil
}

// readLoop pumps inbound datagrams (or the terminal read error) into the
// session's inbound channel until the connection is closed or errors.
func (as *activeSession) readLoop(ctx context.Context) {
	for {
		data, err := as.conn.receive(ctx)
		if err != nil {
			select {
			case as.inbound <- inboundDatagram{err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case as.inbound <- inboundDatagram{data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (as *activeSession) close() {
	as.conn.close()
}

// Client is the host-facing embedding API: a single long-lived media loop
// goroutine owns all QUIC/audio state; commands arrive one-way and events
// leave one-way, so the host never blocks on the media loop's internals.
type Client struct {
	cmdCh   chan Command
	eventCh chan Event

	audio *AudioEngine

	ctx     context.Context
	cancel  context.CancelFunc
	loopWg  sync.WaitGroup
	started atomic.Bool
}

// commandBuf and eventBuf are generously sized so Send/emit never block the
// caller in practice — commands are low-rate host control calls, not a
// streaming path, so a bounded buffer with a non-blocking send is enough;
// no need for a truly unbounded queue.
const (
	commandBuf = 64
	eventBuf   = 256
)

// New returns a Client in the Disconnected state. Call Start to launch the
// media loop before issuing commands.
func New() *Client {
	return &Client{
		cmdCh:   make(chan Command, commandBuf),
		eventCh: make(chan Event, eventBuf),
		audio:   NewAudioEngine(),
	}
}

// Start launches the media loop goroutine. Calling Start twice is a no-op.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.loopWg.Add(1)
	go func() {
		defer c.loopWg.Done()
		c.mediaLoop(c.ctx)
	}()
	return nil
}

// Stop cancels the media loop and waits for it, and the audio engine, to
// fully release their resources.
func (c *Client) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.loopWg.Wait()
	c.audio.Stop()
}

// Connect is fire-and-forget: its outcome surfaces as a `connected` or
// `connect_failed` event.
func (c *Client) Connect(p ConnectParams) {
	c.send(Command{Kind: CmdConnect, Connect: p})
}

// Disconnect is fire-and-forget; surfaces as a `disconnected` event.
func (c *Client) Disconnect() {
	c.send(Command{Kind: CmdDisconnect})
}

// SetMute is fire-and-forget.
func (c *Client) SetMute(muted bool) {
	c.send(Command{Kind: CmdSetMute, Bool: muted})
}

// SetDeaf is fire-and-forget.
func (c *Client) SetDeaf(deafened bool) {
	c.send(Command{Kind: CmdSetDeaf, Bool: deafened})
}

// SetVideo enables or disables the video toggle. Video capture is out of
// scope; enabling returns an error synchronously instead of being accepted
// and silently doing nothing. Disabling is always accepted.
func (c *Client) SetVideo(enabled bool) error {
	if enabled {
		return errors.New("not implemented")
	}
	c.send(Command{Kind: CmdSetVideo, Bool: false})
	return nil
}

// PollEvent returns the next queued event, if any. Never blocks.
func (c *Client) PollEvent() (Event, bool) {
	select {
	case ev := <-c.eventCh:
		return ev, true
	default:
		return Event{}, false
	}
}

func (c *Client) send(cmd Command) {
	select {
	case c.cmdCh <- cmd:
	default:
		log.Printf("[media] command queue full, dropping %v", cmd.Kind)
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.eventCh <- ev:
	default:
		// Oldest event makes room for the newest rather than blocking the
		// loop — events are polled informational state, not a reliable log.
		select {
		case <-c.eventCh:
		default:
		}
		select {
		case c.eventCh <- ev:
		default:
		}
	}
}

// mediaLoop is the single task that owns all client I/O and state. It
// alternates between the Disconnected and Connected macro-states.
func (c *Client) mediaLoop(ctx context.Context) {
	var params *ConnectParams
	var sess *activeSession
	var muted, deafened, videoEnabled bool

	for {
		if sess == nil {
			// Disconnected: select on cancel and commands only.
			select {
			case <-ctx.Done():
				return
			case cmd := <-c.cmdCh:
				switch cmd.Kind {
				case CmdConnect:
					p := cmd.Connect
					established, err := c.establish(ctx, p)
					if err != nil {
						c.emit(Event{Kind: EventConnectFailed, Detail: err.Error()})
						continue
					}
					sess = established
					params = &p
					c.emit(Event{Kind: EventConnected})
				default:
					// Disconnect / mute / deaf / video: no-op while disconnected.
				}
			}
			continue
		}

		// Connected: select on cancel, commands, captured PCM, and inbound
		// datagrams.
		select {
		case <-ctx.Done():
			sess.close()
			return

		case cmd := <-c.cmdCh:
			switch cmd.Kind {
			case CmdConnect:
				sess.close()
				sess = nil
				p := cmd.Connect
				established, err := c.establish(ctx, p)
				if err != nil {
					params = nil
					c.emit(Event{Kind: EventConnectFailed, Detail: err.Error()})
					continue
				}
				sess = established
				params = &p
				c.emit(Event{Kind: EventConnected})
			case CmdDisconnect:
				sess.close()
				sess = nil
				params = nil
				c.emit(Event{Kind: EventDisconnected, Detail: "user requested"})
			case CmdSetMute:
				muted = cmd.Bool
			case CmdSetDeaf:
				deafened = cmd.Bool
				c.audio.SetDeafened(deafened)
			case CmdSetVideo:
				videoEnabled = cmd.Bool
				_ = videoEnabled // stub: accepted, never emits media
			}

		case pcm := <-c.audio.CaptureOut:
			if muted {
				continue
			}
			if err := c.sendFrame(sess, params, pcm); err != nil {
				c.emit(Event{Kind: EventAudioError, Detail: err.Error()})
			}

		case in := <-sess.inbound:
			if in.err != nil {
				sess.close()
				sess = nil
				if params != nil {
					c.reconnect(ctx, *params, &sess, &params)
				}
				continue
			}
			if deafened {
				continue
			}
			c.handleInbound(sess, in.data)
		}
	}
}

// establish resolves, dials, authenticates, and starts the audio engine for
// one Connect attempt.
func (c *Client) establish(ctx context.Context, p ConnectParams) (*activeSession, error) {
	sess, err := dial(ctx, p)
	if err != nil {
		return nil, err
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	enc.SetDTX(true)

	if err := c.audio.Start(); err != nil {
		sess.close()
		return nil, fmt.Errorf("start audio: %w", err)
	}

	as := newActiveSession(sess, enc)
	c.loopWg.Add(1)
	go func() {
		defer c.loopWg.Done()
		as.readLoop(ctx)
	}()
	return as, nil
}

// sendFrame encodes one captured PCM frame and sends it as a single
// datagram, advancing the sequence/timestamp counters afterward.
func (c *Client) sendFrame(sess *activeSession, p *ConnectParams, pcm []int16) error {
	buf := make([]byte, opusMaxPacketBytes)
	n, err := sess.encoder.Encode(pcm, buf)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	h := mediaHeader{
		Version:   1,
		MediaType: mediaTypeAudio,
		CodecID:   codecIDOpus,
		Flags:     flagEndOfFrame,
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		Sequence:  sess.sequence.Load(),
		Timestamp: sess.timestamp.Load(),
	}
	hdr := h.encode()

	datagram := make([]byte, headerSize+n)
	copy(datagram, hdr[:])
	copy(datagram[headerSize:], buf[:n])

	if err := sess.conn.send(datagram); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	sess.sequence.Add(1)
	sess.timestamp.Add(FrameSize)
	return nil
}

// handleInbound parses, validates, and decodes one inbound datagram, then
// queues the decoded PCM on the playback sink.
func (c *Client) handleInbound(sess *activeSession, data []byte) {
	h, ok := parseMediaHeader(data)
	if !ok {
		return
	}
	if h.MediaType != mediaTypeAudio {
		return
	}

	dec, err := sess.decoderFor(h.UserID)
	if err != nil {
		c.emit(Event{Kind: EventAudioError, Detail: err.Error()})
		return
	}

	pcm := make([]int16, FrameSize)
	n, err := dec.Decode(payload(data), pcm)
	if err != nil {
		c.emit(Event{Kind: EventAudioError, Detail: err.Error()})
		return
	}

	c.audio.PushPlayback(h.UserID, pcm[:n])
}

// reconnect retries a dropped connection with backoff: up to
// maxReconnectAttempts attempts, sleeping min(2^(n-1), 30) seconds before
// each, using the exact saved ConnectParams. On success it installs the new
// session and emits `connected`; on exhaustion it emits `disconnected` and
// clears the caller's saved params.
func (c *Client) reconnect(ctx context.Context, p ConnectParams, sessOut **activeSession, paramsOut **ConnectParams) {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := backoffDelay(attempt)
		c.emit(Event{Kind: EventReconnecting, Attempt: attempt, DelayS: int(delay / time.Second)})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		established, err := c.establish(ctx, p)
		if err == nil {
			*sessOut = established
			*paramsOut = &p
			c.emit(Event{Kind: EventConnected})
			return
		}
		log.Printf("[media] reconnect attempt %d failed: %v", attempt, err)
	}

	*sessOut = nil
	*paramsOut = nil
	c.emit(Event{Kind: EventDisconnected, Detail: "Reconnection failed after 5 attempts"})
}
