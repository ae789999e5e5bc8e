package client

import (
	"errors"
	"testing"
	"time"
)

func TestBackoffDelaySchedule(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		got := backoffDelay(i + 1)
		if got != w {
			t.Fatalf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffDelayCapsAt30Seconds(t *testing.T) {
	if got := backoffDelay(6); got != 30*time.Second {
		t.Fatalf("attempt 6: got %v, want 30s", got)
	}
	if got := backoffDelay(10); got != 30*time.Second {
		t.Fatalf("attempt 10: got %v, want 30s", got)
	}
}

type fakeDecoder struct {
	calls int
}

func (d *fakeDecoder) Decode(data []byte, pcm []int16) (int, error) {
	d.calls++
	n := copy(pcm, make([]int16, len(data)))
	return n, nil
}

func TestDecoderForReusesExistingDecoder(t *testing.T) {
	as := &activeSession{decoders: make(map[uint32]opusDecoder)}
	want := &fakeDecoder{}
	as.decoders[10] = want

	got, err := as.decoderFor(10)
	if err != nil {
		t.Fatalf("decoderFor: %v", err)
	}
	if got != opusDecoder(want) {
		t.Fatalf("expected the pre-populated decoder to be reused, got a different instance")
	}
}

func TestDecoderForKeepsDecodersSeparatePerUser(t *testing.T) {
	as := &activeSession{decoders: make(map[uint32]opusDecoder)}
	d10 := &fakeDecoder{}
	d11 := &fakeDecoder{}
	as.decoders[10] = d10
	as.decoders[11] = d11

	got10, _ := as.decoderFor(10)
	got11, _ := as.decoderFor(11)
	if got10 == got11 {
		t.Fatalf("expected distinct decoders per sender, got the same instance")
	}
}

type fakeEncoder struct {
	encodeErr error
	out       []byte
}

func (e *fakeEncoder) Encode(pcm []int16, data []byte) (int, error) {
	if e.encodeErr != nil {
		return 0, e.encodeErr
	}
	n := copy(data, e.out)
	return n, nil
}

func TestSendFrameReturnsEncodeError(t *testing.T) {
	c := &Client{}
	as := &activeSession{encoder: &fakeEncoder{encodeErr: errors.New("boom")}}
	p := &ConnectParams{RoomID: 7, UserID: 10}

	err := c.sendFrame(as, p, make([]int16, FrameSize))
	if err == nil {
		t.Fatalf("expected an error from a failing encoder")
	}
}

func TestClientPollEventNonBlockingWhenEmpty(t *testing.T) {
	c := New()
	if _, ok := c.PollEvent(); ok {
		t.Fatalf("expected no event on a fresh client")
	}
}

func TestClientEmitDropsOldestWhenFull(t *testing.T) {
	c := New()
	for i := 0; i < eventBuf; i++ {
		c.emit(Event{Kind: EventAudioError, Detail: "fill"})
	}
	c.emit(Event{Kind: EventConnected})

	var last Event
	for {
		ev, ok := c.PollEvent()
		if !ok {
			break
		}
		last = ev
	}
	if last.Kind != EventConnected {
		t.Fatalf("expected the newest event to survive, got %+v", last)
	}
}

func TestClientSendDropsWhenCommandQueueFull(t *testing.T) {
	c := New()
	for i := 0; i < commandBuf; i++ {
		c.send(Command{Kind: CmdSetMute, Bool: true})
	}
	// One more must not block or panic even though the queue is full.
	c.send(Command{Kind: CmdSetMute, Bool: false})
}

func TestClientSetVideoEnableRejected(t *testing.T) {
	c := New()
	if err := c.SetVideo(true); err == nil {
		t.Fatalf("expected enabling video to return an error")
	}
}

func TestClientSetVideoDisableAccepted(t *testing.T) {
	c := New()
	if err := c.SetVideo(false); err != nil {
		t.Fatalf("expected disabling video to be accepted, got %v", err)
	}
}

func TestClientStartTwiceIsANoop(t *testing.T) {
	c := New()
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	c.Stop()
}

func TestClientStopBeforeStartIsANoop(t *testing.T) {
	c := New()
	c.Stop() // must not panic
}

func TestClientStopIsIdempotent(t *testing.T) {
	c := New()
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop() // must not panic or double-close
}
