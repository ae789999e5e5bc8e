package client

import "testing"

func TestClampFloat32(t *testing.T) {
	cases := []struct {
		in, want float32
	}{
		{0, 0},
		{0.5, 0.5},
		{1.5, 1.0},
		{-1.5, -1.0},
		{-0.5, -0.5},
	}
	for _, c := range cases {
		if got := clampFloat32(c.in); got != c.want {
			t.Fatalf("clampFloat32(%v): got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestZeroFloat32(t *testing.T) {
	buf := []float32{1, 2, 3, 4}
	zeroFloat32(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("index %d: got %v, want 0", i, v)
		}
	}
}

func TestSetVolumeClampsToUnitRange(t *testing.T) {
	ae := NewAudioEngine()
	ae.SetVolume(-1)
	if ae.volume != 0 {
		t.Fatalf("expected volume clamped to 0, got %v", ae.volume)
	}
	ae.SetVolume(5)
	if ae.volume != 1 {
		t.Fatalf("expected volume clamped to 1, got %v", ae.volume)
	}
	ae.SetVolume(0.3)
	if ae.volume != 0.3 {
		t.Fatalf("expected volume 0.3, got %v", ae.volume)
	}
}

func TestSetDeafenedTogglesFlag(t *testing.T) {
	ae := NewAudioEngine()
	if ae.deafened.Load() {
		t.Fatalf("expected not deafened by default")
	}
	ae.SetDeafened(true)
	if !ae.deafened.Load() {
		t.Fatalf("expected deafened after SetDeafened(true)")
	}
	ae.SetDeafened(false)
	if ae.deafened.Load() {
		t.Fatalf("expected not deafened after SetDeafened(false)")
	}
}

func TestSetAECTogglesEnabledFlag(t *testing.T) {
	ae := NewAudioEngine()
	ae.SetAEC(true)
	if !ae.aecEnabled.Load() {
		t.Fatalf("expected AEC enabled")
	}
	ae.SetAEC(false)
	if ae.aecEnabled.Load() {
		t.Fatalf("expected AEC disabled")
	}
}

func TestSetAGCTogglesEnabledFlag(t *testing.T) {
	ae := NewAudioEngine()
	ae.SetAGC(true)
	if !ae.agcEnabled.Load() {
		t.Fatalf("expected AGC enabled")
	}
	ae.SetAGC(false)
	if ae.agcEnabled.Load() {
		t.Fatalf("expected AGC disabled")
	}
}

func TestPushPlaybackDeliversFrame(t *testing.T) {
	ae := NewAudioEngine()
	ae.PushPlayback(10, []int16{1, 2, 3})

	select {
	case tf := <-ae.playbackIn:
		if tf.userID != 10 || len(tf.pcm) != 3 {
			t.Fatalf("unexpected queued frame: %+v", tf)
		}
	default:
		t.Fatalf("expected a queued playback frame")
	}
}

func TestPushPlaybackDropsWhenFull(t *testing.T) {
	ae := NewAudioEngine()
	for i := 0; i < playbackChannelBuf; i++ {
		ae.PushPlayback(uint32(i), []int16{0})
	}
	ae.PushPlayback(999, []int16{0}) // one over capacity, must not block

	capture, playback := ae.DroppedFrames()
	if capture != 0 {
		t.Fatalf("expected no capture drops, got %d", capture)
	}
	if playback != 1 {
		t.Fatalf("expected exactly one playback drop, got %d", playback)
	}
}

func TestDroppedFramesResetsCounters(t *testing.T) {
	ae := NewAudioEngine()
	for i := 0; i < playbackChannelBuf+2; i++ {
		ae.PushPlayback(uint32(i), []int16{0})
	}
	capture, playback := ae.DroppedFrames()
	if playback != 2 {
		t.Fatalf("expected 2 drops, got %d", playback)
	}

	capture, playback = ae.DroppedFrames()
	if capture != 0 || playback != 0 {
		t.Fatalf("expected counters reset to 0, got capture=%d playback=%d", capture, playback)
	}
}

func TestInputLevelDefaultsToZero(t *testing.T) {
	ae := NewAudioEngine()
	if ae.InputLevel() != 0 {
		t.Fatalf("expected default input level 0, got %v", ae.InputLevel())
	}
}
