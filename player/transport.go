package player

import (
	"fmt"
	"math"

	"trane/types"
)

// TransportState is the global playback state.
type TransportState string

const (
	StatePaused  TransportState = "paused"
	StatePlaying TransportState = "playing"
	StateEnded   TransportState = "ended"
)

// MediaPlayer is the decoding collaborator actually producing sound.
// The transport pushes commands in; the decoder pushes time, duration
// and end-of-track events back through the Handle methods, so nothing
// is polled.
type MediaPlayer interface {
	Load(url string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetRate(rate float64) error
	SetGain(track int, gain float64)
}

// Transport presents the original track plus its stems as a single
// synchronized playback surface: one current track, one clock, one set
// of per-track mixer controls.
type Transport struct {
	tracks []types.Track
	player MediaPlayer

	waveforms WaveformFactory
	waveform  Waveform

	index       int
	currentTime float64
	duration    float64
	rate        float64
	loop        bool
	state       TransportState
	mixer       MixerState
	closed      bool
}

// NewTransport creates a transport over the given tracks, loading the
// first one. The track list must not be empty; the original track comes
// first by convention.
func NewTransport(tracks []types.Track, player MediaPlayer, waveforms WaveformFactory) (*Transport, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("transport needs at least one track")
	}

	t := &Transport{
		tracks:    tracks,
		player:    player,
		waveforms: waveforms,
		rate:      1.0,
		state:     StatePaused,
		mixer:     NewMixerState(len(tracks)),
	}

	if err := t.loadTrack(0); err != nil {
		return nil, err
	}
	t.applyGains()
	return t, nil
}

// loadTrack points the decoder and a fresh waveform at track i. The
// previous waveform instance is torn down first.
func (t *Transport) loadTrack(i int) error {
	track := t.tracks[i]

	if t.waveform != nil {
		t.waveform.Destroy()
		t.waveform = nil
	}

	if err := t.player.Load(track.URL); err != nil {
		return fmt.Errorf("load track %s: %w", track.Name, err)
	}

	t.index = i
	t.currentTime = 0
	t.duration = track.Duration

	if t.waveforms != nil {
		wf := t.waveforms()
		if err := wf.Load(track.URL); err != nil {
			return fmt.Errorf("load waveform for %s: %w", track.Name, err)
		}
		wf.OnInteraction(t.SeekRatio)
		t.waveform = wf
	}

	return nil
}

// Play starts or resumes playback.
func (t *Transport) Play() error {
	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	if err := t.player.Play(); err != nil {
		return err
	}
	t.state = StatePlaying
	return nil
}

// Pause suspends playback.
func (t *Transport) Pause() error {
	if t.closed {
		return fmt.Errorf("transport is closed")
	}
	if err := t.player.Pause(); err != nil {
		return err
	}
	t.state = StatePaused
	return nil
}

// SeekTo moves the playhead to the given time, clamped to [0, duration].
// Non-finite input and unknown duration both land on 0: the playhead is
// never NaN.
func (t *Transport) SeekTo(seconds float64) error {
	seconds = t.clampTime(seconds)
	if err := t.player.Seek(seconds); err != nil {
		return err
	}
	t.currentTime = seconds
	t.syncWaveform()
	return nil
}

// SeekRatio seeks to ratio × duration. Used by the waveform interaction
// callback, so seeking through the view feeds back into transport time.
func (t *Transport) SeekRatio(ratio float64) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 0
	}
	_ = t.SeekTo(ratio * t.duration)
}

func (t *Transport) clampTime(seconds float64) float64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	if t.duration <= 0 || math.IsNaN(t.duration) || math.IsInf(t.duration, 0) {
		return 0
	}
	if seconds < 0 {
		return 0
	}
	if seconds > t.duration {
		return t.duration
	}
	return seconds
}

// SkipTo switches playback to track i, resetting time to 0. Playback
// continues if it was running.
func (t *Transport) SkipTo(i int) error {
	if i < 0 || i >= len(t.tracks) {
		return fmt.Errorf("track index %d out of range", i)
	}

	wasPlaying := t.state == StatePlaying
	if err := t.loadTrack(i); err != nil {
		return err
	}
	if err := t.player.SetRate(t.rate); err != nil {
		return err
	}
	if wasPlaying {
		return t.Play()
	}
	return nil
}

// SetRate changes the playback rate; non-positive rates are rejected.
func (t *Transport) SetRate(rate float64) error {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("invalid playback rate %v", rate)
	}
	if err := t.player.SetRate(rate); err != nil {
		return err
	}
	t.rate = rate
	return nil
}

// ToggleLoop flips the loop flag and returns the new value.
func (t *Transport) ToggleLoop() bool {
	t.loop = !t.loop
	return t.loop
}

// SetVolume sets track i's volume.
func (t *Transport) SetVolume(i int, volume float64) {
	t.mixer = t.mixer.WithVolume(i, volume)
	t.applyGains()
}

// ToggleMute flips track i's mute flag.
func (t *Transport) ToggleMute(i int) {
	t.mixer = t.mixer.ToggleMute(i)
	t.applyGains()
}

// ToggleSolo solos track i exclusively (or clears its solo).
func (t *Transport) ToggleSolo(i int) {
	t.mixer = t.mixer.ToggleSolo(i)
	t.applyGains()
}

func (t *Transport) applyGains() {
	for i := range t.tracks {
		t.player.SetGain(i, t.mixer.Gain(i))
	}
}

// HandleTimeUpdate receives the decoder's clock. Non-finite values are
// treated as 0.
func (t *Transport) HandleTimeUpdate(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	if seconds < 0 {
		seconds = 0
	}
	t.currentTime = seconds
	t.syncWaveform()
}

// HandleDurationChange receives the decoder's duration once metadata is
// loaded. Non-finite values are treated as 0.
func (t *Transport) HandleDurationChange(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	t.duration = seconds
}

// HandleEnded applies the track-end policy: restart when looping,
// advance to the next track when one exists, otherwise stop and report
// ended.
func (t *Transport) HandleEnded() {
	if t.loop {
		_ = t.SeekTo(0)
		_ = t.Play()
		return
	}

	if t.index+1 < len(t.tracks) {
		_ = t.SkipTo(t.index + 1)
		_ = t.Play()
		return
	}

	_ = t.player.Pause()
	t.currentTime = 0
	t.state = StateEnded
}

func (t *Transport) syncWaveform() {
	if t.waveform == nil || t.duration <= 0 {
		return
	}
	t.waveform.Seek(t.currentTime / t.duration)
}

// Close releases the waveform and pauses the decoder. Tearing down the
// owning view without closing leaks a rendering context per mount.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if t.waveform != nil {
		t.waveform.Destroy()
		t.waveform = nil
	}
	return t.player.Pause()
}

// Tracks returns the track list.
func (t *Transport) Tracks() []types.Track { return t.tracks }

// TrackIndex returns the current track index.
func (t *Transport) TrackIndex() int { return t.index }

// CurrentTime returns the playhead position in seconds.
func (t *Transport) CurrentTime() float64 { return t.currentTime }

// Duration returns the current track's duration in seconds.
func (t *Transport) Duration() float64 { return t.duration }

// Rate returns the playback rate.
func (t *Transport) Rate() float64 { return t.rate }

// Looping returns the loop flag.
func (t *Transport) Looping() bool { return t.loop }

// State returns the transport state.
func (t *Transport) State() TransportState { return t.state }

// Mixer returns the current mixer state value.
func (t *Transport) Mixer() MixerState { return t.mixer }
