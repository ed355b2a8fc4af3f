package player

// MixerState holds per-track volume, mute and solo as an immutable
// value. Transition methods return a new state; rendering code can
// therefore swap states atomically and tests need no player at all.
type MixerState struct {
	volumes []float64
	muted   []bool
	soloed  int // track index, -1 when no track is soloed
}

// NewMixerState creates a mixer for n tracks, all at full volume,
// unmuted, nothing soloed.
func NewMixerState(n int) MixerState {
	volumes := make([]float64, n)
	for i := range volumes {
		volumes[i] = 1.0
	}
	return MixerState{
		volumes: volumes,
		muted:   make([]bool, n),
		soloed:  -1,
	}
}

// Len returns the number of tracks.
func (m MixerState) Len() int {
	return len(m.volumes)
}

func (m MixerState) clone() MixerState {
	next := MixerState{
		volumes: make([]float64, len(m.volumes)),
		muted:   make([]bool, len(m.muted)),
		soloed:  m.soloed,
	}
	copy(next.volumes, m.volumes)
	copy(next.muted, m.muted)
	return next
}

func (m MixerState) valid(i int) bool {
	return i >= 0 && i < len(m.volumes)
}

// WithVolume returns a state with track i's volume set, clamped to [0,1].
func (m MixerState) WithVolume(i int, volume float64) MixerState {
	if !m.valid(i) {
		return m
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	next := m.clone()
	next.volumes[i] = volume
	return next
}

// ToggleMute returns a state with track i's mute flag flipped.
func (m MixerState) ToggleMute(i int) MixerState {
	if !m.valid(i) {
		return m
	}
	next := m.clone()
	next.muted[i] = !next.muted[i]
	return next
}

// ToggleSolo returns a state with track i soloed. Only one track may be
// soloed: soloing another track clears the previous solo, soloing the
// already-soloed track clears it.
func (m MixerState) ToggleSolo(i int) MixerState {
	if !m.valid(i) {
		return m
	}
	next := m.clone()
	if next.soloed == i {
		next.soloed = -1
	} else {
		next.soloed = i
	}
	return next
}

// Volume returns track i's volume.
func (m MixerState) Volume(i int) float64 {
	if !m.valid(i) {
		return 0
	}
	return m.volumes[i]
}

// Muted returns track i's mute flag.
func (m MixerState) Muted(i int) bool {
	return m.valid(i) && m.muted[i]
}

// Soloed returns the soloed track index, or -1.
func (m MixerState) Soloed() int {
	return m.soloed
}

// Audible reports whether track i produces sound. When any track is
// soloed, only that track is audible regardless of mute flags: solo
// overrides mute.
func (m MixerState) Audible(i int) bool {
	if !m.valid(i) {
		return false
	}
	if m.soloed >= 0 {
		return i == m.soloed
	}
	return !m.muted[i]
}

// Gain returns the effective output gain for track i after folding in
// volume, mute and solo.
func (m MixerState) Gain(i int) float64 {
	if !m.Audible(i) {
		return 0
	}
	return m.volumes[i]
}
