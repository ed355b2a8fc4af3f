package player

// Waveform is the rendering collaborator drawing a track's waveform.
// The actual decode/draw work happens in an external library; the
// transport only ever drives this narrow surface. One instance renders
// one track URL: switching tracks destroys the old instance and
// constructs a fresh one.
type Waveform interface {
	// Load begins rendering the media at url.
	Load(url string) error

	// Seek moves the visual playhead to ratio in [0,1].
	Seek(ratio float64)

	// OnInteraction registers the callback invoked with the clicked
	// position ratio when the user seeks via the waveform.
	OnInteraction(func(ratio float64))

	// Destroy releases the rendering resources. The instance must not
	// be used afterwards.
	Destroy()
}

// WaveformFactory constructs a fresh waveform instance per track URL.
type WaveformFactory func() Waveform
