package vdec

// Stats is a snapshot of decoder counters.
type Stats struct {
	// Slots is the frame pool size; the other slot counts add up to it.
	Slots    int
	Idle     int
	Decoding int
	Ready    int
	Acquired int

	// FramesDecoded counts frames that became ready for the consumer.
	FramesDecoded uint64

	// DroppedFrames counts frames that never reached the consumer:
	// ready frames overwritten while the consumer fell behind and frames
	// whose upload failed.
	DroppedFrames uint64

	// Trampled is the part of DroppedFrames that was overwritten.
	Trampled uint64

	// AudioBufferedFrames and AudioBufferedSamples describe the audio ring.
	AudioBufferedFrames  uint32
	AudioBufferedSamples uint32

	Playing bool
	Paused  bool
}

// Stats returns a snapshot of the decoder counters. Counters restart
// with every device context.
func (d *Decoder) Stats() Stats {
	ps := d.pool.Stats()
	st := Stats{
		Slots:         ps.Slots,
		Idle:          ps.Idle,
		Decoding:      ps.Locked,
		Ready:         ps.Ready,
		Acquired:      ps.Acquired,
		FramesDecoded: ps.Published,
		Trampled:      ps.Trampled,
		DroppedFrames: ps.Trampled,
		Playing:       d.running.Load(),
		Paused:        d.paused.Load(),
	}
	if up := d.uploader.Load(); up != nil {
		st.DroppedFrames += up.Stats().Dropped
	}
	if ring := d.ring.Load(); ring != nil {
		st.AudioBufferedFrames = ring.BufferedFrames()
		st.AudioBufferedSamples = ring.BufferedSamples()
	}
	return st
}
