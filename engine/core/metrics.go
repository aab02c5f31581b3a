package core

const AVG_COUNT uint8 = 30

// CommitStats counts what a context pushed to (or spared) the native API.
type CommitStats struct {
	// Native calls issued by commits, unbinds and draws.
	NativeCalls uint64
	// Slots that were already bound and needed no native call.
	SkippedSlots uint64
	// Slots that were cleared because a resource changed role or was destroyed.
	UnboundSlots uint64
	Draws        uint64
	Dispatches   uint64
}

func (s *CommitStats) Add(o CommitStats) {
	s.NativeCalls += o.NativeCalls
	s.SkippedSlots += o.SkippedSlots
	s.UnboundSlots += o.UnboundSlots
	s.Draws += o.Draws
	s.Dispatches += o.Dispatches
}

type Metrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	// Stats of the frame in flight and of every finished frame.
	Frame CommitStats
	Total CommitStats
}

func NewMetrics() *Metrics {
	return &Metrics{
		MStimes: [AVG_COUNT]float64{0},
	}
}

// Record adds context stats to the frame in flight.
func (m *Metrics) Record(s CommitStats) {
	m.Frame.Add(s)
}

// Update closes the current frame.
func (m *Metrics) Update(frame_elapsed_time float64) {
	// Calculate frame ms average
	frame_ms := (frame_elapsed_time * 1000.0)
	m.MStimes[m.FrameAVGCounter] = frame_ms
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}

		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frame_ms
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++

	m.Total.Add(m.Frame)
	m.Frame = CommitStats{}
}

func (m *Metrics) FrameTime() float64 {
	return m.MSavg
}
