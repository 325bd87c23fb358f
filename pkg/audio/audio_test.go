package audio

import (
	"math"
	"sync"
	"testing"
)

type fakeOutput struct {
	mu      sync.Mutex
	now     float64
	played  map[string]float64
	stopped []string
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{played: make(map[string]float64)}
}

func (f *fakeOutput) Now() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeOutput) Play(id string, samples []float32, sampleRate int, at float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played[id] = at
	return nil
}

func (f *fakeOutput) Stop(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeOutput) Close() error { return nil }

// 构造 n 个采样的静音 PCM16 数据
func silence(n int) []byte {
	return make([]byte, n*2)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 2}
	raw := EncodePCM16(in)
	if len(raw) != len(in)*2 {
		t.Fatalf("unexpected length %d", len(raw))
	}
	out, err := DecodePCM16(raw)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if out[1] != 0.5 || out[2] != -0.5 || out[4] != -1 {
		t.Fatalf("unexpected samples: %v", out)
	}
	// 越界值被截断到最大正值
	if out[5] != out[3] || out[3] <= 0.99 {
		t.Fatalf("expected clamping, got %v", out)
	}

	if _, err := DecodePCM16([]byte{1}); err != ErrOddLength {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
}

func TestSchedulerGaplessPlayback(t *testing.T) {
	out := newFakeOutput()
	s := NewScheduler(out, nil)

	first, err := s.Schedule(silence(OutputSampleRate / 2)) // 0.5s
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	second, err := s.Schedule(silence(OutputSampleRate / 4)) // 0.25s
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if !approx(first.StartAt, 0) || !approx(second.StartAt, 0.5) {
		t.Fatalf("chunks not back-to-back: %v %v", first, second)
	}
	if !approx(s.Cursor(), 0.75) {
		t.Fatalf("unexpected cursor %v", s.Cursor())
	}

	// 时钟已经越过游标时，新音源从当前时间开始
	out.now = 2
	third, err := s.Schedule(silence(OutputSampleRate))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !approx(third.StartAt, 2) || !approx(s.Cursor(), 3) {
		t.Fatalf("expected start at clock, got %v cursor %v", third, s.Cursor())
	}
}

func TestSchedulerIdleAfterLastEnded(t *testing.T) {
	out := newFakeOutput()
	idle := 0
	s := NewScheduler(out, func() { idle++ })

	a, _ := s.Schedule(silence(100))
	b, _ := s.Schedule(silence(100))

	if s.Ended(a.ID) {
		t.Fatal("should not be idle while b is pending")
	}
	if !s.Ended(b.ID) {
		t.Fatal("expected idle after last source ended")
	}
	if idle != 1 {
		t.Fatalf("expected one idle callback, got %d", idle)
	}
	if s.Ended("unknown") {
		t.Fatal("unknown source must be ignored")
	}
}

func TestSchedulerInterruptStopsEverything(t *testing.T) {
	out := newFakeOutput()
	s := NewScheduler(out, nil)

	for i := 0; i < 3; i++ {
		if _, err := s.Schedule(silence(OutputSampleRate)); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	s.Interrupt()

	if s.Pending() != 0 {
		t.Fatalf("expected no pending sources, got %d", s.Pending())
	}
	if s.Cursor() != 0 {
		t.Fatalf("expected cursor reset, got %v", s.Cursor())
	}
	if len(out.stopped) != 3 {
		t.Fatalf("expected 3 stopped sources, got %d", len(out.stopped))
	}

	next, _ := s.Schedule(silence(10))
	if next.StartAt != 0 {
		t.Fatalf("expected clean baseline after interrupt, got %v", next.StartAt)
	}
}
