package audio

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Clock 返回输出设备时间轴上的当前时间（秒）
type Clock interface {
	Now() float64
}

// Output 是下行音频的播放设备。Play 在 at 时刻开始播放一段采样，Stop 立即停止指定音源。
// 音源自然播放完毕后，设备需调用 Scheduler.Ended 回报。
type Output interface {
	Clock
	Play(id string, samples []float32, sampleRate int, at float64) error
	Stop(id string) error
	Close() error
}

// Microphone 是上行音频的采集设备，Frames 在设备关闭后关闭。
type Microphone interface {
	Frames() <-chan []float32
	Close() error
}

// Source 描述一个已排程的音源
type Source struct {
	ID       string
	StartAt  float64
	Duration float64
}

// Scheduler 维护单调前进的播放游标，使下行音频块首尾相接、互不重叠地播放。
type Scheduler struct {
	mu      sync.Mutex
	out     Output
	cursor  float64
	pending map[string]Source
	onIdle  func()
}

// NewScheduler 创建排程器，onIdle 在最后一个待播音源结束时调用（不持锁）。
func NewScheduler(out Output, onIdle func()) *Scheduler {
	return &Scheduler{
		out:     out,
		pending: make(map[string]Source),
		onIdle:  onIdle,
	}
}

// Schedule 解码一段 24kHz PCM16 音频并排在游标处播放：start = max(cursor, now)。
func (s *Scheduler) Schedule(pcm []byte) (Source, error) {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return Source{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if now := s.out.Now(); now > start {
		start = now
	}
	src := Source{
		ID:       uuid.NewString(),
		StartAt:  start,
		Duration: Duration(len(samples), OutputSampleRate),
	}
	if err := s.out.Play(src.ID, samples, OutputSampleRate, src.StartAt); err != nil {
		return Source{}, fmt.Errorf("play source: %w", err)
	}
	s.cursor = src.StartAt + src.Duration
	s.pending[src.ID] = src
	return src, nil
}

// Ended 处理音源播放完毕的回报，返回是否因此进入空闲。
func (s *Scheduler) Ended(id string) bool {
	s.mu.Lock()
	if _, ok := s.pending[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, id)
	idle := len(s.pending) == 0
	s.mu.Unlock()

	if idle && s.onIdle != nil {
		s.onIdle()
	}
	return idle
}

// Interrupt 立即停止全部待播音源并把游标归零，用于用户插话。
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	hadPending := len(s.pending) > 0
	for id := range s.pending {
		_ = s.out.Stop(id)
	}
	s.pending = make(map[string]Source)
	s.cursor = 0
	s.mu.Unlock()

	if hadPending && s.onIdle != nil {
		s.onIdle()
	}
}

// Reset 与 Interrupt 相同但不触发 onIdle，用于会话拆除。
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pending {
		_ = s.out.Stop(id)
	}
	s.pending = make(map[string]Source)
	s.cursor = 0
}

// Pending 返回尚未播放完毕的音源数量
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Cursor 返回当前播放游标
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
