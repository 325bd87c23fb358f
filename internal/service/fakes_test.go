package service

import (
	"context"
	"errors"
	"sync"

	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/audio"
	"agri-ai-go/pkg/llm"
)

// fakeLLM 记录所有请求，按预设返回结果
type fakeLLM struct {
	mu sync.Mutex

	jsonFn    func(req llm.JSONRequest) (string, error)
	jsonCalls []llm.JSONRequest

	// streamFn 为 nil 时依次写出 chunks 后返回 streamErr
	streamFn    func(ctx context.Context, req llm.ChatRequest, w llm.ChunkWriter) error
	chunks      []string
	streamErr   error
	streamCalls []llm.ChatRequest

	live      *fakeLive
	liveErr   error
	liveCalls []llm.LiveConfig
	apiKeys   []string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, apiKey string, req llm.JSONRequest) (string, error) {
	f.mu.Lock()
	f.jsonCalls = append(f.jsonCalls, req)
	f.apiKeys = append(f.apiKeys, apiKey)
	fn := f.jsonFn
	f.mu.Unlock()
	if fn == nil {
		return "", errors.New("no response configured")
	}
	return fn(req)
}

func (f *fakeLLM) StreamChat(ctx context.Context, apiKey string, req llm.ChatRequest, w llm.ChunkWriter) error {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, req)
	fn, chunks, streamErr := f.streamFn, f.chunks, f.streamErr
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req, w)
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c); err != nil {
			return err
		}
	}
	return streamErr
}

func (f *fakeLLM) ConnectLive(ctx context.Context, apiKey string, cfg llm.LiveConfig) (llm.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCalls = append(f.liveCalls, cfg)
	if f.liveErr != nil {
		return nil, f.liveErr
	}
	return f.live, nil
}

func (f *fakeLLM) jsonCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jsonCalls)
}

func (f *fakeLLM) streamCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streamCalls)
}

// fakeLive 通过 events 通道投递服务端消息
type fakeLive struct {
	events chan *llm.LiveEvent

	mu     sync.Mutex
	sent   [][]byte
	closed bool
	done   chan struct{}
}

func newFakeLive() *fakeLive {
	return &fakeLive{events: make(chan *llm.LiveEvent, 16), done: make(chan struct{})}
}

func (f *fakeLive) SendAudio(pcm []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.sent = append(f.sent, pcm)
	return nil
}

func (f *fakeLive) Receive() (*llm.LiveEvent, error) {
	select {
	case ev, ok := <-f.events:
		if !ok {
			return nil, errors.New("connection reset")
		}
		return ev, nil
	case <-f.done:
		return nil, errors.New("use of closed connection")
	}
}

func (f *fakeLive) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeLive) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeLive) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeMic struct {
	frames chan []float32
	once   sync.Once
	closed chan struct{}
}

func newFakeMic() *fakeMic {
	return &fakeMic{frames: make(chan []float32, 16), closed: make(chan struct{})}
}

func (m *fakeMic) Frames() <-chan []float32 { return m.frames }

func (m *fakeMic) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

type fakeOutput struct {
	mu      sync.Mutex
	now     float64
	played  []string
	stopped []string
	closed  bool
}

func (o *fakeOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Play(id string, samples []float32, sampleRate int, at float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, id)
	return nil
}

func (o *fakeOutput) Stop(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = append(o.stopped, id)
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) playedIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.played...)
}

type fakeDevices struct {
	mic    *fakeMic
	out    *fakeOutput
	micErr error
}

func (d *fakeDevices) OpenMicrophone(ctx context.Context) (audio.Microphone, error) {
	if d.micErr != nil {
		return nil, d.micErr
	}
	return d.mic, nil
}

func (d *fakeDevices) OpenOutput(ctx context.Context) (audio.Output, error) {
	return d.out, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	states      []VoiceState
	transcripts []model.TranscriptMessage
}

func (o *recordingObserver) OnState(s VoiceState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) OnTranscript(m model.TranscriptMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, m)
}

func staticKey(key string) func() string {
	return func() string { return key }
}

func sampleDiagnosis() model.Diagnosis {
	return model.Diagnosis{
		DiseaseName: "Early Blight",
		Confidence:  87.5,
		Severity:    model.SeverityMild,
		Summary:     "Brown concentric lesions on lower leaves.",
		Treatments: []model.Advice{
			{Name: "Prune", Description: "Remove infected leaves."},
			{Name: "Copper spray", Description: "Apply a copper fungicide weekly."},
		},
		PreventionTips: []model.Advice{
			{Name: "Rotate crops", Description: "Do not plant tomatoes in the same bed next year."},
			{Name: "Water at the base", Description: "Keep foliage dry."},
		},
	}
}

const sampleDiagnosisJSON = `{
  "diseaseName": "Early Blight",
  "confidence": 87.5,
  "severity": "Mild",
  "summary": "Brown concentric lesions on lower leaves.",
  "treatments": [
    {"name": "Prune", "description": "Remove infected leaves."},
    {"name": "Copper spray", "description": "Apply a copper fungicide weekly."}
  ],
  "preventionTips": [
    {"name": "Rotate crops", "description": "Do not plant tomatoes in the same bed next year."},
    {"name": "Water at the base", "description": "Keep foliage dry."}
  ]
}`
