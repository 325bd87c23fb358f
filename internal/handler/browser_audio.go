package handler

import (
	"context"
	"sync"

	"agri-ai-go/internal/model"
	"agri-ai-go/internal/service"
	"agri-ai-go/pkg/audio"
	"agri-ai-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 缓冲约 4 秒的 16kHz 麦克风帧（浏览器每帧 4096 采样），满了丢弃新帧
const micBuffer = 16

// browserAudio 把 WebSocket 另一端的浏览器作为语音会话的音频设备：
// 麦克风帧由浏览器上传，播放指令下发给浏览器执行。
type browserAudio struct {
	out *wsConn

	mu      sync.Mutex
	mic     *browserMicrophone
	speaker *browserOutput
}

func newBrowserAudio(out *wsConn) *browserAudio {
	return &browserAudio{out: out}
}

func (a *browserAudio) OpenMicrophone(ctx context.Context) (audio.Microphone, error) {
	if err := a.out.writeJSON(gin.H{"type": "microphone", "action": "open", "sampleRate": audio.InputSampleRate}); err != nil {
		return nil, err
	}
	mic := &browserMicrophone{out: a.out, frames: make(chan []float32, micBuffer)}
	a.mu.Lock()
	a.mic = mic
	a.mu.Unlock()
	return mic, nil
}

func (a *browserAudio) OpenOutput(ctx context.Context) (audio.Output, error) {
	if err := a.out.writeJSON(gin.H{"type": "output", "action": "open", "sampleRate": audio.OutputSampleRate}); err != nil {
		return nil, err
	}
	speaker := &browserOutput{out: a.out}
	a.mu.Lock()
	a.speaker = speaker
	a.mu.Unlock()
	return speaker, nil
}

// pushFrame 把浏览器上传的一帧采样交给当前麦克风
func (a *browserAudio) pushFrame(samples []float32) {
	a.mu.Lock()
	mic := a.mic
	a.mu.Unlock()
	if mic != nil {
		mic.push(samples)
	}
}

// setClock 记录浏览器 AudioContext 的当前时间
func (a *browserAudio) setClock(now float64) {
	a.mu.Lock()
	speaker := a.speaker
	a.mu.Unlock()
	if speaker != nil {
		speaker.setNow(now)
	}
}

type browserMicrophone struct {
	out    *wsConn
	frames chan []float32

	mu     sync.Mutex
	closed bool
}

func (m *browserMicrophone) Frames() <-chan []float32 { return m.frames }

func (m *browserMicrophone) push(samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.frames <- samples:
	default:
		log.Debugf("麦克风缓冲已满，丢弃 %d 个采样", len(samples))
	}
}

func (m *browserMicrophone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.frames)
	m.mu.Unlock()
	return m.out.writeJSON(gin.H{"type": "microphone", "action": "close"})
}

type browserOutput struct {
	out *wsConn

	mu  sync.Mutex
	now float64
}

func (o *browserOutput) setNow(now float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if now > o.now {
		o.now = now
	}
}

func (o *browserOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Play 把采样重新编码为 PCM16 下发，浏览器在 startAt 时刻开始播放
func (o *browserOutput) Play(id string, samples []float32, sampleRate int, at float64) error {
	return o.out.writeJSON(gin.H{
		"type":       "play",
		"id":         id,
		"startAt":    at,
		"sampleRate": sampleRate,
		"data":       audio.EncodeFrame(samples),
	})
}

func (o *browserOutput) Stop(id string) error {
	return o.out.writeJSON(gin.H{"type": "stop", "id": id})
}

func (o *browserOutput) Close() error {
	return o.out.writeJSON(gin.H{"type": "output", "action": "close"})
}

// wsObserver 把语音会话的状态与记录推送给浏览器
type wsObserver struct {
	out *wsConn
}

func (o wsObserver) OnState(state service.VoiceState) {
	_ = o.out.writeJSON(gin.H{"type": "state", "state": state})
}

func (o wsObserver) OnTranscript(msg model.TranscriptMessage) {
	_ = o.out.writeJSON(gin.H{"type": "transcript", "message": msg})
}
