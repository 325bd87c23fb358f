package service

import (
	"context"
	"strings"
	"sync"

	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/audio"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/log"

	"go.uber.org/zap"
)

// VoiceState 是语音会话的状态
type VoiceState string

const (
	VoiceOffline    VoiceState = "OFFLINE"
	VoiceConnecting VoiceState = "CONNECTING"
	VoiceListening  VoiceState = "LISTENING"
	VoiceSpeaking   VoiceState = "SPEAKING"
	VoiceError      VoiceState = "ERROR"
)

// 语音会话写入记录的说明文案
const (
	VoiceNoCredentialMessage = "The voice assistant needs an API key. Add one in Settings and try again."
	VoiceNoDiagnosisMessage  = "Scan a plant first so the voice assistant knows what to talk about."
	VoiceErrorMessage        = "The voice assistant ran into a problem. Close it and open it again to retry."
)

// AudioDevices 提供一次语音会话所用的音频设备
type AudioDevices interface {
	OpenMicrophone(ctx context.Context) (audio.Microphone, error)
	OpenOutput(ctx context.Context) (audio.Output, error)
}

// VoiceObserver 接收会话状态与记录的变化，回调时不持有会话锁
type VoiceObserver interface {
	OnState(state VoiceState)
	OnTranscript(msg model.TranscriptMessage)
}

// VoiceConfig 是实时语音连接的参数
type VoiceConfig struct {
	Model string
	Voice string
}

// VoiceSession 是一次以诊断为上下文的实时语音会话。
// 出错后停留在 ERROR，只能由用户 Close 后重新 Start。
type VoiceSession struct {
	credentials CredentialService
	llmClient   llm.Client
	devices     AudioDevices
	observer    VoiceObserver
	cfg         VoiceConfig
	sessionID   string
	logger      *zap.SugaredLogger

	mu         sync.Mutex
	state      VoiceState
	transcript []model.TranscriptMessage
	inputText  strings.Builder
	outputText strings.Builder

	// 每次 Start 获取的资源，由 release 统一释放
	live      llm.LiveSession
	mic       audio.Microphone
	out       audio.Output
	scheduler *audio.Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	// generation 在每次 release 时递增，用于让旧连接上的事件失效
	generation uint64
}

// NewVoiceSession 创建处于 OFFLINE 状态的语音会话
func NewVoiceSession(credentials CredentialService, llmClient llm.Client, devices AudioDevices, observer VoiceObserver, cfg VoiceConfig, sessionID string) *VoiceSession {
	if observer == nil {
		observer = nopObserver{}
	}
	return &VoiceSession{
		credentials: credentials,
		llmClient:   llmClient,
		devices:     devices,
		observer:    observer,
		cfg:         cfg,
		sessionID:   sessionID,
		logger:      log.With("voiceSession", sessionID),
		state:       VoiceOffline,
	}
}

// State 返回当前状态
func (s *VoiceSession) State() VoiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript 返回当前记录的副本
func (s *VoiceSession) Transcript() []model.TranscriptMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TranscriptMessage(nil), s.transcript...)
}

// Start 获取麦克风、打开实时连接并进入 LISTENING。
// 未配置凭证或没有诊断时保持 OFFLINE，并写入一条说明。
func (s *VoiceSession) Start(ctx context.Context, diagnosis *model.Diagnosis, language string) error {
	s.mu.Lock()
	if s.state != VoiceOffline {
		state := s.state
		s.mu.Unlock()
		return errorx.VoiceSession("The voice assistant is already "+strings.ToLower(string(state))+".", nil)
	}
	apiKey, credErr := s.credentials.Require(s.sessionID)
	if credErr != nil || diagnosis == nil {
		text := VoiceNoDiagnosisMessage
		if credErr != nil {
			text = VoiceNoCredentialMessage
		}
		msg := s.appendLocked(model.RoleModel, text)
		s.mu.Unlock()
		s.observer.OnTranscript(msg)
		if credErr != nil {
			return credErr
		}
		return errorx.VoiceSession(text, nil)
	}
	s.state = VoiceConnecting
	gen := s.generation
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()
	s.observer.OnState(VoiceConnecting)

	mic, err := s.devices.OpenMicrophone(ctx)
	if err != nil {
		return s.failStart(gen, errorx.VoiceSession("Microphone access was denied.", err))
	}
	if !s.attach(gen, func() { s.mic = mic }) {
		_ = mic.Close()
		return errorx.VoiceSession("The voice assistant was closed.", nil)
	}

	out, err := s.devices.OpenOutput(ctx)
	if err != nil {
		return s.failStart(gen, errorx.VoiceSession("Audio playback is unavailable.", err))
	}
	if !s.attach(gen, func() {
		s.out = out
		s.scheduler = audio.NewScheduler(out, s.onPlaybackIdle)
	}) {
		_ = out.Close()
		return errorx.VoiceSession("The voice assistant was closed.", nil)
	}

	live, err := s.llmClient.ConnectLive(ctx, apiKey, llm.LiveConfig{
		Model:             s.cfg.Model,
		SystemInstruction: VoiceInstruction(*diagnosis, language),
		Voice:             s.cfg.Voice,
	})
	if err != nil {
		return s.failStart(gen, errorx.VoiceSession("Could not connect to the voice service.", err))
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		_ = live.Close()
		return errorx.VoiceSession("The voice assistant was closed.", nil)
	}
	s.live = live
	s.state = VoiceListening
	s.wg.Add(2)
	go s.pumpMicrophone(runCtx, mic, live)
	go s.receiveLoop(runCtx, gen, live)
	s.mu.Unlock()

	s.logger.Infof("语音会话已连接，语言: %s", LanguageName(language))
	s.observer.OnState(VoiceListening)
	return nil
}

// attach 在会话未被关闭时保存资源
func (s *VoiceSession) attach(gen uint64, set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false
	}
	set()
	return true
}

func (s *VoiceSession) failStart(gen uint64, err error) error {
	s.fail(gen, err)
	return err
}

// pumpMicrophone 把每一帧麦克风采样编码为 16kHz PCM16 后直接发送，不等待确认
func (s *VoiceSession) pumpMicrophone(ctx context.Context, mic audio.Microphone, live llm.LiveSession) {
	defer s.wg.Done()
	frames := mic.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if len(frame) == 0 {
				continue
			}
			if err := live.SendAudio(audio.EncodePCM16(frame), audio.InputMIMEType); err != nil {
				s.logger.Debugf("发送音频帧失败: %v", err)
			}
		}
	}
}

func (s *VoiceSession) receiveLoop(ctx context.Context, gen uint64, live llm.LiveSession) {
	defer s.wg.Done()
	for {
		ev, err := live.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(gen, errorx.VoiceSession("The voice connection was lost.", err))
			return
		}
		s.handleEvent(gen, ev)
	}
}

func (s *VoiceSession) handleEvent(gen uint64, ev *llm.LiveEvent) {
	// 插话：立即停止全部待播音源并把游标归零，onIdle 会把状态切回 LISTENING
	if ev.Interrupted {
		s.mu.Lock()
		scheduler := s.scheduler
		stale := s.generation != gen
		s.mu.Unlock()
		if !stale && scheduler != nil {
			scheduler.Interrupt()
		}
	}

	var (
		committed []model.TranscriptMessage
		speaking  bool
	)
	s.mu.Lock()
	if s.generation != gen || (s.state != VoiceListening && s.state != VoiceSpeaking) {
		s.mu.Unlock()
		return
	}

	s.inputText.WriteString(ev.InputTranscript)
	s.outputText.WriteString(ev.OutputTranscript)

	for _, chunk := range ev.Audio {
		if _, err := s.scheduler.Schedule(chunk); err != nil {
			s.logger.Warnf("排程下行音频失败: %v", err)
			continue
		}
		if s.state != VoiceSpeaking {
			s.state = VoiceSpeaking
			speaking = true
		}
	}

	if ev.TurnComplete {
		if text := strings.TrimSpace(s.inputText.String()); text != "" {
			committed = append(committed, s.appendLocked(model.RoleUser, text))
		}
		if text := strings.TrimSpace(s.outputText.String()); text != "" {
			committed = append(committed, s.appendLocked(model.RoleModel, text))
		}
		s.inputText.Reset()
		s.outputText.Reset()
	}
	s.mu.Unlock()

	if speaking {
		s.observer.OnState(VoiceSpeaking)
	}
	for _, msg := range committed {
		s.observer.OnTranscript(msg)
	}
}

// PlaybackEnded 由输出设备在音源自然播放完毕时调用
func (s *VoiceSession) PlaybackEnded(id string) {
	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()
	if scheduler != nil {
		scheduler.Ended(id)
	}
}

func (s *VoiceSession) onPlaybackIdle() {
	s.mu.Lock()
	if s.state != VoiceSpeaking {
		s.mu.Unlock()
		return
	}
	s.state = VoiceListening
	s.mu.Unlock()
	s.observer.OnState(VoiceListening)
}

// Fail 由外部（例如浏览器拒绝麦克风权限）报告当前连接的致命错误
func (s *VoiceSession) Fail(err error) {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.fail(gen, errorx.VoiceSession("The voice assistant ran into a problem.", err))
}

// fail 进入 ERROR 并写入一条说明，同时释放全部资源。
func (s *VoiceSession) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.generation != gen || s.state == VoiceOffline || s.state == VoiceError {
		s.mu.Unlock()
		return
	}
	s.state = VoiceError
	msg := s.appendLocked(model.RoleModel, VoiceErrorMessage)
	res := s.detachLocked()
	s.mu.Unlock()

	s.logger.Errorw("语音会话出错", "error", err)
	res.close()
	s.observer.OnState(VoiceError)
	s.observer.OnTranscript(msg)
}

// Close 无条件拆除会话并回到 OFFLINE，可重复调用。
func (s *VoiceSession) Close() {
	s.mu.Lock()
	prev := s.state
	res := s.detachLocked()
	s.state = VoiceOffline
	s.inputText.Reset()
	s.outputText.Reset()
	s.mu.Unlock()

	res.close()
	s.wg.Wait()
	if prev != VoiceOffline {
		s.logger.Info("语音会话已关闭")
		s.observer.OnState(VoiceOffline)
	}
}

type voiceResources struct {
	cancel    context.CancelFunc
	live      llm.LiveSession
	mic       audio.Microphone
	out       audio.Output
	scheduler *audio.Scheduler
}

// detachLocked 取走当前资源并使旧连接上的回调失效
func (s *VoiceSession) detachLocked() voiceResources {
	res := voiceResources{cancel: s.cancel, live: s.live, mic: s.mic, out: s.out, scheduler: s.scheduler}
	s.cancel, s.live, s.mic, s.out, s.scheduler = nil, nil, nil, nil, nil
	s.generation++
	return res
}

// close 依次关闭连接、麦克风、待播音源与输出设备，忽略各自的错误
func (r voiceResources) close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.live != nil {
		_ = r.live.Close()
	}
	if r.mic != nil {
		_ = r.mic.Close()
	}
	if r.scheduler != nil {
		r.scheduler.Reset()
	}
	if r.out != nil {
		_ = r.out.Close()
	}
}

func (s *VoiceSession) appendLocked(role, text string) model.TranscriptMessage {
	msg := model.TranscriptMessage{Role: role, Text: text}
	s.transcript = append(s.transcript, msg)
	return msg
}

type nopObserver struct{}

func (nopObserver) OnState(VoiceState)                  {}
func (nopObserver) OnTranscript(model.TranscriptMessage) {}
