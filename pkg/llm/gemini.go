package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type geminiClient struct {
	baseURL string
}

// NewGeminiClient 创建基于 Gemini API 的客户端，baseURL 为空时使用官方地址。
// 每次调用按传入的 apiKey 新建底层 genai.Client，会话级密钥不会被缓存。
func NewGeminiClient(baseURL string) Client {
	return &geminiClient{baseURL: baseURL}
}

func (c *geminiClient) newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

func (c *geminiClient) GenerateJSON(ctx context.Context, apiKey string, req JSONRequest) (string, error) {
	client, err := c.newClient(ctx, apiKey)
	if err != nil {
		return "", err
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(req.Schema),
		Temperature:      req.Temperature,
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}

func (c *geminiClient) StreamChat(ctx context.Context, apiKey string, req ChatRequest, writer ChunkWriter) error {
	client, err := c.newClient(ctx, apiKey)
	if err != nil {
		return err
	}

	contents := make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	cfg := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
		if err != nil {
			return fmt.Errorf("failed to read from stream: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := writer.WriteChunk(text); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
	}
	return nil
}

func (c *geminiClient) ConnectLive(ctx context.Context, apiKey string, cfg LiveConfig) (LiveSession, error) {
	client, err := c.newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	liveCfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.Voice != "" {
		liveCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		liveCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}

	session, err := client.Live.Connect(ctx, cfg.Model, liveCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}
	return &geminiLiveSession{session: session}, nil
}

type geminiLiveSession struct {
	session *genai.Session
}

func (s *geminiLiveSession) SendAudio(pcm []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: mimeType},
	})
}

func (s *geminiLiveSession) Receive() (*LiveEvent, error) {
	msg, err := s.session.Receive()
	if err != nil {
		return nil, err
	}
	ev := &LiveEvent{}
	sc := msg.ServerContent
	if sc == nil {
		return ev, nil
	}
	if sc.InputTranscription != nil {
		ev.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		ev.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
				ev.Audio = append(ev.Audio, p.InlineData.Data)
			}
		}
	}
	ev.TurnComplete = sc.TurnComplete
	ev.Interrupted = sc.Interrupted
	return ev, nil
}

func (s *geminiLiveSession) Close() error {
	return s.session.Close()
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}
