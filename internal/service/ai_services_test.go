package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"agri-ai-go/internal/config"
	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/errorx"
	"agri-ai-go/pkg/llm"
	"agri-ai-go/pkg/media"
)

var testLLMConfig = config.LLMConfig{Model: "gemini-2.5-flash", Generation: config.LLMGenerationConfig{Temperature: 0.2}}

func pngImage() media.InlineData {
	img, _ := media.Encode(strings.NewReader("\x89PNG\r\n\x1a\n0000"), "leaf.png")
	return img
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	fake := &fakeLLM{jsonFn: func(req llm.JSONRequest) (string, error) {
		return "```json\n" + sampleDiagnosisJSON + "\n```", nil
	}}
	svc := NewAnalysisService(NewCredentialService(staticKey("k")), fake, testLLMConfig)

	d, err := svc.Analyze(context.Background(), "sess", pngImage())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.DiseaseName != "Early Blight" || d.Confidence != 87.5 || d.Severity != model.SeverityMild {
		t.Fatalf("unexpected diagnosis %+v", d)
	}

	req := fake.jsonCalls[0]
	if req.Schema == nil || req.Temperature == nil || *req.Temperature != 0.2 {
		t.Fatalf("request must be schema constrained at temperature 0.2: %+v", req)
	}
	if len(req.Images) != 1 || req.Images[0].MIMEType != "image/png" || !strings.HasPrefix(string(req.Images[0].Data), "\x89PNG") {
		t.Fatalf("image part not forwarded: %+v", req.Images)
	}
	if !strings.Contains(req.Prompt, "English") {
		t.Fatal("prompt must request canonical language")
	}
}

func TestParseDiagnosisSkipsBracketedProse(t *testing.T) {
	for _, prefix := range []string{"Result [v1]:\n", "Model {draft} output [1]:\n"} {
		d, err := ParseDiagnosis(prefix + sampleDiagnosisJSON + "\nHope this helps.")
		if err != nil {
			t.Fatalf("%q: %v", prefix, err)
		}
		if d.DiseaseName != "Early Blight" {
			t.Fatalf("%q: unexpected diagnosis %+v", prefix, d)
		}
	}
}

func TestAnalyzeRejectsInvalidResponses(t *testing.T) {
	var base map[string]interface{}
	_ = json.Unmarshal([]byte(sampleDiagnosisJSON), &base)

	mutate := func(f func(m map[string]interface{})) string {
		m := make(map[string]interface{}, len(base))
		for k, v := range base {
			m[k] = v
		}
		f(m)
		b, _ := json.Marshal(m)
		return string(b)
	}

	responses := map[string]string{
		"not json":       "I think it is blight",
		"unknown field":  mutate(func(m map[string]interface{}) { m["extra"] = 1 }),
		"missing field":  mutate(func(m map[string]interface{}) { delete(m, "confidence") }),
		"bad severity":   mutate(func(m map[string]interface{}) { m["severity"] = "Critical" }),
		"confidence 150": mutate(func(m map[string]interface{}) { m["confidence"] = 150 }),
		"one treatment": mutate(func(m map[string]interface{}) {
			m["treatments"] = base["treatments"].([]interface{})[:1]
		}),
	}

	for name, body := range responses {
		body := body
		fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return body, nil }}
		svc := NewAnalysisService(NewCredentialService(staticKey("k")), fake, testLLMConfig)
		_, err := svc.Analyze(context.Background(), "sess", pngImage())
		if !errors.Is(err, errorx.ErrAnalysis) {
			t.Errorf("%s: expected AnalysisError, got %v", name, err)
		}
	}
}

func TestAnalyzeServiceFailureIsAnalysisError(t *testing.T) {
	fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return "", errors.New("503") }}
	svc := NewAnalysisService(NewCredentialService(staticKey("k")), fake, testLLMConfig)

	_, err := svc.Analyze(context.Background(), "sess", pngImage())
	if !errors.Is(err, errorx.ErrAnalysis) {
		t.Fatalf("expected AnalysisError, got %v", err)
	}
	if errorx.UserMessage(err) != "Failed to analyze plant image. The AI model may be temporarily unavailable." {
		t.Fatalf("unexpected user message %q", errorx.UserMessage(err))
	}
	if fake.jsonCallCount() != 1 {
		t.Fatal("analysis must not be retried")
	}
}

func TestAnalyzeWithoutCredentialMakesNoRequest(t *testing.T) {
	fake := &fakeLLM{}
	svc := NewAnalysisService(NewCredentialService(staticKey("")), fake, testLLMConfig)

	_, err := svc.Analyze(context.Background(), "sess", pngImage())
	if !errors.Is(err, errorx.ErrCredential) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if fake.jsonCallCount() != 0 {
		t.Fatal("no request may be sent without a credential")
	}
}

const spanishJSON = `{
  "diseaseName": "Tizón temprano",
  "summary": "Lesiones marrones concéntricas en las hojas inferiores.",
  "treatments": [
    {"name": "Podar", "description": "Retire las hojas infectadas."},
    {"name": "Cobre", "description": "Aplique un fungicida de cobre."}
  ],
  "preventionTips": [
    {"name": "Rotar cultivos", "description": "No plante tomates en el mismo lugar."},
    {"name": "Regar la base", "description": "Mantenga el follaje seco."}
  ]
}`

func TestTranslatePreservesNumericFields(t *testing.T) {
	fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return spanishJSON, nil }}
	svc := NewTranslationService(NewCredentialService(staticKey("k")), fake, nil, testLLMConfig)
	src := sampleDiagnosis()

	out, err := svc.Translate(context.Background(), "sess", src, "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Severity != src.Severity || out.Confidence != src.Confidence {
		t.Fatalf("numeric fields changed: %+v", out)
	}
	if out.DiseaseName != "Tizón temprano" || out.Treatments[0].Name != "Podar" {
		t.Fatalf("text not translated: %+v", out)
	}
	// 原诊断不可变
	if src.Treatments[0].Name != "Prune" {
		t.Fatal("source diagnosis was mutated")
	}

	prompt := fake.jsonCalls[0].Prompt
	if strings.Contains(prompt, "confidence") || strings.Contains(prompt, "severity") {
		t.Fatalf("numeric fields must not be sent: %s", prompt)
	}
	if !strings.Contains(prompt, "Spanish") {
		t.Fatalf("prompt should name the target language: %s", prompt)
	}
}

func TestTranslateToEnglishIsNoop(t *testing.T) {
	fake := &fakeLLM{}
	svc := NewTranslationService(NewCredentialService(staticKey("k")), fake, nil, testLLMConfig)

	out, err := svc.Translate(context.Background(), "sess", sampleDiagnosis(), "en")
	if err != nil || out.DiseaseName != "Early Blight" {
		t.Fatalf("unexpected %+v %v", out, err)
	}
	if fake.jsonCallCount() != 0 {
		t.Fatal("no request expected for canonical language")
	}
}

func TestTranslateShapeMismatchFallsBack(t *testing.T) {
	short := `{"diseaseName":"x","summary":"y","treatments":[{"name":"a","description":"b"}],"preventionTips":[{"name":"a","description":"b"},{"name":"c","description":"d"}]}`
	fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return short, nil }}
	svc := NewTranslationService(NewCredentialService(staticKey("k")), fake, nil, testLLMConfig)

	if _, err := svc.Translate(context.Background(), "sess", sampleDiagnosis(), "fr"); !errors.Is(err, errorx.ErrTranslation) {
		t.Fatalf("expected TranslationError, got %v", err)
	}

	got := svc.TranslateOrOriginal(context.Background(), "sess", sampleDiagnosis(), "fr")
	if got.DiseaseName != "Early Blight" {
		t.Fatalf("expected original diagnosis, got %+v", got)
	}
}

func TestTranslateOrOriginalOnServiceError(t *testing.T) {
	fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return "", errors.New("boom") }}
	svc := NewTranslationService(NewCredentialService(staticKey("k")), fake, nil, testLLMConfig)

	got := svc.TranslateOrOriginal(context.Background(), "sess", sampleDiagnosis(), "de")
	if got.DiseaseName != "Early Blight" || got.Summary != sampleDiagnosis().Summary {
		t.Fatalf("expected untranslated diagnosis, got %+v", got)
	}
}

func TestMatchHealthyShortCircuits(t *testing.T) {
	fake := &fakeLLM{}
	svc := NewMatchService(NewCredentialService(staticKey("k")), fake, testLLMConfig)
	articles := NewKnowledgeService(nil).All()

	for _, name := range []string{"Healthy", "healthy", " HEALTHY "} {
		if ids := svc.Match(context.Background(), "sess", name, articles); len(ids) != 0 {
			t.Fatalf("expected no ids for %q, got %v", name, ids)
		}
	}
	if fake.jsonCallCount() != 0 {
		t.Fatal("healthy diagnosis must not issue a request")
	}
}

func TestMatchWithoutCredentialShortCircuits(t *testing.T) {
	fake := &fakeLLM{}
	svc := NewMatchService(NewCredentialService(staticKey("")), fake, testLLMConfig)

	if ids := svc.Match(context.Background(), "sess", "Powdery Mildew", NewKnowledgeService(nil).All()); len(ids) != 0 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if fake.jsonCallCount() != 0 {
		t.Fatal("no request may be sent without a credential")
	}
}

func TestMatchFiltersUnknownAndDuplicateIDs(t *testing.T) {
	fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return "[1, 42, 1, 3, 4, 2]", nil }}
	svc := NewMatchService(NewCredentialService(staticKey("k")), fake, testLLMConfig)

	ids := svc.Match(context.Background(), "sess", "Powdery Mildew", NewKnowledgeService(nil).All())
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 4 {
		t.Fatalf("unexpected ids %v", ids)
	}

	prompt := fake.jsonCalls[0].Prompt
	if !strings.Contains(prompt, "Understanding Powdery Mildew") || strings.Contains(prompt, "Causes:") {
		t.Fatalf("prompt should carry compact id/title/summary tuples only: %s", prompt)
	}
}

func TestMatchFailureReturnsEmpty(t *testing.T) {
	fake := &fakeLLM{jsonFn: func(llm.JSONRequest) (string, error) { return "", errors.New("boom") }}
	svc := NewMatchService(NewCredentialService(staticKey("k")), fake, testLLMConfig)

	ids := svc.Match(context.Background(), "sess", "Rust", NewKnowledgeService(nil).All())
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", ids)
	}
}

func TestKnowledgeSearch(t *testing.T) {
	k := NewKnowledgeService(nil)

	if got := k.List(""); len(got) != 4 {
		t.Fatalf("expected all 4 articles, got %d", len(got))
	}
	if got := k.List("FUNGAL"); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("category search failed: %+v", got)
	}
	if got := k.List("aphid"); len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("title search failed: %+v", got)
	}
	if _, err := k.Get(99); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if got := k.Lookup([]int{4, 99, 2}); len(got) != 2 || got[0].ID != 4 {
		t.Fatalf("unexpected lookup %+v", got)
	}
}

func TestLanguages(t *testing.T) {
	if NormalizeLanguage("ES") != "es" || NormalizeLanguage("pt-BR") != "pt" || NormalizeLanguage("xx") != "en" {
		t.Fatal("unexpected normalization")
	}
	if LanguageName("sw") != "Swahili" || LanguageName("klingon") != "English" {
		t.Fatal("unexpected language name")
	}
}
