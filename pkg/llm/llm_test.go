package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                                  `{"a":1}`,
		"```json\n{\"a\":1}\n```":                  `{"a":1}`,
		"Here is the result:\n{\"a\":{\"b\":2}} ok": `{"a":{"b":2}}`,
		"  [1,2,3]  ":                              `[1,2,3]`,
		"no json here":                             "no json here",
		"Result [v1]:\n{\"a\":1}":                  `{"a":1}`,
		"see {note} then [1, 2]":                   `[1, 2]`,
	}
	for in, want := range cases {
		if got := StripJSON(in); got != want {
			t.Errorf("StripJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractJSONHonoursOpener(t *testing.T) {
	raw := "Version [2] result:\n{\"name\":\"x\"} and ids [3, 1]"
	if got := ExtractJSON(raw, JSONObject); got != `{"name":"x"}` {
		t.Errorf("object: got %q", got)
	}
	if got := ExtractJSON(raw, JSONArray); got != `[2]` {
		t.Errorf("array: got %q", got)
	}
	if got := ExtractJSON("ids: {bad} [3, 1]", JSONArray); got != `[3, 1]` {
		t.Errorf("array after prose: got %q", got)
	}
	if got := ExtractJSON("```json\n[1]\n```", JSONObject); got != "[1]" {
		t.Errorf("no object falls back to unfenced text, got %q", got)
	}
}

func TestGenerateJSONSendsPromptAndReturnsText(t *testing.T) {
	var gotPath, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":true}"}]}}]}`)
	}))
	defer ts.Close()

	c := NewGeminiClient(ts.URL)
	text, err := c.GenerateJSON(context.Background(), "test-key", JSONRequest{
		Model:  "gemini-2.5-flash",
		Prompt: "diagnose this leaf",
		Images: []Image{{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
		Schema: &Schema{
			Type:       TypeObject,
			Properties: map[string]*Schema{"ok": {Type: "BOOLEAN"}},
		},
		Temperature: Float32(0.2),
	})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if text != `{"ok":true}` {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.HasSuffix(gotPath, "gemini-2.5-flash:generateContent") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotBody, "diagnose this leaf") {
		t.Fatalf("prompt missing from request body: %s", gotBody)
	}
}

func TestGenerateJSONServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewGeminiClient(ts.URL)
	if _, err := c.GenerateJSON(context.Background(), "k", JSONRequest{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestChunkWriterFunc(t *testing.T) {
	var b strings.Builder
	w := ChunkWriterFunc(func(s string) error {
		b.WriteString(s)
		return nil
	})
	_ = w.WriteChunk("a")
	_ = w.WriteChunk("b")
	if b.String() != "ab" {
		t.Fatalf("unexpected %q", b.String())
	}
}
