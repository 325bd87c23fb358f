package llm

import (
	"encoding/json"
	"strings"
)

// JSON 值的起始符
const (
	AnyJSON    = 0
	JSONObject = '{'
	JSONArray  = '['
)

// StripJSON 去掉模型输出外层的 markdown 代码块与前后说明文字，返回首个完整 JSON 值的文本。
func StripJSON(raw string) string {
	return ExtractJSON(raw, AnyJSON)
}

// ExtractJSON 依次尝试每个以 opener 开头的位置（AnyJSON 表示 { 或 [），
// 返回第一个能完整解码的 JSON 值。都失败时返回去掉代码块后的文本，交给调用方解析报错。
func ExtractJSON(raw string, opener byte) string {
	s := stripFence(raw)
	openers := "{["
	if opener != AnyJSON {
		openers = string(opener)
	}

	for i := 0; i < len(s); i++ {
		if strings.IndexByte(openers, s[i]) < 0 {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v json.RawMessage
		if err := dec.Decode(&v); err == nil {
			return string(v)
		}
	}
	return s
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return s
}
