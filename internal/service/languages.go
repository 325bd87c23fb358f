package service

import "strings"

// CanonicalLanguage 是 AI 生成结构化文本所用的固定语言
const CanonicalLanguage = "en"

// Language 是一种受支持的界面语言
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SupportedLanguages 按展示顺序列出全部受支持语言
var SupportedLanguages = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "hi", Name: "Hindi"},
	{Code: "sw", Name: "Swahili"},
	{Code: "zh", Name: "Chinese"},
}

// NormalizeLanguage 返回规范化的语言代码，未知代码回退到英文。
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	// zh-CN / pt-BR 之类只取主语言
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	for _, l := range SupportedLanguages {
		if l.Code == code {
			return code
		}
	}
	return CanonicalLanguage
}

// LanguageName 返回语言代码对应的英文名称，用于拼装提示词
func LanguageName(code string) string {
	code = NormalizeLanguage(code)
	for _, l := range SupportedLanguages {
		if l.Code == code {
			return l.Name
		}
	}
	return "English"
}
