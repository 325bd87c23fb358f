package service

import (
	"encoding/json"
	"fmt"

	"agri-ai-go/internal/model"
	"agri-ai-go/pkg/llm"
)

const analysisPrompt = `Analyze this image of a plant leaf/stem/fruit. You are a world-class plant pathologist AI.
1. Identify the plant disease, if any. If the plant is healthy, state that.
2. Provide a confidence score (0-100) for your diagnosis.
3. Assess the severity as 'Mild', 'Moderate', 'Severe', or 'Healthy'.
4. Provide a brief, one-paragraph summary of the findings.
5. Suggest 2-3 specific treatment methods with short descriptions.
6. List 2-3 actionable prevention tips with short descriptions.

Write every text field in English.
Your response MUST be a single, valid JSON object matching the provided schema. Do not include any markdown formatting.`

const translationPromptTemplate = `Translate the string values of the following JSON object into %s.
Keep every key unchanged, keep the arrays the same length and in the same order, and do not add or remove fields.
Return only the translated JSON object.

%s`

const matchPromptTemplate = `A plant was diagnosed with: %s.
From the articles below, pick the 2 or 3 that are most relevant to this diagnosis, most relevant first.
Return only a JSON array of the chosen article ids.

%s`

const generalChatInstruction = `You are Agri-AI, a friendly and knowledgeable agricultural assistant.
Help farmers and gardeners with plant health, pests, soil and crop management.
Keep answers practical and concise. Always respond in %s.`

const diagnosisChatInstruction = `You are Agri-AI, an expert plant pathologist assistant.
The user has just received the following diagnosis for their plant:
%s
Answer the user's follow-up questions about this diagnosis, its treatments and its prevention.
Keep answers practical and concise. Always respond in %s.`

const voiceInstruction = `You are Agri-AI, a plant pathologist talking with a farmer by voice.
The farmer's plant was diagnosed as follows:
%s
Discuss the diagnosis, treatments and prevention in short spoken sentences. Always speak in %s.`

func adviceSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeArray,
		Items: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"name":        {Type: llm.TypeString},
				"description": {Type: llm.TypeString},
			},
			Required: []string{"name", "description"},
		},
	}
}

func diagnosisSchema() *llm.Schema {
	severities := make([]string, 0, len(model.Severities))
	for _, s := range model.Severities {
		severities = append(severities, string(s))
	}
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"diseaseName":    {Type: llm.TypeString, Description: "Name of the disease or 'Healthy'"},
			"confidence":     {Type: llm.TypeNumber, Description: "Confidence score from 0 to 100"},
			"severity":       {Type: llm.TypeString, Enum: severities},
			"summary":        {Type: llm.TypeString, Description: "A brief summary of the diagnosis."},
			"treatments":     adviceSchema(),
			"preventionTips": adviceSchema(),
		},
		Required: []string{"diseaseName", "confidence", "severity", "summary", "treatments", "preventionTips"},
	}
}

func translatableSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"diseaseName":    {Type: llm.TypeString},
			"summary":        {Type: llm.TypeString},
			"treatments":     adviceSchema(),
			"preventionTips": adviceSchema(),
		},
		Required: []string{"diseaseName", "summary", "treatments", "preventionTips"},
	}
}

func articleIDsSchema() *llm.Schema {
	return &llm.Schema{
		Type:  llm.TypeArray,
		Items: &llm.Schema{Type: llm.TypeInteger},
	}
}

func diagnosisJSON(d model.Diagnosis) string {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return d.DiseaseName
	}
	return string(b)
}

// GeneralChatInstruction 返回通用助手的系统指令
func GeneralChatInstruction(language string) string {
	return fmt.Sprintf(generalChatInstruction, LanguageName(language))
}

// DiagnosisChatInstruction 返回以诊断结果为上下文的系统指令
func DiagnosisChatInstruction(d model.Diagnosis, language string) string {
	return fmt.Sprintf(diagnosisChatInstruction, diagnosisJSON(d), LanguageName(language))
}

// VoiceInstruction 返回语音助手的系统指令
func VoiceInstruction(d model.Diagnosis, language string) string {
	return fmt.Sprintf(voiceInstruction, diagnosisJSON(d), LanguageName(language))
}
