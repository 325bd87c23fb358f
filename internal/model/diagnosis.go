// Package model 包含了应用的数据模型定义。
package model

import (
	"fmt"
	"strings"
)

// Severity 是病害严重程度的四个固定标签
type Severity string

const (
	SeverityHealthy  Severity = "Healthy"
	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// Severities 按病程排序的全部严重程度
var Severities = []Severity{SeverityHealthy, SeverityMild, SeverityModerate, SeveritySevere}

// Valid 判断是否为已知标签
func (s Severity) Valid() bool {
	for _, v := range Severities {
		if s == v {
			return true
		}
	}
	return false
}

// 治疗与预防建议条数的上下限
const (
	MinAdvice = 2
	MaxAdvice = 3
)

// Advice 是一条治疗方案或预防建议
type Advice struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Diagnosis 是一次图像分析的结构化结果，创建后不再修改。
type Diagnosis struct {
	DiseaseName    string   `json:"diseaseName"`
	Confidence     float64  `json:"confidence"`
	Severity       Severity `json:"severity"`
	Summary        string   `json:"summary"`
	Treatments     []Advice `json:"treatments"`
	PreventionTips []Advice `json:"preventionTips"`
}

// Validate 校验分析结果是否满足结构约束
func (d *Diagnosis) Validate() error {
	if strings.TrimSpace(d.DiseaseName) == "" {
		return fmt.Errorf("diseaseName is empty")
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence %v out of range [0,100]", d.Confidence)
	}
	if !d.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", d.Severity)
	}
	if strings.TrimSpace(d.Summary) == "" {
		return fmt.Errorf("summary is empty")
	}
	if err := validateAdvice("treatments", d.Treatments); err != nil {
		return err
	}
	return validateAdvice("preventionTips", d.PreventionTips)
}

func validateAdvice(field string, items []Advice) error {
	if len(items) < MinAdvice || len(items) > MaxAdvice {
		return fmt.Errorf("%s has %d items, want %d-%d", field, len(items), MinAdvice, MaxAdvice)
	}
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" || strings.TrimSpace(it.Description) == "" {
			return fmt.Errorf("%s[%d] has empty name or description", field, i)
		}
	}
	return nil
}

// IsHealthy 判断病害名是否表示健康（忽略大小写与首尾空白）
func IsHealthy(diseaseName string) bool {
	return strings.EqualFold(strings.TrimSpace(diseaseName), "healthy")
}

// Clone 返回深拷贝
func (d Diagnosis) Clone() Diagnosis {
	d.Treatments = append([]Advice(nil), d.Treatments...)
	d.PreventionTips = append([]Advice(nil), d.PreventionTips...)
	return d
}

// HistoryEntry 是一次成功分析的历史记录
type HistoryEntry struct {
	Diagnosis
	ID           string `json:"id"`
	Date         string `json:"date"`
	ImagePreview string `json:"imagePreview"`
}
