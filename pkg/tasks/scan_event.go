// Package tasks 定义投递到 Kafka 的事件结构。
package tasks

import "time"

// ScanCompletedEvent 在一次扫描分析成功并写入历史后投递
type ScanCompletedEvent struct {
	DeviceID    string    `json:"device_id"`
	EntryID     string    `json:"entry_id"`
	DiseaseName string    `json:"disease_name"`
	Severity    string    `json:"severity"`
	Confidence  float64   `json:"confidence"`
	ImageObject string    `json:"image_object,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
