package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SubScore 单项评分（0-100）及分析文本
type SubScore struct {
	Score    float64 `json:"score"`
	Analysis string  `json:"analysis"`
}

// AudioScore 对白比对评分，附带转写文本
type AudioScore struct {
	SubScore
	Transcript string `json:"transcript"`
}

// Evaluation 每个分镜至多一条，新一轮评估整体替换
type Evaluation struct {
	SceneId     string      `gorm:"primaryKey;type:varchar(64)" json:"sceneId"`
	ProjectId   string      `gorm:"index;type:varchar(64)" json:"projectId"`
	ClipUrl     string      `gorm:"type:varchar(1024)" json:"clipUrl"` // 被评分的片段
	FirstFrame  SubScore    `gorm:"type:json" json:"firstFrame"`
	LastFrame   SubScore    `gorm:"type:json" json:"lastFrame"`
	Audio       *AudioScore `gorm:"type:json" json:"audio,omitempty"`
	Overall     float64     `json:"overall"`
	EvaluatedAt time.Time   `json:"evaluatedAt"`
}

func (Evaluation) TableName() string {
	return "evaluation"
}

func (s SubScore) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *SubScore) Scan(value interface{}) error {
	return jsonScan(value, s)
}

func (a AudioScore) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *AudioScore) Scan(value interface{}) error {
	return jsonScan(value, a)
}
