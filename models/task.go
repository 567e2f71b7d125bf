package models

import (
	"database/sql/driver"
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"
)

// 任务状态（在系统中统一使用这些状态）
const (
	// pending: 任务已入队，等待执行器取走执行
	TaskStatusPending = "pending"
	// processing: 任务正在执行中
	TaskStatusProcessing = "processing"
	TaskStatusSuccess    = "finished"
	TaskStatusFailed     = "failed"
	// cancelled: 任务被用户取消（轮询被中断）
	TaskStatusCancelled = "cancelled"

	TaskTypeSceneGenerate = "scene_generate" // 提示词 + 参考图 -> 视频片段
	TaskTypeSceneEvaluate = "scene_evaluate" // 片段 -> 质量评分
)

type Task struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId  string         `gorm:"index;type:varchar(64)" json:"projectId"`
	SceneId    string         `gorm:"index;type:varchar(64)" json:"sceneId"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Message    string         `json:"message"`
	Parameters TaskParameters `gorm:"type:json" json:"parameters"`
	Result     TaskResult     `gorm:"type:json" json:"result"`
	Error      string         `json:"error"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (Task) TableName() string {
	return "task"
}

type TaskParameters struct {
	Override *SettingsOverride `json:"override,omitempty"`
	// WithAudio 评估时是否携带了转写凭证（凭证本身不落库）
	WithAudio bool `json:"with_audio,omitempty"`
}

// TaskResult 仅保留最小资源定位信息
type TaskResult struct {
	ResourceType string  `json:"resource_type"` // "video" | "evaluation"
	ResourceId   string  `json:"resource_id"`
	ResourceUrl  string  `json:"resource_url"`
	Durable      bool    `json:"durable"`
	Overall      float64 `json:"overall,omitempty"`
}

// 实现 driver.Valuer 接口: Go Struct -> JSON String (存入数据库)
func (p TaskParameters) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// 实现 sql.Scanner 接口: JSON String -> Go Struct (从数据库读取)
func (p *TaskParameters) Scan(value interface{}) error {
	return jsonScan(value, p)
}

func (r TaskResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *TaskResult) Scan(value interface{}) error {
	return jsonScan(value, r)
}

func CreateTask(db *gorm.DB, t *Task) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	return db.Create(t).Error
}

func (t *Task) UpdateStatus(db *gorm.DB, status string, result *TaskResult, errMsg string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case TaskStatusProcessing:
		updates["started_at"] = now
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCancelled:
		updates["finished_at"] = now
	}
	if result != nil {
		jsonBytes, err := json.Marshal(result)
		if err != nil {
			log.Printf("序列化任务结果失败: %v", err)
		} else {
			updates["result"] = jsonBytes
		}
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return db.Model(t).Updates(updates).Error
}

func GetTaskByID(db *gorm.DB, taskID string) (*Task, error) {
	var task Task
	if err := db.First(&task, "id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}
