package api

import (
	"context"
	"time"

	"SceneChain-server/engine"
	"SceneChain-server/models"
	"SceneChain-server/service"
)

type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	MarkTask(ctx context.Context, taskID, status string, result *models.TaskResult, errMsg string) error
}

type Enqueuer interface {
	EnqueueGenerate(ctx context.Context, p service.GeneratePayload) error
	EnqueueEvaluate(ctx context.Context, p service.EvaluatePayload) error
}

// SceneEngine 进程内的生成状态，由 engine.Engine 实现
type SceneEngine interface {
	Cancel(projectID, sceneID string) bool
	Status(ctx context.Context, projectID string) (*engine.ProjectStatus, error)
}

// Presigner 把片段定位符换成可播放地址，可选
type Presigner interface {
	PresignURL(ctx context.Context, locator string, expiry time.Duration) (string, error)
}

type Handler struct {
	Tasks     TaskStore
	Queue     Enqueuer
	Engine    SceneEngine
	Presigner Presigner
	// PollInterval WebSocket 推送时轮询任务表的间隔
	PollInterval time.Duration
	URLExpiry    time.Duration
}

func NewHandler(tasks TaskStore, queue Enqueuer, eng SceneEngine, presigner Presigner) *Handler {
	return &Handler{
		Tasks:        tasks,
		Queue:        queue,
		Engine:       eng,
		Presigner:    presigner,
		PollInterval: time.Second,
		URLExpiry:    time.Hour,
	}
}
