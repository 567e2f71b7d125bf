package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"SceneChain-server/config"
	"SceneChain-server/models"

	"github.com/hibiken/asynq"
)

const (
	TypeSceneGenerate = "scene:generate"
	TypeSceneEvaluate = "scene:evaluate"
)

type GeneratePayload struct {
	TaskID    string                   `json:"task_id"`
	ProjectID string                   `json:"project_id"`
	SceneID   string                   `json:"scene_id"`
	Override  *models.SettingsOverride `json:"override,omitempty"`
}

type EvaluatePayload struct {
	TaskID    string `json:"task_id"`
	ProjectID string `json:"project_id"`
	SceneID   string `json:"scene_id"`
	// Credential 仅随任务传递，不写入数据库
	Credential string `json:"credential,omitempty"`
}

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password}
}

// NewGenerateTask 生成任务不自动重试：失败需要用户重新发起
func NewGenerateTask(p GeneratePayload, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeSceneGenerate, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),        // 显卡生成较慢，超时要大于轮询上限
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	), nil
}

// NewEvaluateTask 评估任务带凭证，不在 Redis 保留
func NewEvaluateTask(p EvaluatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeSceneEvaluate, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	), nil
}

// Queue asynq 客户端封装
type Queue struct {
	client          *asynq.Client
	generateTimeout time.Duration
}

func NewQueue(cfg config.RedisConfig, pollTimeout time.Duration) *Queue {
	return &Queue{
		client:          asynq.NewClient(redisOpt(cfg)),
		generateTimeout: pollTimeout + 5*time.Minute,
	}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) EnqueueGenerate(ctx context.Context, p GeneratePayload) error {
	task, err := NewGenerateTask(p, q.generateTimeout)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, p.TaskID)
}

func (q *Queue) EnqueueEvaluate(ctx context.Context, p EvaluatePayload) error {
	task, err := NewEvaluateTask(p)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, p.TaskID)
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, taskID string) error {
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	log.Printf("[Queue] Task Enqueued: Type=%s, TaskID=%s, QueueID=%s", task.Type(), taskID, info.ID)
	return nil
}
