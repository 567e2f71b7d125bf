package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"SceneChain-server/config"
	"SceneChain-server/engine"
	"SceneChain-server/models"

	"github.com/hibiken/asynq"
)

// SceneRunner 由 engine.Engine 实现
type SceneRunner interface {
	Generate(ctx context.Context, req engine.GenerateRequest) (*engine.GenerationResult, error)
	Evaluate(ctx context.Context, req engine.EvaluateRequest) (*models.Evaluation, error)
}

// TaskRecorder 记录任务状态
type TaskRecorder interface {
	MarkTask(ctx context.Context, taskID, status string, result *models.TaskResult, errMsg string) error
}

// Processor 处理队列任务
type Processor struct {
	Runner SceneRunner
	Tasks  TaskRecorder
}

func NewProcessor(runner SceneRunner, tasks TaskRecorder) *Processor {
	return &Processor{Runner: runner, Tasks: tasks}
}

// Mux 注册任务处理函数
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSceneGenerate, p.HandleSceneGenerate)
	mux.HandleFunc(TypeSceneEvaluate, p.HandleSceneEvaluate)
	return mux
}

// StartProcessor 启动任务消费者，返回的 server 用于关闭
func (p *Processor) StartProcessor(cfg config.RedisConfig, concurrency int) *asynq.Server {
	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	log.Printf("Starting Task Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(p.Mux()); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()
	return srv
}

func (p *Processor) HandleSceneGenerate(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log.Printf("Processing Task: %s | Type: %s | Scene: %s", payload.TaskID, models.TaskTypeSceneGenerate, payload.SceneID)
	p.mark(ctx, payload.TaskID, models.TaskStatusProcessing, nil, "")

	res, err := p.Runner.Generate(ctx, engine.GenerateRequest{
		ProjectID: payload.ProjectID,
		SceneID:   payload.SceneID,
		Override:  payload.Override,
	})
	if err != nil {
		p.fail(ctx, payload.TaskID, err)
		return nil
	}
	if res.PersistErr != nil {
		log.Printf("[Processor] 片段未持久化 scene=%s: %v", payload.SceneID, res.PersistErr)
	}
	if res.ContinuityErr != nil {
		log.Printf("[Processor] 未生成衔接帧 scene=%s: %v", payload.SceneID, res.ContinuityErr)
	}
	p.mark(ctx, payload.TaskID, models.TaskStatusSuccess, &models.TaskResult{
		ResourceType: "video",
		ResourceId:   payload.SceneID,
		ResourceUrl:  res.Scene.ClipUrl,
		Durable:      res.Durable,
	}, "")
	log.Printf("Task %s finished, job=%s seed=%s", payload.TaskID, res.JobHandle, res.Seed)
	return nil
}

func (p *Processor) HandleSceneEvaluate(ctx context.Context, t *asynq.Task) error {
	var payload EvaluatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log.Printf("Processing Task: %s | Type: %s | Scene: %s", payload.TaskID, models.TaskTypeSceneEvaluate, payload.SceneID)
	p.mark(ctx, payload.TaskID, models.TaskStatusProcessing, nil, "")

	ev, err := p.Runner.Evaluate(ctx, engine.EvaluateRequest{
		ProjectID:               payload.ProjectID,
		SceneID:                 payload.SceneID,
		TranscriptionCredential: payload.Credential,
	})
	if err != nil {
		p.fail(ctx, payload.TaskID, err)
		return nil
	}
	p.mark(ctx, payload.TaskID, models.TaskStatusSuccess, &models.TaskResult{
		ResourceType: "evaluation",
		ResourceId:   payload.SceneID,
		Overall:      ev.Overall,
	}, "")
	log.Printf("Task %s finished, overall=%.1f", payload.TaskID, ev.Overall)
	return nil
}

func (p *Processor) fail(ctx context.Context, taskID string, err error) {
	status := models.TaskStatusFailed
	if errors.Is(err, engine.ErrCancelled) {
		status = models.TaskStatusCancelled
	}
	log.Printf("Task %s %s: %v", taskID, status, err)
	p.mark(context.WithoutCancel(ctx), taskID, status, nil, err.Error())
}

func (p *Processor) mark(ctx context.Context, taskID, status string, result *models.TaskResult, errMsg string) {
	if err := p.Tasks.MarkTask(ctx, taskID, status, result, errMsg); err != nil {
		log.Printf("UpdateStatus %s failed: %v", status, err)
	}
}
