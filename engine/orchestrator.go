package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SceneChain-server/models"
)

type GenerateRequest struct {
	ProjectID string
	SceneID   string
	// Override 叠加在分镜自身的覆盖设置之上
	Override *models.SettingsOverride
}

type GenerationResult struct {
	Scene     *models.Scene
	JobHandle string
	Seed      SeedKind
	Settings  models.GenerationSettings
	// Durable 为 false 表示片段未能持久化，Scene.ClipUrl 是合成服务的临时地址，
	// 原因见 PersistErr
	Durable    bool
	PersistErr error
	// ContinuityErr 未能保存连续帧时非空
	ContinuityErr error
}

const remoteCancelTimeout = 10 * time.Second

// Generate 驱动单个分镜的合成任务直到完成。结果落库之前的任何失败都不改动分镜记录
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*GenerationResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.generating.begin(req.ProjectID, req.SceneID, cancel) {
		return nil, fmt.Errorf("%w: %s", ErrGenerationInFlight, req.SceneID)
	}
	defer e.generating.end(req.SceneID)

	project, scenes, idx, err := e.loadScene(ctx, req.ProjectID, req.SceneID)
	if err != nil {
		return nil, err
	}
	scene := scenes[idx]
	if strings.TrimSpace(scene.Prompt) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPrompt, scene.ID)
	}

	settings := ResolveSettings(e.cfg.Defaults, project, scene.Settings, req.Override)
	prompt := BuildPrompt(scene.Prompt, scene.Dialogue, scene.CameraDirective)
	seed, err := e.resolver.Resolve(ctx, ResolveInput{Project: project, Scenes: scenes, Index: idx})
	if err != nil {
		return nil, err
	}

	handle, err := e.synth.Submit(ctx, SynthesisRequest{
		ProjectID: project.ID,
		SceneID:   scene.ID,
		Prompt:    prompt,
		Settings:  settings,
		Seed:      seed,
		Duration:  e.clipDuration(&scene),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return nil, fmt.Errorf("submit synthesis job: %w", err)
	}
	e.generating.setJob(scene.ID, handle)
	e.log.Info("synthesis job submitted",
		"project_id", project.ID, "scene_id", scene.ID, "job", handle, "seed", seed.Kind, "model", settings.Model)

	status, err := e.awaitJob(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrPollTimeout) {
			e.cancelRemote(handle)
		}
		e.log.Warn("generation failed", "scene_id", scene.ID, "job", handle, "error", err)
		return nil, err
	}

	// 任务已完成，之后的取消不能丢掉片段
	ctx = context.WithoutCancel(ctx)

	locator, durable, persistErr := e.persistClip(ctx, project.ID, scene.ID, handle, status)
	if locator == "" {
		return nil, fmt.Errorf("persist clip: %w", persistErr)
	}

	now := e.now()
	updated := scene
	updated.Status = models.SceneStatusGenerated
	updated.ClipUrl = locator
	updated.ClipDurable = durable
	updated.SettingsUsed = &settings
	updated.ContinuityFrame = nil
	updated.GeneratedAt = &now
	// 写分镜和删旧评估在同一事务；失败时新片段作废，旧片段/评估/连续帧不动
	if err := e.scenes.CommitGeneration(ctx, &updated); err != nil {
		if durable {
			e.removeClip(ctx, updated.ID, locator)
		}
		return nil, fmt.Errorf("commit generation: %w", err)
	}
	if scene.ClipDurable && scene.ClipUrl != "" && scene.ClipUrl != locator {
		e.removeClip(ctx, scene.ID, scene.ClipUrl)
	}

	res := &GenerationResult{
		Scene:      &updated,
		JobHandle:  handle,
		Seed:       seed.Kind,
		Settings:   settings,
		Durable:    durable,
		PersistErr: persistErr,
	}
	res.ContinuityErr = e.extractContinuity(ctx, &updated, status.Clip)

	e.log.Info("scene generated",
		"project_id", project.ID, "scene_id", scene.ID, "clip", locator, "durable", durable,
		"continuity", res.ContinuityErr == nil)
	return res, nil
}

// awaitJob 按固定间隔轮询直到任务结束、超出轮询预算或 ctx 被取消。
// 轮询请求本身出错时继续重试
func (e *Engine) awaitJob(ctx context.Context, handle string) (JobStatus, error) {
	pollCtx, cancel := context.WithTimeout(ctx, e.cfg.PollTimeout)
	defer cancel()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return JobStatus{}, fmt.Errorf("%w: job %s", ErrCancelled, handle)
			}
			return JobStatus{}, fmt.Errorf("%w: job %s after %s", ErrPollTimeout, handle, e.cfg.PollTimeout)
		case <-ticker.C:
			status, err := e.synth.Poll(pollCtx, handle)
			if err != nil {
				if pollCtx.Err() == nil {
					e.log.Warn("poll failed, retrying", "job", handle, "error", err)
				}
				continue
			}
			if !status.Done {
				continue
			}
			if status.Error != "" {
				return JobStatus{}, &SynthesisError{JobHandle: handle, Message: status.Error}
			}
			return status, nil
		}
	}
}

// persistClip 保存片段，失败时退回临时地址。两者都没有时返回空定位符
func (e *Engine) persistClip(ctx context.Context, projectID, sceneID, handle string, status JobStatus) (string, bool, error) {
	var saveErr error
	if len(status.Clip) > 0 {
		loc, err := e.clips.Save(ctx, projectID, sceneID, handle, status.Clip)
		if err == nil {
			return loc, true, nil
		}
		saveErr = err
	} else {
		saveErr = errors.New("synthesis job returned no clip bytes")
	}
	if status.ClipURL == "" {
		return "", false, saveErr
	}
	e.log.Warn("clip not persisted, using transient locator",
		"scene_id", sceneID, "locator", status.ClipURL, "error", saveErr)
	return status.ClipURL, false, saveErr
}

// removeClip 删除不再被任何分镜引用的片段，失败只记日志
func (e *Engine) removeClip(ctx context.Context, sceneID, locator string) {
	if err := e.clips.Delete(ctx, locator); err != nil {
		e.log.Warn("remove unreferenced clip failed", "scene_id", sceneID, "locator", locator, "error", err)
	}
}

func (e *Engine) cancelRemote(handle string) {
	c, ok := e.synth.(JobCanceler)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteCancelTimeout)
	defer cancel()
	if err := c.Cancel(ctx, handle); err != nil {
		e.log.Warn("cancel remote job failed", "job", handle, "error", err)
	}
}

func (e *Engine) clipDuration(scene *models.Scene) time.Duration {
	if scene.Duration > 0 {
		return time.Duration(scene.Duration * float64(time.Second))
	}
	return e.cfg.DefaultClipDuration
}
