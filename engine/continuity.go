package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SceneChain-server/models"
)

// ContinuityOffset 连续帧的抽取时间点，不小于 0
func ContinuityOffset(duration, margin time.Duration) time.Duration {
	if off := duration - margin; off > 0 {
		return off
	}
	return 0
}

// extractContinuity 抽取片段末尾附近的一帧作为分镜的连续帧。
// 失败只记日志并返回，不影响生成结果
func (e *Engine) extractContinuity(ctx context.Context, scene *models.Scene, clip []byte) error {
	if len(clip) == 0 {
		data, err := e.clips.Fetch(ctx, scene.ClipUrl)
		if err != nil {
			return e.continuityFailed(scene, fmt.Errorf("fetch clip: %w", err))
		}
		clip = data
	}

	at := ContinuityOffset(e.clipDuration(scene), e.cfg.ContinuityMargin)
	frame, err := e.media.FrameAt(ctx, clip, at)
	if err != nil {
		return e.continuityFailed(scene, fmt.Errorf("extract frame at %s: %w", at, err))
	}
	if len(frame) == 0 {
		return e.continuityFailed(scene, errors.New("extracted frame is empty"))
	}
	if err := e.scenes.SetContinuityFrame(ctx, scene.ProjectId, scene.ID, frame); err != nil {
		return e.continuityFailed(scene, err)
	}
	scene.ContinuityFrame = frame
	return nil
}

func (e *Engine) continuityFailed(scene *models.Scene, err error) error {
	e.log.Warn("continuity frame unavailable, next scene degrades to prompt only",
		"scene_id", scene.ID, "error", err)
	return err
}
