package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SceneChain-server/models"

	"golang.org/x/sync/errgroup"
)

type EvaluateRequest struct {
	ProjectID string
	SceneID   string
	// TranscriptionCredential 非空且分镜有台词时才评估音频
	TranscriptionCredential string
}

// Evaluate 给分镜片段打分并整体替换旧评估。任一子步骤失败则中止，不写入。
// 生成进行中的分镜不接受评估；评分期间片段被替换时结果丢弃（ErrClipChanged）
func (e *Engine) Evaluate(ctx context.Context, req EvaluateRequest) (*models.Evaluation, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.evaluating.begin(req.ProjectID, req.SceneID, cancel) {
		return nil, fmt.Errorf("%w: %s", ErrEvaluationInFlight, req.SceneID)
	}
	defer e.evaluating.end(req.SceneID)
	if _, ok := e.generating.get(req.SceneID); ok {
		return nil, fmt.Errorf("%w: %s", ErrGenerationInFlight, req.SceneID)
	}

	_, scenes, idx, err := e.loadScene(ctx, req.ProjectID, req.SceneID)
	if err != nil {
		return nil, err
	}
	scene := scenes[idx]
	if scene.Status != models.SceneStatusGenerated || scene.ClipUrl == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoClip, scene.ID)
	}

	clip, err := e.clips.Fetch(ctx, scene.ClipUrl)
	if err != nil {
		return nil, &EvaluationError{Step: StepFetchClip, Err: err}
	}
	first, err := e.media.FrameAt(ctx, clip, 0)
	if err != nil {
		return nil, &EvaluationError{Step: StepExtractFrames, Err: err}
	}
	last, err := e.media.LastFrame(ctx, clip)
	if err != nil {
		return nil, &EvaluationError{Step: StepExtractFrames, Err: err}
	}

	var transcriber Transcriber
	if req.TranscriptionCredential != "" && strings.TrimSpace(scene.Dialogue) != "" && e.newTranscriber != nil {
		transcriber, err = e.newTranscriber(req.TranscriptionCredential)
		if err != nil {
			return nil, &EvaluationError{Step: StepTranscribe, Err: err}
		}
	}

	var firstScore, lastScore models.SubScore
	var audio *models.AudioScore
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.vision.ScoreFrame(gctx, first, scene.Prompt)
		if err != nil {
			return &EvaluationError{Step: StepScoreFirst, Err: err}
		}
		firstScore = clampSubScore(s)
		return nil
	})
	g.Go(func() error {
		s, err := e.vision.ScoreFrame(gctx, last, scene.Prompt)
		if err != nil {
			return &EvaluationError{Step: StepScoreLast, Err: err}
		}
		lastScore = clampSubScore(s)
		return nil
	})
	if transcriber != nil {
		g.Go(func() error {
			a, err := e.scoreAudio(gctx, transcriber, clip, scene.Dialogue)
			if err != nil {
				return err
			}
			audio = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Warn("evaluation aborted", "scene_id", scene.ID, "error", err)
		return nil, err
	}

	scores := []float64{firstScore.Score, lastScore.Score}
	if audio != nil {
		scores = append(scores, audio.Score)
	}
	ev := &models.Evaluation{
		SceneId:     scene.ID,
		ProjectId:   scene.ProjectId,
		ClipUrl:     scene.ClipUrl,
		FirstFrame:  firstScore,
		LastFrame:   lastScore,
		Audio:       audio,
		Overall:     OverallScore(scores...),
		EvaluatedAt: e.now(),
	}
	if err := e.evals.SaveEvaluation(ctx, scene.ProjectId, scene.ID, ev); err != nil {
		if errors.Is(err, ErrClipChanged) {
			e.log.Warn("clip replaced during evaluation, result dropped", "scene_id", scene.ID, "clip", scene.ClipUrl)
		}
		return nil, &EvaluationError{Step: StepSaveEvaluation, Err: err}
	}
	e.log.Info("scene evaluated", "scene_id", scene.ID, "overall", ev.Overall, "audio", audio != nil)
	return ev, nil
}

func (e *Engine) scoreAudio(ctx context.Context, t Transcriber, clip []byte, dialogue string) (*models.AudioScore, error) {
	track, err := e.media.ExtractAudio(ctx, clip)
	if err != nil {
		return nil, &EvaluationError{Step: StepExtractAudio, Err: err}
	}
	transcript, err := t.Transcribe(ctx, track)
	if err != nil {
		return nil, &EvaluationError{Step: StepTranscribe, Err: err}
	}
	cmp, err := e.vision.CompareDialogue(ctx, dialogue, transcript)
	if err != nil {
		return nil, &EvaluationError{Step: StepCompareDialog, Err: err}
	}
	return &models.AudioScore{SubScore: clampSubScore(cmp), Transcript: transcript}, nil
}

// OverallScore 已计算子项的算术平均
func OverallScore(scores ...float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func clampSubScore(s models.SubScore) models.SubScore {
	switch {
	case s.Score < 0:
		s.Score = 0
	case s.Score > 100:
		s.Score = 100
	}
	return s
}
