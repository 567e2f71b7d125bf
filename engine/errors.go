package engine

import (
	"errors"
	"fmt"

	"SceneChain-server/models"
)

var (
	ErrSceneNotFound      = errors.New("scene not found")
	ErrEmptyPrompt        = errors.New("scene has no prompt")
	ErrGenerationInFlight = errors.New("generation already in flight for scene")
	ErrEvaluationInFlight = errors.New("evaluation already in flight for scene")
	ErrNoClip             = errors.New("scene has no generated clip")
	ErrPollTimeout        = errors.New("synthesis job exceeded poll budget")
	ErrCancelled          = errors.New("generation cancelled")

	// ErrClipChanged 评估期间分镜已重新生成
	ErrClipChanged = models.ErrClipChanged
)

// SynthesisError 合成服务接受了任务但随后报告失败
type SynthesisError struct {
	JobHandle string
	Message   string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis job %s failed: %s", e.JobHandle, e.Message)
}

// EvaluationError 记录中止评估的子步骤
type EvaluationError struct {
	Step string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation step %s: %v", e.Step, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// 评估子步骤
const (
	StepFetchClip      = "fetch_clip"
	StepExtractFrames  = "extract_frames"
	StepScoreFirst     = "score_first_frame"
	StepScoreLast      = "score_last_frame"
	StepExtractAudio   = "extract_audio"
	StepTranscribe     = "transcribe"
	StepCompareDialog  = "compare_dialogue"
	StepSaveEvaluation = "save_evaluation"
)
