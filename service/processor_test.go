package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"SceneChain-server/engine"
	"SceneChain-server/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	genReq  engine.GenerateRequest
	evalReq engine.EvaluateRequest
	genRes  *engine.GenerationResult
	genErr  error
	eval    *models.Evaluation
	evalErr error
}

func (f *fakeRunner) Generate(_ context.Context, req engine.GenerateRequest) (*engine.GenerationResult, error) {
	f.genReq = req
	return f.genRes, f.genErr
}

func (f *fakeRunner) Evaluate(_ context.Context, req engine.EvaluateRequest) (*models.Evaluation, error) {
	f.evalReq = req
	return f.eval, f.evalErr
}

type markCall struct {
	status string
	result *models.TaskResult
	errMsg string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls map[string][]markCall
}

func (f *fakeRecorder) MarkTask(_ context.Context, taskID, status string, result *models.TaskResult, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string][]markCall)
	}
	f.calls[taskID] = append(f.calls[taskID], markCall{status, result, errMsg})
	return nil
}

func (f *fakeRecorder) statuses(taskID string) []string {
	var out []string
	for _, c := range f.calls[taskID] {
		out = append(out, c.status)
	}
	return out
}

func generateTask(t *testing.T, p GeneratePayload) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(TypeSceneGenerate, payload)
}

func TestProcessor_GenerateSuccess(t *testing.T) {
	runner := &fakeRunner{genRes: &engine.GenerationResult{
		Scene:     &models.Scene{ID: "s1", ClipUrl: "projects/p1/scenes/s1/clip.mp4"},
		JobHandle: "job-1",
		Seed:      engine.SeedReferenceImages,
		Durable:   true,
	}}
	rec := &fakeRecorder{}
	p := NewProcessor(runner, rec)

	err := p.HandleSceneGenerate(context.Background(), generateTask(t, GeneratePayload{TaskID: "t1", ProjectID: "p1", SceneID: "s1"}))
	require.NoError(t, err)

	assert.Equal(t, "s1", runner.genReq.SceneID)
	assert.Equal(t, []string{models.TaskStatusProcessing, models.TaskStatusSuccess}, rec.statuses("t1"))
	last := rec.calls["t1"][1]
	require.NotNil(t, last.result)
	assert.Equal(t, "video", last.result.ResourceType)
	assert.Equal(t, "projects/p1/scenes/s1/clip.mp4", last.result.ResourceUrl)
	assert.True(t, last.result.Durable)
}

func TestProcessor_GenerateFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"failed", &engine.SynthesisError{JobHandle: "job-1", Message: "boom"}, models.TaskStatusFailed},
		{"cancelled", fmt.Errorf("scene s1: %w", engine.ErrCancelled), models.TaskStatusCancelled},
		{"timeout", engine.ErrPollTimeout, models.TaskStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			p := NewProcessor(&fakeRunner{genErr: tt.err}, rec)

			err := p.HandleSceneGenerate(context.Background(), generateTask(t, GeneratePayload{TaskID: "t1", SceneID: "s1"}))
			require.NoError(t, err)
			assert.Equal(t, []string{models.TaskStatusProcessing, tt.want}, rec.statuses("t1"))
			assert.Equal(t, tt.err.Error(), rec.calls["t1"][1].errMsg)
		})
	}
}

func TestProcessor_BadPayloadSkipsRetry(t *testing.T) {
	p := NewProcessor(&fakeRunner{}, &fakeRecorder{})
	err := p.HandleSceneGenerate(context.Background(), asynq.NewTask(TypeSceneGenerate, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = p.HandleSceneEvaluate(context.Background(), asynq.NewTask(TypeSceneEvaluate, []byte("nope")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessor_Evaluate(t *testing.T) {
	runner := &fakeRunner{eval: &models.Evaluation{SceneId: "s1", Overall: 72.5}}
	rec := &fakeRecorder{}
	p := NewProcessor(runner, rec)

	task, err := NewEvaluateTask(EvaluatePayload{TaskID: "t9", ProjectID: "p1", SceneID: "s1", Credential: "key"})
	require.NoError(t, err)
	require.NoError(t, p.HandleSceneEvaluate(context.Background(), task))

	assert.Equal(t, "key", runner.evalReq.TranscriptionCredential)
	assert.Equal(t, []string{models.TaskStatusProcessing, models.TaskStatusSuccess}, rec.statuses("t9"))
	assert.Equal(t, 72.5, rec.calls["t9"][1].result.Overall)
}

func TestProcessor_EvaluateFailure(t *testing.T) {
	rec := &fakeRecorder{}
	p := NewProcessor(&fakeRunner{evalErr: engine.ErrNoClip}, rec)

	task, err := NewEvaluateTask(EvaluatePayload{TaskID: "t9", SceneID: "s1"})
	require.NoError(t, err)
	require.NoError(t, p.HandleSceneEvaluate(context.Background(), task))
	assert.Equal(t, []string{models.TaskStatusProcessing, models.TaskStatusFailed}, rec.statuses("t9"))
}
