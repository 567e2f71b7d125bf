package service

import (
	"encoding/json"
	"testing"
	"time"

	"SceneChain-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerateTask(t *testing.T) {
	task, err := NewGenerateTask(GeneratePayload{
		TaskID:    "t1",
		ProjectID: "p1",
		SceneID:   "s1",
		Override:  &models.SettingsOverride{Resolution: "1080p"},
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypeSceneGenerate, task.Type())

	var got GeneratePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, "s1", got.SceneID)
	require.NotNil(t, got.Override)
	assert.Equal(t, "1080p", got.Override.Resolution)
}

func TestNewEvaluateTask(t *testing.T) {
	task, err := NewEvaluateTask(EvaluatePayload{TaskID: "t2", ProjectID: "p1", SceneID: "s1", Credential: "k"})
	require.NoError(t, err)
	assert.Equal(t, TypeSceneEvaluate, task.Type())

	var got EvaluatePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, "k", got.Credential)
}
