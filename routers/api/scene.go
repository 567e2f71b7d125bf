package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"SceneChain-server/models"
	"SceneChain-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type generateBody struct {
	Model      string `json:"model"`
	Resolution string `json:"resolution"`
	Loop       *bool  `json:"loop"`
}

func (b generateBody) override() *models.SettingsOverride {
	if b.Model == "" && b.Resolution == "" && b.Loop == nil {
		return nil
	}
	return &models.SettingsOverride{Model: b.Model, Resolution: b.Resolution, Loop: b.Loop}
}

type evaluateBody struct {
	Credential string `json:"credential"`
}

// bindOptionalJSON 允许空 body
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// 生成分镜视频：POST /v1/api/projects/:project_id/scenes/:scene_id/generate
func (h *Handler) GenerateScene(c *gin.Context) {
	projectID := c.Param("project_id")
	sceneID := c.Param("scene_id")

	var body generateBody
	if err := bindOptionalJSON(c, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	override := body.override()

	task := &models.Task{
		ID:         uuid.NewString(),
		ProjectId:  projectID,
		SceneId:    sceneID,
		Type:       models.TaskTypeSceneGenerate,
		Status:     models.TaskStatusPending,
		Message:    "视频生成任务排队中",
		Parameters: models.TaskParameters{Override: override},
	}
	payload := service.GeneratePayload{TaskID: task.ID, ProjectID: projectID, SceneID: sceneID, Override: override}
	if !h.submit(c, task, func(ctx context.Context) error { return h.Queue.EnqueueGenerate(ctx, payload) }) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "视频生成任务已创建",
		"project_id": projectID,
		"scene_id":   sceneID,
		"task_id":    task.ID,
	})
}

// 取消进行中的生成：DELETE /v1/api/projects/:project_id/scenes/:scene_id/generate
func (h *Handler) CancelScene(c *gin.Context) {
	projectID := c.Param("project_id")
	sceneID := c.Param("scene_id")
	if !h.Engine.Cancel(projectID, sceneID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "该分镜没有进行中的生成"})
		return
	}
	log.Printf("[API] 已取消分镜生成: %s/%s", projectID, sceneID)
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "scene_id": sceneID, "cancelled": true})
}

// 评估分镜视频：POST /v1/api/projects/:project_id/scenes/:scene_id/evaluate
// 转写凭证来自 body.credential 或 X-Transcription-Key 头，只随任务传递
func (h *Handler) EvaluateScene(c *gin.Context) {
	projectID := c.Param("project_id")
	sceneID := c.Param("scene_id")

	var body evaluateBody
	if err := bindOptionalJSON(c, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	credential := strings.TrimSpace(body.Credential)
	if credential == "" {
		credential = strings.TrimSpace(c.GetHeader("X-Transcription-Key"))
	}

	task := &models.Task{
		ID:         uuid.NewString(),
		ProjectId:  projectID,
		SceneId:    sceneID,
		Type:       models.TaskTypeSceneEvaluate,
		Status:     models.TaskStatusPending,
		Message:    "评估任务排队中",
		Parameters: models.TaskParameters{WithAudio: credential != ""},
	}
	payload := service.EvaluatePayload{TaskID: task.ID, ProjectID: projectID, SceneID: sceneID, Credential: credential}
	if !h.submit(c, task, func(ctx context.Context) error { return h.Queue.EnqueueEvaluate(ctx, payload) }) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "评估任务已创建",
		"project_id": projectID,
		"scene_id":   sceneID,
		"task_id":    task.ID,
	})
}

// submit 先落库再入队；入队失败时把任务标记为失败
func (h *Handler) submit(c *gin.Context, task *models.Task, enqueue func(ctx context.Context) error) bool {
	ctx := c.Request.Context()
	if err := h.Tasks.CreateTask(ctx, task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建任务失败: " + err.Error()})
		return false
	}
	if err := enqueue(ctx); err != nil {
		log.Printf("[API] 任务入队失败 %s: %v", task.ID, err)
		if markErr := h.Tasks.MarkTask(ctx, task.ID, models.TaskStatusFailed, nil, err.Error()); markErr != nil {
			log.Printf("[API] 标记任务失败出错 %s: %v", task.ID, markErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败"})
		return false
	}
	return true
}
