package api

import (
	"net/http"
	"time"

	"SceneChain-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func taskDone(status string) bool {
	switch status {
	case models.TaskStatusSuccess, models.TaskStatusFailed, models.TaskStatusCancelled:
		return true
	}
	return false
}

// 任务进度 WebSocket 推送：以数据库为来源，轮询任务表并推送变化，任务结束后关闭
func (h *Handler) TaskProgressWebSocket(c *gin.Context) {
	taskID := c.Param("task_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	t, err := h.Tasks.GetTask(ctx, taskID)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": "task not found: " + err.Error()})
		return
	}
	if err := conn.WriteJSON(t); err != nil || taskDone(t.Status) {
		return
	}

	interval := h.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := t.UpdatedAt
	prevStatus := t.Status
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.Tasks.GetTask(ctx, taskID)
		if err != nil {
			// 查询失败继续重试
			continue
		}
		if cur.Status == prevStatus && cur.UpdatedAt.Equal(prev) {
			continue
		}
		if err := conn.WriteJSON(cur); err != nil {
			return
		}
		prev, prevStatus = cur.UpdatedAt, cur.Status
		if taskDone(cur.Status) {
			return
		}
	}
}

// 查询任务状态：GET /v1/api/tasks/:task_id
func (h *Handler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	t, err := h.Tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}
