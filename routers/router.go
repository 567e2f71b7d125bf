package routers

import (
	"SceneChain-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(h *api.Handler) *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.GET("/projects/:project_id/status", h.GetProjectStatus)
		v1.POST("/projects/:project_id/scenes/:scene_id/generate", h.GenerateScene)
		v1.DELETE("/projects/:project_id/scenes/:scene_id/generate", h.CancelScene)
		v1.POST("/projects/:project_id/scenes/:scene_id/evaluate", h.EvaluateScene)
		v1.GET("/tasks/:task_id", h.GetTaskStatus)
	}
	r.GET("/tasks/:task_id/wss", h.TaskProgressWebSocket)
	return r
}
