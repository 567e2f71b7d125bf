package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// 项目生成状态：GET /v1/api/projects/:project_id/status
// clips 为定位符；配置了 Presigner 时额外返回可播放地址 clip_urls
func (h *Handler) GetProjectStatus(c *gin.Context) {
	projectID := c.Param("project_id")
	status, err := h.Engine.Status(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取项目状态失败: " + err.Error()})
		return
	}

	resp := gin.H{"status": status}
	if h.Presigner != nil {
		urls := make(map[string]string, len(status.Clips))
		for sceneID, locator := range status.Clips {
			u, err := h.Presigner.PresignURL(c.Request.Context(), locator, h.URLExpiry)
			if err != nil {
				log.Printf("[API] 生成播放地址失败 scene=%s: %v", sceneID, err)
				continue
			}
			urls[sceneID] = u
		}
		resp["clip_urls"] = urls
	}
	c.JSON(http.StatusOK, resp)
}
