package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/geofeed/internal/api/middleware"
	"github.com/d60-Lab/geofeed/internal/service"
	"github.com/d60-Lab/geofeed/pkg/response"
)

type listenRequest struct {
	SourceID string `json:"source_id" binding:"required"`
}

// Listen 收听某个用户或地点（幂等，成功即回填近期内容）
// @Summary 收听
// @Tags 收听关系
// @Accept json
// @Produce json
// @Param request body listenRequest true "收听对象"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/listens [post]
func (h *Handler) Listen(c *gin.Context) {
	var req listenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	listenerID := middleware.UserID(c)
	created, err := h.network.Listen(c.Request.Context(), listenerID, req.SourceID)
	if err != nil {
		if errors.Is(err, service.ErrListenSelf) {
			response.BadRequest(c, "cannot listen to self")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"created": created})
}

// Unlisten 取消收听（幂等，连带清理该来源的投递记录）
// @Summary 取消收听
// @Tags 收听关系
// @Accept json
// @Produce json
// @Param request body listenRequest true "取消对象"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/listens/unlisten [post]
func (h *Handler) Unlisten(c *gin.Context) {
	var req listenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	listenerID := middleware.UserID(c)
	removed, err := h.network.Unlisten(c.Request.Context(), listenerID, req.SourceID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

// ListSources 我在收听谁
// @Summary 收听列表
// @Tags 收听关系
// @Produce json
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/listens/sources [get]
func (h *Handler) ListSources(c *gin.Context) {
	listenerID := middleware.UserID(c)
	ids, err := h.network.FindSources(c.Request.Context(), listenerID, nil)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"sources": ids})
}

// ListListeners 谁在收听某个 source（来自反向投影）
// @Summary 听众列表
// @Tags 收听关系
// @Param source_id path string true "来源ID"
// @Produce json
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/listens/{source_id}/listeners [get]
func (h *Handler) ListListeners(c *gin.Context) {
	sourceID := c.Param("source_id")
	ids, err := h.network.FindListeners(c.Request.Context(), []string{sourceID}, nil)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"listeners": ids})
}
