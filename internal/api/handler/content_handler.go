package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/geofeed/internal/api/middleware"
	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/service"
	"github.com/d60-Lab/geofeed/internal/tile"
	"github.com/d60-Lab/geofeed/pkg/errs"
	"github.com/d60-Lab/geofeed/pkg/response"
)

type publishRequest struct {
	PlaceID    string   `json:"place_id" binding:"required"`
	Message    string   `json:"message" binding:"required,max=2000"`
	TopicIDs   []string `json:"topic_ids" binding:"omitempty,dive,required"`
	AsPlace    bool     `json:"as_place"`
	ExpiryTime string   `json:"expiry_time" binding:"omitempty"` // RFC3339
}

// Publish 在某地点发布内容；地点身份发布需解析出时间词，否则拉黑不投递
// @Summary 发布内容
// @Tags 内容
// @Accept json
// @Produce json
// @Param request body publishRequest true "内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/items [post]
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	in := service.PublishInput{
		AuthorID:   middleware.UserID(c),
		AuthorKind: model.KindUser,
		PlaceID:    req.PlaceID,
		Message:    req.Message,
		TopicIDs:   req.TopicIDs,
	}
	if req.AsPlace {
		in.AuthorKind = model.KindPlace
		in.AuthorID = req.PlaceID
	}
	if req.ExpiryTime != "" {
		ts, err := time.Parse(time.RFC3339, req.ExpiryTime)
		if err != nil {
			response.BadRequest(c, "expiry_time must be RFC3339")
			return
		}
		in.ExpiryTime = ts
	}
	item, err := h.contents.Publish(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, item)
}

// GetItem 读取单条内容（含点赞与评论）
// @Summary 内容详情
// @Tags 内容
// @Param item_id path string true "内容ID"
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/items/{item_id} [get]
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.contents.Get(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, item)
}

// PurgeItem 物理清除内容及全部派生投递记录
// @Summary 清除内容
// @Tags 内容
// @Param item_id path string true "内容ID"
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/items/{item_id} [delete]
func (h *Handler) PurgeItem(c *gin.Context) {
	if err := h.contents.Purge(c.Request.Context(), c.Param("item_id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// Like 点赞（幂等），随之重算热度
// @Summary 点赞
// @Tags 内容
// @Param item_id path string true "内容ID"
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/items/{item_id}/like [post]
func (h *Handler) Like(c *gin.Context) {
	userID := middleware.UserID(c)
	created, err := h.contents.Like(c.Request.Context(), c.Param("item_id"), userID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"created": created})
}

// Unlike 取消点赞
// @Summary 取消点赞
// @Tags 内容
// @Param item_id path string true "内容ID"
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/items/{item_id}/like [delete]
func (h *Handler) Unlike(c *gin.Context) {
	removed, err := h.contents.Unlike(c.Request.Context(), c.Param("item_id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

type commentRequest struct {
	Text string `json:"text" binding:"required,max=1000"`
}

// Comment 评论
// @Summary 评论
// @Tags 内容
// @Param item_id path string true "内容ID"
// @Param request body commentRequest true "评论内容"
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/items/{item_id}/comments [post]
func (h *Handler) Comment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cm, err := h.contents.Comment(c.Request.Context(), c.Param("item_id"), middleware.UserID(c), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cm)
}

type regionFeedQuery struct {
	South   float64 `form:"south" binding:"required,latitude"`
	West    float64 `form:"west" binding:"required,longitude"`
	North   float64 `form:"north" binding:"required,latitude"`
	East    float64 `form:"east" binding:"required,longitude"`
	TopicID string  `form:"topic_id"`
	Cursor  string  `form:"cursor"`
	Limit   int     `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

// RegionFeed 地图视口内按热度分页拉取内容
// @Summary 区域信息流
// @Tags 信息流
// @Param south query number true "南边界纬度"
// @Param west query number true "西边界经度"
// @Param north query number true "北边界纬度"
// @Param east query number true "东边界经度"
// @Param topic_id query string false "话题过滤"
// @Param cursor query string false "分页游标"
// @Param limit query int false "每页数量" default(20)
// @Produce json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/feed/region [get]
func (h *Handler) RegionFeed(c *gin.Context) {
	var q regionFeedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	b := tile.Bounds{South: q.South, West: q.West, North: q.North, East: q.East}
	page, clamped, err := h.contents.RegionFeed(c.Request.Context(), b, q.TopicID, q.Cursor, q.Limit, h.maxSpan)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "clamped": clamped, "limit": q.Limit})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errs.IsNotFound(err):
		response.NotFound(c, err.Error())
	case errs.IsInvalidArgument(err):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
