package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/geofeed/internal/api/middleware"
	"github.com/d60-Lab/geofeed/internal/tile"
	"github.com/d60-Lab/geofeed/pkg/response"
)

type locationRequest struct {
	Lat *float64 `json:"lat" binding:"required,latitude"`
	Lon *float64 `json:"lon" binding:"required,longitude"`
	// 客户端可直接上报瓦片集合（测试/重放），否则服务端按坐标展开 3x3 邻域
	Tiles []string `json:"tiles" binding:"omitempty,dive,quadkey"`
}

// UpdateLocation 上报位置：刷新在场缓存并尝试触发一次到场推送。
// 同一条投递记录至多触发一次，推送失败不重试。
// @Summary 上报位置
// @Tags 位置
// @Accept json
// @Produce json
// @Param request body locationRequest true "坐标"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/location [post]
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tiles := req.Tiles
	if len(tiles) == 0 {
		addr, err := tile.FromLatLon(*req.Lat, *req.Lon, h.zoom)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		neighbors, err := tile.Neighbors(addr, 1)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		for _, n := range neighbors {
			tiles = append(tiles, string(n))
		}
	}
	pushed, err := h.dist.OnLocationChanged(c.Request.Context(), middleware.UserID(c), tiles)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"notified": pushed, "tiles": len(tiles)})
}

type markReadRequest struct {
	ItemID   string   `json:"item_id"`
	AuthorID string   `json:"author_id"`
	TopicID  string   `json:"topic_id"`
	Prefixes []string `json:"prefixes" binding:"omitempty,dive,quadkey"`
}

// MarkRead 按单条 / 作者 / 瓦片前缀区域置已读，三种范围取其一
// @Summary 标记已读
// @Tags 位置
// @Accept json
// @Produce json
// @Param request body markReadRequest true "范围"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/received/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	listenerID := middleware.UserID(c)
	ctx := c.Request.Context()
	var err error
	switch {
	case req.ItemID != "":
		err = h.dist.MarkReadItem(ctx, listenerID, req.ItemID)
	case req.AuthorID != "":
		err = h.dist.MarkReadAuthor(ctx, listenerID, req.AuthorID)
	case len(req.Prefixes) > 0:
		err = h.dist.MarkReadRegion(ctx, listenerID, req.Prefixes, req.TopicID)
	default:
		response.BadRequest(c, "one of item_id, author_id, prefixes is required")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}
