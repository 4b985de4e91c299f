package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/tile"
	"github.com/d60-Lab/geofeed/pkg/response"
)

type createPlaceRequest struct {
	Name string  `json:"name" binding:"required,max=128"`
	Lat  float64 `json:"lat" binding:"required,latitude"`
	Lon  float64 `json:"lon" binding:"required,longitude"`
}

// CreatePlace 登记地点频道，瓦片地址在落库时固定
// @Summary 创建地点
// @Tags 地点
// @Accept json
// @Produce json
// @Param request body createPlaceRequest true "地点信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/places [post]
func (h *Handler) CreatePlace(c *gin.Context) {
	var req createPlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	addr, err := tile.FromLatLon(req.Lat, req.Lon, h.zoom)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p := &model.Place{Name: req.Name, Lat: req.Lat, Lon: req.Lon, TileAddress: string(addr)}
	if err := h.places.Create(c.Request.Context(), p); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, p)
}

// GetPlace 地点详情
// @Summary 地点详情
// @Tags 地点
// @Param place_id path string true "地点ID"
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/places/{place_id} [get]
func (h *Handler) GetPlace(c *gin.Context) {
	p, err := h.places.Get(c.Request.Context(), c.Param("place_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, p)
}
