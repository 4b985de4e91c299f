package handler

import (
	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/internal/service"
)

// Handler 聚合各路由依赖的服务
type Handler struct {
	accounts *service.AccountService
	contents *service.ContentService
	network  service.ListenNetwork
	dist     *service.DistributionEngine
	places   repository.PlaceRepository
	zoom     int
	maxSpan  int
}

func New(
	accounts *service.AccountService,
	contents *service.ContentService,
	network service.ListenNetwork,
	dist *service.DistributionEngine,
	places repository.PlaceRepository,
	zoom, maxSpan int,
) *Handler {
	if maxSpan <= 0 {
		maxSpan = 8
	}
	return &Handler{
		accounts: accounts,
		contents: contents,
		network:  network,
		dist:     dist,
		places:   places,
		zoom:     zoom,
		maxSpan:  maxSpan,
	}
}
