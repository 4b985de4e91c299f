package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/geofeed/config"
	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/push"
	"github.com/d60-Lab/geofeed/internal/ranking"
	"github.com/d60-Lab/geofeed/internal/repository"
	"github.com/d60-Lab/geofeed/internal/service"
	"github.com/d60-Lab/geofeed/internal/tile"
	"github.com/d60-Lab/geofeed/pkg/database"
)

type nullGateway struct{}

func (nullGateway) Push(context.Context, push.Notification) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	db, err := database.InitDB(cfg)
	if err != nil {
		panic(err)
	}

	LISTENERS := 200
	if s := os.Getenv("LISTENERS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			LISTENERS = v
		}
	}
	ITEMS := 50
	if s := os.Getenv("ITEMS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			ITEMS = v
		}
	}

	ctx := context.Background()
	places := repository.NewPlaceRepository(db)
	contents := repository.NewContentRepository(db)
	received := repository.NewReceivedRepository(db)
	listens := repository.NewListenRepository(db)
	rank := ranking.NewEngine(cfg.Ranking)

	dist := service.NewDistributionEngine(contents, received, listens, places, rank, nil, nullGateway{},
		service.DistributionConfig{FanoutWidth: cfg.Distribution.FanoutWidth})
	cs := service.NewContentService(contents, places, rank, cfg.Tile.Zoom)

	// seed one place, one author, LISTENERS fans
	addr, _ := tile.FromLatLon(40.0, -74.0, cfg.Tile.Zoom)
	place := &model.Place{ID: "bench-place", Name: "bench", Lat: 40.0, Lon: -74.0, TileAddress: string(addr)}
	_ = places.Create(ctx, place)
	for i := 0; i < LISTENERS; i++ {
		id := fmt.Sprintf("bench-l%04d", i)
		_, _ = listens.CreateForward(ctx, id, "bench-author")
		_, _ = listens.CreateReverse(ctx, "bench-author", id)
	}

	distLat := make([]time.Duration, 0, ITEMS)
	for i := 0; i < ITEMS; i++ {
		item, err := cs.Publish(ctx, service.PublishInput{
			AuthorID: "bench-author", AuthorKind: model.KindUser,
			PlaceID: place.ID, Message: fmt.Sprintf("bench item %d", i),
		})
		if err != nil {
			panic(err)
		}
		st := time.Now()
		if _, err := dist.Distribute(ctx, item.ID, false); err != nil {
			panic(err)
		}
		distLat = append(distLat, time.Since(st))
	}

	claimLat := make([]time.Duration, 0, LISTENERS)
	for i := 0; i < LISTENERS; i++ {
		id := fmt.Sprintf("bench-l%04d", i)
		st := time.Now()
		_, _ = dist.OnLocationChanged(ctx, id, []string{place.TileAddress})
		claimLat = append(claimLat, time.Since(st))
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(float64(len(xs)) * p)
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}
	avg := func(vs []time.Duration) time.Duration {
		var sum time.Duration
		for _, d := range vs {
			sum += d
		}
		return sum / time.Duration(len(vs))
	}

	fmt.Printf("LISTENERS=%d ITEMS=%d fanout_width=%d\n", LISTENERS, ITEMS, cfg.Distribution.FanoutWidth)
	fmt.Printf("Distribute: avg=%v p95=%v p99=%v\n", avg(distLat), pct(distLat, 0.95), pct(distLat, 0.99))
	fmt.Printf("LocationClaim: avg=%v p95=%v p99=%v\n", avg(claimLat), pct(claimLat, 0.95), pct(claimLat, 0.99))
}
