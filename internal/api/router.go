package api

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/d60-Lab/geofeed/internal/api/handler"
	"github.com/d60-Lab/geofeed/internal/api/middleware"
	"github.com/d60-Lab/geofeed/internal/service"
	"github.com/d60-Lab/geofeed/pkg/logger"
	"github.com/d60-Lab/geofeed/pkg/response"
)

// NewRouter 组装全部路由与中间件
func NewRouter(mode string, h *handler.Handler, accounts *service.AccountService) *gin.Engine {
	gin.SetMode(mode)
	registerValidators()

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(otelgin.Middleware("geofeed"))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
		}

		authed := v1.Group("")
		authed.Use(middleware.Auth(accounts))
		{
			authed.POST("/listens", h.Listen)
			authed.POST("/listens/unlisten", h.Unlisten)
			authed.GET("/listens/sources", h.ListSources)
			authed.GET("/listens/:source_id/listeners", h.ListListeners)

			authed.POST("/items", h.Publish)
			authed.GET("/items/:item_id", h.GetItem)
			authed.DELETE("/items/:item_id", h.PurgeItem)
			authed.POST("/items/:item_id/like", h.Like)
			authed.DELETE("/items/:item_id/like", h.Unlike)
			authed.POST("/items/:item_id/comments", h.Comment)

			authed.GET("/feed/region", h.RegionFeed)
			authed.POST("/location", h.UpdateLocation)
			authed.POST("/received/read", h.MarkRead)

			authed.POST("/places", h.CreatePlace)
			authed.GET("/places/:place_id", h.GetPlace)
		}
	}
	return r
}

// registerValidators 挂自定义校验规则（quadkey: 四进制瓦片地址）
func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("quadkey", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) == 0 || len(s) > 30 {
			return false
		}
		for _, ch := range s {
			if ch < '0' || ch > '3' {
				return false
			}
		}
		return true
	})
}

// recovery panic 转 500，同时上报 sentry
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(error); ok {
					sentry.CaptureException(err)
				} else {
					sentry.CaptureMessage("panic in handler")
				}
				logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", c.FullPath()))
				response.InternalError(c, errors.New("internal error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
