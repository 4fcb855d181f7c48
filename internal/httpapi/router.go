// Package httpapi exposes the user service over HTTP with gin. Every user
// route requires a bearer token whose permissions claim grants the route's
// permission.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nisimpson/userstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// BasePath prefixes every user route.
const BasePath = "/user/v1"

// Options configures the router.
type Options struct {
	Service   *userstore.Service
	JWTSecret []byte
	Origin    string  // CORS origin; "*" allows any
	RateRPS   float64 // zero disables rate limiting
	RateBurst int
	Logger    *zerolog.Logger // defaults to the global logger
	Debug     bool
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(opts Options) *gin.Engine {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}

	router := gin.New()
	router.Use(RequestLogger(base))
	router.Use(Recovery())

	corsConfig := cors.DefaultConfig()
	if opts.Origin == "" || opts.Origin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{opts.Origin}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader, "Retry-After"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", Health)

	if opts.RateRPS > 0 {
		router.Use(RateLimit(opts.RateRPS, max(opts.RateBurst, 1)))
	}

	h := NewHandler(opts.Service)
	users := router.Group(BasePath+"/users", Authenticate(opts.JWTSecret))
	{
		users.POST("", Require(PermissionCreate), wrap(h.CreateUser))
		users.GET("", Require(PermissionList), wrap(h.ListUsers))
		users.GET("/:userId", Require(PermissionGet), wrap(h.GetUser))
		users.PUT("/:userId", Require(PermissionUpdate), wrap(h.UpdateUser))
		users.DELETE("/:userId", Require(PermissionDelete), wrap(h.DeleteUser))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Route not found"})
	})

	return router
}
