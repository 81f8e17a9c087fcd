package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/urmzd/homai-gateway/internal/command"
	"github.com/urmzd/homai-gateway/internal/schema"
	"github.com/urmzd/homai-gateway/pkg/api/handlers"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine     *gin.Engine
	hub        *command.Hub
	dispatcher *command.Dispatcher
	validator  *schema.Validator
	managers   int
}

// NewRouter creates a new API router fronting the command dispatcher and
// the event hub; managers is how many technology managers were composed.
func NewRouter(hub *command.Hub, dispatcher *command.Dispatcher, validator *schema.Validator, managers int) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine:     engine,
		hub:        hub,
		dispatcher: dispatcher,
		validator:  validator,
		managers:   managers,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(301, "/swagger/index.html")
	})

	// Health check at root
	healthHandler := handlers.NewHealthHandler(r.hub, r.managers)
	r.engine.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		// Health
		v1.GET("/health", healthHandler.Health)

		// Discovery
		discoveryHandler := handlers.NewDiscoveryHandler(r.hub, r.dispatcher)
		discovery := v1.Group("/discovery")
		{
			discovery.POST("/start", discoveryHandler.StartDiscovery)
			discovery.POST("/stop", discoveryHandler.StopDiscovery)
			discovery.GET("/events", discoveryHandler.Events)
		}

		// Devices
		devicesHandler := handlers.NewDevicesHandler(r.hub, r.dispatcher)
		controlHandler := handlers.NewControlHandler(r.hub, r.dispatcher, r.validator)
		devices := v1.Group("/devices")
		{
			devices.GET("", devicesHandler.ListDevices)
			devices.GET("/:id", devicesHandler.GetDevice)
			devices.POST("/:id/accept", devicesHandler.AcceptDevice)
			devices.DELETE("/:id", devicesHandler.RemoveDevice)

			// Device state control
			devices.GET("/:id/state", controlHandler.GetState)
			devices.POST("/:id/state", controlHandler.SetState)
		}
	}
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
