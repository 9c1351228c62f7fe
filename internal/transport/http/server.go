package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/core"
	"github.com/vovakirdan/snuz/internal/service/groups"
	"github.com/vovakirdan/snuz/internal/service/sleep"
	"github.com/vovakirdan/snuz/internal/service/users"
)

// Services bundles the business logic the handlers call into.
type Services struct {
	Users  *users.Service
	Sleep  *sleep.Service
	Groups *groups.Service
}

// NewServer builds the HTTP server for the REST API and the presence endpoint.
func NewServer(hub *core.Hub, svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter serves /ws/{username} straight from a ServeMux and everything else
// from the gin engine. The websocket upgrade must hijack the raw ResponseWriter.
func NewRouter(hub *core.Hub, svc Services, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws/{username}", NewWSHandler(hub, svc.Users, cfg, logger))
	mux.Handle("/", newAPIRouter(hub, svc, logger))
	return mux
}

func newAPIRouter(hub *core.Hub, svc Services, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(svc, logger)

	router.GET("/", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, MessageResponse{Message: "hello from server"})
	})
	router.GET("/health", healthHandler(hub))

	router.POST("/create-user", api.CreateUser)
	router.POST("/login", api.Login)
	router.GET("/all-user-data", api.AllUsers)
	router.POST("/get-user-data", api.GetUser)

	router.POST("/to-sleep", api.ToSleep)
	router.POST("/to-awake", api.ToAwake)
	router.POST("/to-snooze", api.ToSnooze)

	router.POST("/create-group", api.CreateGroup)
	router.POST("/my-group", api.MyGroup)

	return router
}

// HealthResponse reports liveness and how many channels are open.
type HealthResponse struct {
	Status  string `json:"status"`
	Groups  int    `json:"groups"`
	Clients int    `json:"clients"`
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(stdhttp.StatusOK, HealthResponse{Status: "ok", Groups: stats.Groups, Clients: stats.Clients})
	}
}
