package bootstrap

import (
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/appforge-labs/appforge-backend/config"
	httpapi "github.com/appforge-labs/appforge-backend/internal/api/http"
	"github.com/appforge-labs/appforge-backend/internal/auth"
	"github.com/appforge-labs/appforge-backend/internal/chat"
	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/pipeline"
	"github.com/appforge-labs/appforge-backend/internal/projects"
	projectshttp "github.com/appforge-labs/appforge-backend/internal/projects/http"
	"github.com/appforge-labs/appforge-backend/internal/projects/service"
)

type RouterDeps struct {
	Config     *config.Config
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Store      projects.Store
	Queue      pipeline.Queue
	Bus        *notify.RedisBus
	AuthClient *firebaseauth.Client
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = dep.Config.Server.AllowedOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-User-Id", "X-Request-Id")
	r.Use(cors.New(corsCfg))
	r.Use(httpapi.RequestID())

	healthHandler := httpapi.NewHealthHandler("appforge-backend", dep.Config.App.Version, dep.DB).WithRedis(dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(auth.RequireUser(dep.AuthClient))

	svc := service.NewProjectService(dep.Store)
	gate := chat.NewGate(dep.Store, dep.Queue, dep.Bus)

	projectsGroup := api.Group("/projects")
	projectshttp.Register(projectsGroup, projectshttp.NewHandler(svc, gate, dep.Bus))

	return r
}
