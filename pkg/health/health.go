package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"storefront-core/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	checkTimeout = 2 * time.Second
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

// Check probes a single dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type health struct {
	checks []Check
}

type HealthParams struct {
	fx.In
	Config *config.Config `optional:"true"`
	DB     *gorm.DB       `optional:"true"`
	Redis  *redis.Client  `optional:"true"`
	Minio  *minio.Client  `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	var checks []Check
	if p.DB != nil {
		db := p.DB
		checks = append(checks, Check{Name: "database", Probe: func(ctx context.Context) error {
			sql, err := db.DB()
			if err != nil {
				return err
			}
			return sql.PingContext(ctx)
		}})
	}
	if p.Redis != nil {
		rdb := p.Redis
		checks = append(checks, Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if p.Minio != nil && p.Config != nil {
		mc, bucket := p.Minio, p.Config.Minio.BucketName
		checks = append(checks, Check{Name: "minio", Probe: func(ctx context.Context) error {
			_, err := mc.BucketExists(ctx, bucket)
			return err
		}})
	}
	return NewHealth(checks...)
}

func NewHealth(checks ...Check) HealthService {
	return &health{checks: checks}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

// Readiness runs every check concurrently and answers 503 when any fails.
func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	deps := make([]Dependency, len(h.checks))
	var wg sync.WaitGroup
	for i, chk := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dep := Dependency{Name: chk.Name, Status: statusHealthy, Message: "OK"}
			if err := chk.Probe(ctx); err != nil {
				dep.Status = statusUnhealthy
				dep.Message = err.Error()
			}
			deps[i] = dep
		}()
	}
	wg.Wait()

	out := &Health{Status: statusHealthy, Message: "OK", Deps: deps}
	code := http.StatusOK
	for _, d := range deps {
		if d.Status != statusHealthy {
			out.Status = statusUnhealthy
			out.Message = "dependency unavailable"
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, out)
}
