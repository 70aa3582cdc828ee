package auditlog

import (
	"fmt"

	"storefront-core/pkg/config"

	"github.com/bwmarrin/snowflake"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("auditlog.store",
	fx.Provide(NewStore),
)

type StoreParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Minio  *minio.Client `optional:"true"`
}

// NewStore selects the backend named by AUDIT_LOG.BACKEND.
func NewStore(p StoreParams) (Store, error) {
	switch p.Config.AuditLog.Backend {
	case "", "database":
		return NewGormStore(p.DB, p.Node), nil
	case "minio":
		if p.Minio == nil {
			return nil, fmt.Errorf("audit log backend minio requires a minio client")
		}
		zap.L().Info("audit log stored in object storage",
			zap.String("bucket", p.Config.Minio.BucketName),
			zap.String("prefix", p.Config.AuditLog.Prefix),
		)
		return NewObjectStore(p.Minio, p.Config.Minio.BucketName, p.Config.AuditLog.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown audit log backend %q", p.Config.AuditLog.Backend)
	}
}
