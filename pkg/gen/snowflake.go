package gen

import (
	"storefront-core/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(NewSnowflakeNode))

// NewSnowflakeNode builds the id generator for this process from NODE_ID.
func NewSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	nodeID := int64(1)
	if cfg != nil && cfg.NodeID > 0 {
		nodeID = cfg.NodeID
	}
	return snowflake.NewNode(nodeID)
}
