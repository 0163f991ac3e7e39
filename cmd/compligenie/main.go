package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/jamesbarnes665/compliGenie-backend/internal/cache"
	"github.com/jamesbarnes665/compliGenie-backend/internal/clock"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	"github.com/jamesbarnes665/compliGenie-backend/internal/migration"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability"
	"github.com/jamesbarnes665/compliGenie-backend/internal/policy"
	"github.com/jamesbarnes665/compliGenie-backend/internal/providers"
	"github.com/jamesbarnes665/compliGenie-backend/internal/ratelimit"
	"github.com/jamesbarnes665/compliGenie-backend/internal/server"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenant"
	"github.com/jamesbarnes665/compliGenie-backend/internal/worker"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		worker.Module,
		providers.Module,

		// Domains
		tenant.Module,
		policy.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
