package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/observability"
	"github.com/smallbiznis/duno/internal/server"
	"github.com/smallbiznis/duno/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
