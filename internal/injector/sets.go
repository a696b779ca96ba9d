// Package injector builds the server and observer object graphs.
package injector

import (
	"github.com/google/wire"
	"github.com/voxelnet/server/internal/app"
	"github.com/voxelnet/server/internal/core/event"
	"github.com/voxelnet/server/internal/core/task"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/replication"
	"github.com/voxelnet/server/internal/rpc"
	"github.com/voxelnet/server/internal/world"
)

var commonSet = wire.NewSet(
	app.ProvideComponents,
	world.NewState,
	event.NewBus,
	task.NewQueue,
	app.ProvideHub,
	packet.NewRegistry,
	rpc.NewRegistry,
)

var ServerSet = wire.NewSet(
	commonSet,
	app.ProvideServerStore,
	replication.NewProducer,
	app.ProvidePermissions,
	app.ProvideScripts,
	app.ProvideServerChannel,
	app.NewServer,
)

var ObserverSet = wire.NewSet(
	commonSet,
	app.ProvideObserverStore,
	app.ProvideObserverChannel,
	app.NewObserver,
)
