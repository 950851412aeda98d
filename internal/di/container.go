package di

import (
	"context"
	"errors"
	"net/http"

	"coauthor-backend/internal/collab/docsync"
	"coauthor-backend/internal/collab/graphsync"
	"coauthor-backend/internal/config"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/infrastructure/concurrency"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/internal/interfaces/websocket"

	"go.uber.org/zap"
)

// Container holds the long-lived components main starts and stops.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Collector
	Exporter   *observability.CloudWatchExporter
	Gateway    *gateway.Gateway
	Registries Registries
	Documents  *docsync.Channel
	Graphs     *graphsync.Channel
	Lanes      *concurrency.SerialExecutor
	Bus        *messaging.RoomBus
	Activity   messaging.ActivityPublisher
	Hub        *websocket.Hub
	Server     *http.Server
}

func provideContainer(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	exporter *observability.CloudWatchExporter,
	gw *gateway.Gateway,
	registries Registries,
	documents *docsync.Channel,
	graphs *graphsync.Channel,
	lanes *concurrency.SerialExecutor,
	bus *messaging.RoomBus,
	activity messaging.ActivityPublisher,
	hub *websocket.Hub,
	server *http.Server,
) *Container {
	return &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Exporter:   exporter,
		Gateway:    gw,
		Registries: registries,
		Documents:  documents,
		Graphs:     graphs,
		Lanes:      lanes,
		Bus:        bus,
		Activity:   activity,
		Hub:        hub,
		Server:     server,
	}
}

// StartDelivery connects the room bus to the hub and runs the hub loop and
// the metrics push. The returned channel closes once the bus subscriber has
// stopped.
func (c *Container) StartDelivery(ctx context.Context) (<-chan struct{}, error) {
	go c.Hub.Run()
	if c.Exporter != nil {
		c.Exporter.Start()
	}
	return c.Bus.Subscribe(ctx, c.Hub.Deliver)
}

// Shutdown stops accepting work, lets the room lanes drain, then releases
// the bus and the activity queue. Resources owned by the injector cleanup
// (tracing, sqlite) are released by that cleanup.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	if err := c.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	c.Hub.Stop()
	if err := c.Lanes.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.Bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if async, ok := c.Activity.(*messaging.AsyncPublisher); ok {
		async.Close()
	}
	if c.Exporter != nil {
		c.Exporter.Stop()
	}
	return errors.Join(errs...)
}
