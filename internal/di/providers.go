// Package di wires the service with Google Wire. wire.go declares the
// injector; wire_gen.go is its generated implementation.
package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"coauthor-backend/internal/collab/dispatch"
	"coauthor-backend/internal/collab/docsync"
	"coauthor-backend/internal/collab/graphsync"
	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/config"
	"coauthor-backend/internal/gateway"
	"coauthor-backend/internal/infrastructure/concurrency"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/internal/interfaces/http/rest"
	"coauthor-backend/internal/interfaces/websocket"
	"coauthor-backend/internal/presence"
	"coauthor-backend/pkg/auth"
	"coauthor-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsCloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/google/wire"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SuperSet combines all provider sets for the complete application.
var SuperSet = wire.NewSet(
	ObservabilityProviders,
	InfrastructureProviders,
	CollaborationProviders,
	InterfaceProviders,
	provideContainer,
)

// ObservabilityProviders provides metrics and tracing.
var ObservabilityProviders = wire.NewSet(
	provideCollector,
	provideCloudWatchClient,
	provideMetricsExporter,
	provideTracerProvider,
	provideTracer,
)

// InfrastructureProviders provides AWS clients, storage and the room bus.
var InfrastructureProviders = wire.NewSet(
	provideAWSConfig,
	provideDynamoDBClient,
	provideEventBridgeClient,
	provideRecordStore,
	provideGateway,
	provideExecutor,
	provideActivityPublisher,
	messaging.NewRoomBus,
	wire.Bind(new(gateway.DocumentStore), new(*gateway.Gateway)),
	wire.Bind(new(gateway.GraphStore), new(*gateway.Gateway)),
	wire.Bind(new(rest.Pinger), new(*gateway.Gateway)),
	wire.Bind(new(concurrency.Executor), new(*concurrency.SerialExecutor)),
	wire.Bind(new(session.Publisher), new(*messaging.RoomBus)),
)

// CollaborationProviders provides presence, the sync channels and the
// inbound router.
var CollaborationProviders = wire.NewSet(
	provideRegistries,
	graphsync.NewSelections,
	session.NewBusOutbound,
	provideDocumentChannel,
	provideGraphChannel,
	dispatch.NewRouter,
	wire.Bind(new(session.Outbound), new(*session.BusOutbound)),
	wire.Bind(new(websocket.MessageHandler), new(*dispatch.Router)),
)

// InterfaceProviders provides the websocket and HTTP surfaces.
var InterfaceProviders = wire.NewSet(
	provideValidator,
	provideErrorHandler,
	websocket.NewHub,
	provideWebSocketServer,
	provideHTTPHandler,
	provideHTTPServer,
)

// Registries holds one presence registry per room kind.
type Registries struct {
	Documents *presence.Registry
	Graphs    *presence.Registry
}

func provideRegistries() Registries {
	return Registries{
		Documents: presence.NewRegistry(),
		Graphs:    presence.NewRegistry(),
	}
}

// provideCollector returns nil when metrics are disabled; every consumer
// accepts a nil collector.
func provideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

func provideCloudWatchClient(awsCfg aws.Config) *awsCloudwatch.Client {
	return awsCloudwatch.NewFromConfig(awsCfg)
}

// provideMetricsExporter returns nil unless the collector is pushed to
// CloudWatch.
func provideMetricsExporter(cfg *config.Config, collector *observability.Collector, client *awsCloudwatch.Client, logger *zap.Logger) *observability.CloudWatchExporter {
	if collector == nil || !cfg.Metrics.CloudWatch {
		return nil
	}
	return observability.NewCloudWatchExporter(client, collector, cfg.Metrics.CloudWatchNamespace, cfg.Metrics.PushInterval, logger.Named("cloudwatch"))
}

func provideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to flush traces", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

func provideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// provideAWSConfig loads the default credential chain. Nothing is contacted
// until a client is used, so the memory and sqlite backends pay nothing.
func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	awsCfg, err := awsConfig.LoadDefaultConfig(loadCtx,
		awsConfig.WithRegion(cfg.Storage.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func provideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsDynamodb.Client {
	return awsDynamodb.NewFromConfig(awsCfg, func(o *awsDynamodb.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
		}
		o.RetryMaxAttempts = 3
	})
}

func provideEventBridgeClient(awsCfg aws.Config) *awsEventbridge.Client {
	return awsEventbridge.NewFromConfig(awsCfg)
}

// provideRecordStore selects the storage backend and optionally wraps it in
// a circuit breaker.
func provideRecordStore(cfg *config.Config, client *awsDynamodb.Client, logger *zap.Logger) (gateway.RecordStore, func(), error) {
	var (
		store   gateway.RecordStore
		cleanup = func() {}
	)

	switch cfg.Storage.Backend {
	case config.BackendDynamoDB:
		store = gateway.NewDynamoStore(client, cfg.Storage.TableName, logger.Named("dynamodb"))
	case config.BackendSQLite:
		sqlite, err := gateway.OpenSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = sqlite
		cleanup = func() {
			if err := sqlite.Close(); err != nil {
				logger.Error("Failed to close sqlite store", zap.Error(err))
			}
		}
	default:
		store = gateway.NewMemoryStore()
	}

	if cfg.Storage.EnableBreaker {
		breaker := gateway.DefaultBreakerConfig("store-" + cfg.Storage.Backend)
		breaker.Timeout = cfg.Storage.BreakerTimeout
		breaker.FailureThreshold = cfg.Storage.BreakerThreshold
		store = gateway.NewBreakerStore(store, breaker, logger)
	}

	logger.Info("Storage backend selected",
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("breaker", cfg.Storage.EnableBreaker),
	)
	return store, cleanup, nil
}

func provideGateway(store gateway.RecordStore, logger *zap.Logger, metrics *observability.Collector, tracer trace.Tracer) *gateway.Gateway {
	return gateway.New(store, logger.Named("gateway"), metrics, tracer)
}

func provideExecutor(logger *zap.Logger) *concurrency.SerialExecutor {
	return concurrency.NewSerialExecutor(logger.Named("lanes"))
}

// provideActivityPublisher publishes to EventBridge in the background when
// events are enabled, and discards them otherwise.
func provideActivityPublisher(cfg *config.Config, client *awsEventbridge.Client, logger *zap.Logger) messaging.ActivityPublisher {
	if !cfg.Events.Enabled {
		return messaging.NopPublisher{}
	}
	named := logger.Named("activity")
	return messaging.NewAsyncPublisher(
		messaging.NewEventBridgePublisher(client, cfg.Events.EventBusName, named),
		cfg.Events.QueueSize,
		cfg.Events.FlushInterval,
		named,
	)
}

func provideDocumentChannel(
	store gateway.DocumentStore,
	registries Registries,
	lanes concurrency.Executor,
	out session.Outbound,
	activity messaging.ActivityPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *docsync.Channel {
	return docsync.NewChannel(store, registries.Documents, lanes, out, activity, metrics, logger)
}

func provideGraphChannel(
	store gateway.GraphStore,
	registries Registries,
	selections *graphsync.Selections,
	lanes concurrency.Executor,
	out session.Outbound,
	activity messaging.ActivityPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *graphsync.Channel {
	return graphsync.NewChannel(store, registries.Graphs, selections, lanes, out, activity, metrics, logger)
}

// provideValidator returns nil when authentication is disabled, which makes
// every connection anonymous.
func provideValidator(cfg *config.Config) (*auth.Validator, error) {
	if !cfg.Security.EnableAuth {
		return nil, nil
	}
	return auth.NewValidator(auth.Config{
		SigningMethod: "HS256",
		SecretKey:     cfg.Security.JWTSecret,
		Issuer:        cfg.Security.JWTIssuer,
		Audience:      cfg.Security.JWTAudience,
		ExpiryTime:    cfg.Security.JWTExpiry,
	})
}

func provideErrorHandler(cfg *config.Config, logger *zap.Logger) *errors.ErrorHandler {
	return errors.NewErrorHandler(logger, cfg.IsDevelopment())
}

func provideWebSocketServer(cfg *config.Config, hub *websocket.Hub, validator *auth.Validator, logger *zap.Logger) *websocket.Server {
	return websocket.NewServer(hub, validator, &websocket.ServerConfig{
		ReadBufferSize:           cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:          cfg.WebSocket.WriteBufferSize,
		SendBufferSize:           cfg.WebSocket.SendBufferSize,
		AllowedOrigins:           cfg.Security.AllowedOrigins,
		MaxConnections:           cfg.WebSocket.MaxConnections,
		MaxConnectionsPerSubject: cfg.WebSocket.MaxConnectionsPerSubject,
	}, logger)
}

func provideHTTPHandler(
	cfg *config.Config,
	gw *gateway.Gateway,
	registries Registries,
	ws *websocket.Server,
	metrics *observability.Collector,
	validator *auth.Validator,
	errorHandler *errors.ErrorHandler,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(rest.Dependencies{
		Documents:        gw,
		Graphs:           gw,
		Store:            gw,
		DocumentPresence: registries.Documents,
		GraphPresence:    registries.Graphs,
		WebSocket:        http.HandlerFunc(ws.HandleWebSocket),
		Metrics:          metrics,
		Validator:        validator,
		ErrorHandler:     errorHandler,
		AllowedOrigins:   cfg.Security.AllowedOrigins,
	}, logger).Setup()
}

func provideHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
