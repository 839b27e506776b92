// Package di wires the application together. Providers are plain
// functions composed by InitializeContainer; there is no code generation
// involved.
package di

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pagespace/application/ports"
	"pagespace/application/services"
	"pagespace/collab"
	"pagespace/collab/relay"
	"pagespace/infrastructure/config"
	dynamodbstore "pagespace/infrastructure/persistence/dynamodb"
	"pagespace/infrastructure/persistence/memory"
	"pagespace/interfaces/http/rest"
	"pagespace/interfaces/ws"
	"pagespace/pkg/auth"
	"pagespace/pkg/locks"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Pages      ports.PageRepository
	Workspaces ports.WorkspaceRepository
	Members    ports.MemberRepository
	Documents  ports.DocumentStore

	PageService      *services.PageService
	WorkspaceService *services.WorkspaceService

	Bridge   *collab.Bridge
	Registry *collab.Registry

	Router *rest.Router
}

// InitializeContainer builds the full dependency graph
func InitializeContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	if err := c.providePersistence(ctx); err != nil {
		return nil, err
	}

	km := locks.NewKeyedMutex()
	authorizer := services.NewMembershipAuthorizer(c.Members)
	c.PageService = services.NewPageService(c.Pages, c.Documents, authorizer, km, logger)
	c.WorkspaceService = services.NewWorkspaceService(c.Workspaces, c.Members, logger)

	c.Bridge = collab.NewBridge(c.Pages, c.Documents, km, logger)
	c.Registry = collab.NewRegistry(
		c.Bridge,
		provideRelay(cfg, logger),
		cfg.CollabDebounce,
		cfg.CollabCloseTimeout,
		logger,
	)
	c.PageService.SetSessionMonitor(c.Registry)

	validator, err := provideJWTValidator(cfg)
	if err != nil {
		return nil, err
	}

	syncHandler := ws.NewHandler(c.Registry, c.PageService, logger)
	c.Router = rest.NewRouter(cfg, c.PageService, c.WorkspaceService, syncHandler, validator, logger)

	return c, nil
}

// ProvideLogger creates the process logger
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build()
}

// providePersistence selects the storage backend from configuration
func (c *Container) providePersistence(ctx context.Context) error {
	switch c.Config.StorageDriver {
	case "memory":
		pages := memory.NewPageRepository()
		members := memory.NewMemberRepository()
		c.Pages = pages
		c.Members = members
		c.Workspaces = memory.NewWorkspaceRepository(members, pages)
		c.Documents = memory.NewDocumentStore()
		c.Logger.Warn("using in-memory storage, nothing will be persisted")
		return nil

	case "dynamodb":
		client, err := provideDynamoDBClient(ctx, c.Config)
		if err != nil {
			return fmt.Errorf("create dynamodb client: %w", err)
		}
		c.Pages = dynamodbstore.NewPageRepository(client, c.Config.DynamoDBTable, c.Config.IndexName, c.Logger)
		c.Workspaces = dynamodbstore.NewWorkspaceRepository(client, c.Config.DynamoDBTable, c.Config.IndexName, c.Logger)
		c.Members = dynamodbstore.NewMemberRepository(client, c.Config.DynamoDBTable, c.Logger)
		c.Documents = dynamodbstore.NewDocumentStore(client, c.Config.DynamoDBTable, c.Logger)
		return nil

	default:
		return fmt.Errorf("unknown storage driver %q", c.Config.StorageDriver)
	}
}

// provideDynamoDBClient creates a DynamoDB client from ambient AWS config
func provideDynamoDBClient(ctx context.Context, cfg *config.Config) (*awsdynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return awsdynamodb.NewFromConfig(awsCfg), nil
}

// provideRelay wires the cross-instance update relay when Redis is
// configured, and a no-op otherwise
func provideRelay(cfg *config.Config, logger *zap.Logger) collab.Relay {
	if cfg.RedisAddr == "" {
		return collab.NoopRelay{}
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	logger.Info("collaboration relay enabled", zap.String("redisAddr", cfg.RedisAddr))
	return relay.NewRedisRelay(client, logger)
}

// provideJWTValidator creates the token validator. Development falls back
// to a fixed secret; production refuses to start without one (enforced in
// config validation).
func provideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "development-secret-change-in-production"
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: secret,
		Issuer:    cfg.JWTIssuer,
	})
}
