//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"coauthor-backend/internal/config"

	"github.com/google/wire"
	"go.uber.org/zap"
)

// InitializeContainer creates a fully wired container.
func InitializeContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
