package container

import (
	"fmt"

	"github.com/lyzr/claims/cmd/claims-api/service"
	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/cache"
	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/ratelimit"
	"github.com/lyzr/claims/common/repository"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	ClaimRepo *repository.ClaimRepository
	UserRepo  *repository.UserRepository

	// Infrastructure
	Cache   cache.Cache
	Limiter *ratelimit.RateLimiter // nil when rate limiting is disabled

	// Services
	Orchestrator      *lifecycle.Orchestrator
	ClaimQueryService *service.ClaimQueryService
	MetadataService   *service.MetadataService
	StatisticsService *service.StatisticsService
	UserService       *service.UserService
	LedgerService     *service.LedgerService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.DB == nil {
		return nil, fmt.Errorf("claims-api requires a database")
	}
	if components.Ledger == nil {
		return nil, fmt.Errorf("claims-api requires the ledger gateway")
	}

	// Initialize repositories
	claimRepo := repository.NewClaimRepository(components.DB)
	userRepo := repository.NewUserRepository(components.DB)

	// Shared infrastructure: Redis when available, in-process otherwise
	var statsCache cache.Cache
	var limiter *ratelimit.RateLimiter
	if components.Redis != nil {
		statsCache = cache.NewRedisCache(components.Redis, "claims:cache:")

		rl := components.Config.RateLimit
		if rl.Enabled {
			limiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), ratelimit.Limits{
				Global: rl.Global,
				Wallet: rl.Wallet,
				Window: rl.Window,
			}, components.Logger)
		}
	} else {
		statsCache = cache.NewMemoryCache(components.Logger)
	}

	// Initialize services (bottom-up: dependencies first)
	orchestrator, err := components.NewOrchestrator(claimRepo, userRepo)
	if err != nil {
		statsCache.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &Container{
		Components:        components,
		ClaimRepo:         claimRepo,
		UserRepo:          userRepo,
		Cache:             statsCache,
		Limiter:           limiter,
		Orchestrator:      orchestrator,
		ClaimQueryService: service.NewClaimQueryService(claimRepo, components.Ledger, components.Logger),
		MetadataService:   service.NewMetadataService(claimRepo, components.Logger),
		StatisticsService: service.NewStatisticsService(claimRepo, components.Ledger, statsCache, components.Logger),
		UserService:       service.NewUserService(userRepo, components.Logger),
		LedgerService:     service.NewLedgerService(components.Ledger),
	}, nil
}

// Close releases container-owned resources
func (c *Container) Close() error {
	return c.Cache.Close()
}
