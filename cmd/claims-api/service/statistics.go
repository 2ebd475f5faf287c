package service

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/lyzr/claims/common/cache"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
)

const (
	statisticsKey = "statistics"
	statisticsTTL = 30 * time.Second
)

// StatisticsSource aggregates the mirror
type StatisticsSource interface {
	AggregateStatistics(ctx context.Context) (*models.Statistics, error)
}

// BalanceReader reads the contract's funds
type BalanceReader interface {
	ContractBalance(ctx context.Context) (*big.Int, error)
	ContractAddress() string
}

// StatisticsView combines mirror aggregates with the contract balance
type StatisticsView struct {
	Database *models.Statistics `json:"database"`
	Ledger   *Balance           `json:"ledger"`
	CachedAt time.Time          `json:"cachedAt"`
}

// StatisticsService serves aggregate statistics through a short-lived cache
type StatisticsService struct {
	source StatisticsSource
	ledger BalanceReader
	cache  cache.Cache
	log    *logger.Logger
	now    func() time.Time
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(source StatisticsSource, l BalanceReader, c cache.Cache, log *logger.Logger) *StatisticsService {
	return &StatisticsService{
		source: source,
		ledger: l,
		cache:  c,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns cached statistics when fresh, otherwise recomputes them.
// Cache failures degrade to a direct computation.
func (s *StatisticsService) Get(ctx context.Context) (*StatisticsView, error) {
	if raw, ok, err := s.cache.Get(ctx, statisticsKey); err != nil {
		s.log.Warn("statistics cache read failed", "error", err)
	} else if ok {
		var view StatisticsView
		if err := json.Unmarshal(raw, &view); err == nil {
			return &view, nil
		}
	}

	stats, err := s.source.AggregateStatistics(ctx)
	if err != nil {
		return nil, err
	}

	view := &StatisticsView{Database: stats, CachedAt: s.now()}
	if balance, err := s.ledger.ContractBalance(ctx); err != nil {
		s.log.Warn("failed to read contract balance", "error", err)
	} else {
		view.Ledger = &Balance{
			ContractAddress: s.ledger.ContractAddress(),
			Balance:         ledger.FromWei(balance),
			BalanceWei:      balance.String(),
		}
	}

	if raw, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, statisticsKey, raw, statisticsTTL); err != nil {
			s.log.Warn("statistics cache write failed", "error", err)
		}
	}
	return view, nil
}
