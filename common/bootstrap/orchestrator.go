package bootstrap

import (
	"fmt"
	"time"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/redis"
	"github.com/lyzr/claims/common/repository"
	"github.com/lyzr/claims/common/validation"
)

// guardSlack keeps the in-flight key alive past the confirmation wait
const guardSlack = 30 * time.Second

// NewOrchestrator wires the transition orchestrator from initialized components.
// Without Redis there is no in-flight guard, divergence stream or event channel;
// without the ledger there is nothing to orchestrate.
func (c *Components) NewOrchestrator(claims *repository.ClaimRepository, users *repository.UserRepository) (*lifecycle.Orchestrator, error) {
	if c.Ledger == nil {
		return nil, fmt.Errorf("orchestrator requires the ledger gateway")
	}
	if claims == nil {
		return nil, fmt.Errorf("orchestrator requires the claim repository")
	}

	policy, err := validation.NewIntakePolicy(c.Config.Intake.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intake rules: %w", err)
	}

	opts := []lifecycle.Option{
		lifecycle.WithIntakePolicy(policy),
		lifecycle.WithMetrics(c.Metrics),
		lifecycle.WithConfirmationWindow(c.Config.Ledger.ConfirmationTimeout),
	}
	if users != nil {
		opts = append(opts, lifecycle.WithUsers(users))
	}
	if c.Redis != nil {
		opts = append(opts,
			lifecycle.WithGuard(redis.NewClaimGuard(c.Redis, c.Config.Ledger.ConfirmationTimeout+guardSlack)),
			lifecycle.WithDivergenceSink(divergence.NewRecorder(c.Redis, c.Config.Reconciler.Stream, c.Logger)),
			lifecycle.WithEvents(c.Redis),
		)
	} else {
		c.Logger.Warn("redis disabled: no in-flight guard, divergence stream or claim events")
	}

	c.Logger.Info("orchestrator ready",
		"intake_rules", policy.Len(),
		"signer", c.Ledger.SignerAddress(),
		"contract", c.Ledger.ContractAddress())

	return lifecycle.New(c.Ledger, claims, c.Logger, opts...)
}
