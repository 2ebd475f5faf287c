package service

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/validation"
)

// RoleReader answers access-control questions from the contract
type RoleReader interface {
	IsAuthorizedReviewer(ctx context.Context, address string) (bool, error)
	IsOwner(ctx context.Context, address string) (bool, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
	ContractAddress() string
}

// Roles is the ledger's view of one address
type Roles struct {
	Address  string `json:"address"`
	Reviewer bool   `json:"reviewer"`
	Owner    bool   `json:"owner"`
}

// Balance is the contract's funds
type Balance struct {
	ContractAddress string          `json:"contractAddress"`
	Balance         decimal.Decimal `json:"balance"`
	BalanceWei      string          `json:"balanceWei"`
}

// LedgerService exposes read-only ledger queries
type LedgerService struct {
	ledger RoleReader
}

// NewLedgerService creates a new ledger service
func NewLedgerService(l RoleReader) *LedgerService {
	return &LedgerService{ledger: l}
}

// Roles reports reviewer and owner membership of address
func (s *LedgerService) Roles(ctx context.Context, raw string) (*Roles, error) {
	address, err := validation.Address("address", raw)
	if err != nil {
		return nil, err
	}

	reviewer, err := s.ledger.IsAuthorizedReviewer(ctx, address)
	if err != nil {
		return nil, err
	}
	owner, err := s.ledger.IsOwner(ctx, address)
	if err != nil {
		return nil, err
	}
	return &Roles{Address: address, Reviewer: reviewer, Owner: owner}, nil
}

// Balance returns the contract balance in ETH and wei
func (s *LedgerService) Balance(ctx context.Context) (*Balance, error) {
	wei, err := s.ledger.ContractBalance(ctx)
	if err != nil {
		return nil, err
	}
	return &Balance{
		ContractAddress: s.ledger.ContractAddress(),
		Balance:         ledger.FromWei(wei),
		BalanceWei:      wei.String(),
	}, nil
}
