package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lyzr/claims/common/config"
)

// Dial connects to the configured RPC endpoint and builds a gateway bound to
// the claims contract. Without PRIVATE_KEY the gateway is read-only.
func Dial(ctx context.Context, cfg *config.Config, logger Logger) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, classify("dial", err)
	}

	chainID := big.NewInt(cfg.Ledger.ChainID)
	if chainID.Sign() == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, classify("eth_chainId", err)
		}
	}

	address := common.HexToAddress(cfg.Ledger.ContractAddress)
	bound := bind.NewBoundContract(address, parsedABI, client, client, client)

	var auth *bind.TransactOpts
	if cfg.Ledger.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Ledger.PrivateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		auth, err = bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create transactor: %w", err)
		}
	}

	g := NewGateway(bound, client, auth, Options{
		ContractAddress:     address,
		ConfirmationTimeout: cfg.Ledger.ConfirmationTimeout,
		PollInterval:        cfg.Ledger.PollInterval,
		PaymentGasLimit:     cfg.Ledger.PaymentGasLimit,
	}, logger)
	g.closeFn = client.Close

	logger.Info("ledger gateway connected",
		"contract", g.ContractAddress(),
		"chain_id", chainID.String(),
		"signer", g.SignerAddress())

	return g, nil
}
