package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/lyzr/claims/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// contract is the part of bind.BoundContract the gateway uses
type contract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// chain is the part of ethclient.Client the gateway uses
type chain interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		panic(fmt.Sprintf("invalid claims contract ABI: %v", err))
	}
	return parsed
}

// Options tunes gateway behaviour
type Options struct {
	ContractAddress     common.Address
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	// PaymentGasLimit of 0 lets the node estimate gas
	PaymentGasLimit uint64
}

// Gateway encapsulates every read and write against the claims contract
type Gateway struct {
	contract contract
	chain    chain
	auth     *bind.TransactOpts
	opts     Options
	logger   Logger
	closeFn  func()
}

// NewGateway creates a gateway. auth may be nil for a read-only gateway.
func NewGateway(c contract, ch chain, auth *bind.TransactOpts, opts Options, logger Logger) *Gateway {
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 3 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Gateway{
		contract: c,
		chain:    ch,
		auth:     auth,
		opts:     opts,
		logger:   logger,
	}
}

// Close releases the underlying RPC connection
func (g *Gateway) Close() {
	if g.closeFn != nil {
		g.closeFn()
	}
}

// ContractAddress returns the lowercase contract address
func (g *Gateway) ContractAddress() string {
	return strings.ToLower(g.opts.ContractAddress.Hex())
}

// SignerAddress returns the server signer, or "" for a read-only gateway
func (g *Gateway) SignerAddress() string {
	if g.auth == nil {
		return ""
	}
	return strings.ToLower(g.auth.From.Hex())
}

// TransitionKind names a state-changing contract call
type TransitionKind string

const (
	KindRegister TransitionKind = "register"
	KindValidate TransitionKind = "validate"
	KindApprove  TransitionKind = "approve"
	KindReject   TransitionKind = "reject"
	KindPay      TransitionKind = "pay"
)

// kindMethods lists contract methods that realise each transition kind.
// Wallet payments may use the public payment entry point.
var kindMethods = map[TransitionKind][]string{
	KindRegister: {methodRegister},
	KindValidate: {methodValidate},
	KindApprove:  {methodApprove},
	KindReject:   {methodReject},
	KindPay:      {methodPay, methodPayPublic},
}

// Accepts reports whether a confirmed call to method realises kind
func (k TransitionKind) Accepts(method string) bool {
	for _, m := range kindMethods[k] {
		if m == method {
			return true
		}
	}
	return false
}

// Transition is a request to change claim state on the ledger
type Transition struct {
	Kind    TransitionKind
	ClaimID int64
	// Description and AmountWei are used by register; AmountWei is the value sent by pay
	Description string
	AmountWei   *big.Int
	// Notes carries approval notes or the rejection reason
	Notes string
}

func (t Transition) call() (string, []interface{}, error) {
	if t.ClaimID <= 0 {
		return "", nil, fmt.Errorf("invalid claim id %d", t.ClaimID)
	}
	id := big.NewInt(t.ClaimID)

	switch t.Kind {
	case KindRegister:
		if t.AmountWei == nil {
			return "", nil, errors.New("register requires an amount")
		}
		return methodRegister, []interface{}{id, t.Description, t.AmountWei}, nil
	case KindValidate:
		return methodValidate, []interface{}{id}, nil
	case KindApprove:
		return methodApprove, []interface{}{id, t.Notes}, nil
	case KindReject:
		return methodReject, []interface{}{id, t.Notes}, nil
	case KindPay:
		return methodPay, []interface{}{id}, nil
	default:
		return "", nil, fmt.Errorf("unknown transition kind %q", t.Kind)
	}
}

// PendingTransaction is a broadcast but not yet confirmed transaction
type PendingTransaction struct {
	Hash        string
	Kind        TransitionKind
	Method      string
	ClaimID     int64
	From        string
	SubmittedAt time.Time
}

// Receipt is a mined transaction
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	// From is the effective (recovered) sender, lowercase
	From string `json:"from"`
	// Method and ClaimID are decoded from calldata for externally submitted transactions
	Method  string `json:"method,omitempty"`
	ClaimID int64  `json:"claimId,omitempty"`
}

// CanonicalClaim is the authoritative ledger-side claim
type CanonicalClaim struct {
	ClaimID     int64              `json:"claimId"`
	Requester   string             `json:"requester"`
	Description string             `json:"description"`
	Amount      decimal.Decimal    `json:"amount"`
	AmountWei   *big.Int           `json:"amountWei"`
	Status      models.ClaimStatus `json:"status"`
	StatusCode  uint8              `json:"statusCode"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	ValidatedBy string             `json:"validatedBy,omitempty"`
	ProcessedBy string             `json:"processedBy,omitempty"`
	AdminNotes  string             `json:"adminNotes,omitempty"`
}

// FetchClaim reads the canonical claim. A zero claim id in the returned tuple
// means the ledger has no such claim and is reported as ErrClaimNotFound.
func (g *Gateway) FetchClaim(ctx context.Context, claimID int64) (*CanonicalClaim, error) {
	var out []interface{}
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetClaim, big.NewInt(claimID))
	if err != nil {
		return nil, classify(methodGetClaim, err)
	}

	claim, err := decodeClaim(out)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, fmt.Errorf("%w: %d", ErrClaimNotFound, claimID)
	}
	return claim, nil
}

func decodeClaim(out []interface{}) (*CanonicalClaim, error) {
	if len(out) != 10 {
		return nil, fmt.Errorf("unexpected %s result length %d", methodGetClaim, len(out))
	}

	id, ok0 := out[0].(*big.Int)
	requester, ok1 := out[1].(common.Address)
	description, ok2 := out[2].(string)
	amount, ok3 := out[3].(*big.Int)
	code, ok4 := out[4].(uint8)
	created, ok5 := out[5].(*big.Int)
	updated, ok6 := out[6].(*big.Int)
	validatedBy, ok7 := out[7].(common.Address)
	processedBy, ok8 := out[8].(common.Address)
	notes, ok9 := out[9].(string)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9) {
		return nil, fmt.Errorf("unexpected %s result types", methodGetClaim)
	}

	if id == nil || id.Sign() == 0 {
		return nil, nil
	}

	status, err := StatusFromCode(code)
	if err != nil {
		return nil, err
	}

	return &CanonicalClaim{
		ClaimID:     id.Int64(),
		Requester:   addressString(requester),
		Description: description,
		Amount:      FromWei(amount),
		AmountWei:   amount,
		Status:      status,
		StatusCode:  code,
		CreatedAt:   unixTime(created),
		UpdatedAt:   unixTime(updated),
		ValidatedBy: addressString(validatedBy),
		ProcessedBy: addressString(processedBy),
		AdminNotes:  notes,
	}, nil
}

// Submit signs and broadcasts a transition with the server key
func (g *Gateway) Submit(ctx context.Context, t Transition) (*PendingTransaction, error) {
	if g.auth == nil {
		return nil, ErrReadOnly
	}

	method, params, err := t.call()
	if err != nil {
		return nil, err
	}

	opts := *g.auth
	opts.Context = ctx
	if t.Kind == KindPay {
		opts.Value = t.AmountWei
		if g.opts.PaymentGasLimit > 0 {
			opts.GasLimit = g.opts.PaymentGasLimit
		}
	}

	tx, err := g.contract.Transact(&opts, method, params...)
	if err != nil {
		g.logger.Warn("ledger submit failed",
			"claim_id", t.ClaimID,
			"kind", t.Kind,
			"error", err)
		return nil, classify(method, err)
	}

	pending := &PendingTransaction{
		Hash:        tx.Hash().Hex(),
		Kind:        t.Kind,
		Method:      method,
		ClaimID:     t.ClaimID,
		From:        g.SignerAddress(),
		SubmittedAt: time.Now().UTC(),
	}

	g.logger.Info("ledger transaction submitted",
		"claim_id", t.ClaimID,
		"kind", t.Kind,
		"tx_hash", pending.Hash)

	return pending, nil
}

// AwaitConfirmation polls for the receipt until it is mined, the configured
// timeout expires (ErrConfirmationTimeout) or ctx is cancelled.
func (g *Gateway) AwaitConfirmation(ctx context.Context, pending *PendingTransaction) (*Receipt, error) {
	receipt, err := g.waitReceipt(ctx, common.HexToHash(pending.Hash), pending.Method)
	if err != nil {
		return nil, err
	}

	r := toReceipt(receipt, pending.From)
	r.Method = pending.Method
	r.ClaimID = pending.ClaimID

	g.logger.Info("ledger transaction confirmed",
		"claim_id", pending.ClaimID,
		"kind", pending.Kind,
		"tx_hash", r.TxHash,
		"block", r.BlockNumber,
		"wait", time.Since(pending.SubmittedAt))

	return r, nil
}

// ConfirmExternal waits for a transaction broadcast by someone else (a wallet),
// checks that it called the claims contract, recovers its sender and decodes
// the called method and claim id.
func (g *Gateway) ConfirmExternal(ctx context.Context, txHash string) (*Receipt, error) {
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxHash, txHash)
	}
	hash := common.BytesToHash(raw)

	receipt, err := g.waitReceipt(ctx, hash, "")
	if err != nil {
		return nil, err
	}

	tx, _, err := g.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, classify("eth_getTransactionByHash", err)
	}

	if tx.To() == nil || *tx.To() != g.opts.ContractAddress {
		return nil, &TxError{Kind: ErrForeignTransaction, TxHash: hash.Hex()}
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", hash.Hex(), err)
	}

	r := toReceipt(receipt, sender.Hex())
	r.Method, r.ClaimID = decodeCall(tx.Data())

	g.logger.Info("external ledger transaction confirmed",
		"claim_id", r.ClaimID,
		"method", r.Method,
		"tx_hash", r.TxHash,
		"from", r.From)

	return r, nil
}

func (g *Gateway) waitReceipt(ctx context.Context, hash common.Hash, method string) (*types.Receipt, error) {
	timeout := time.NewTimer(g.opts.ConfirmationTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := g.chain.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &TxError{
					Kind:   ErrReverted,
					Method: method,
					Reason: "transaction failed on-chain",
					TxHash: hash.Hex(),
				}
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// not mined yet
		default:
			lastErr = err
			g.logger.Debug("receipt poll failed", "tx_hash", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await confirmation of %s: %w", hash.Hex(), ctx.Err())
		case <-timeout.C:
			return nil, &TxError{
				Kind:   ErrConfirmationTimeout,
				Method: method,
				TxHash: hash.Hex(),
				Err:    lastErr,
			}
		case <-ticker.C:
		}
	}
}

// IsAuthorizedReviewer asks the contract's administrator list
func (g *Gateway) IsAuthorizedReviewer(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}

	var out []interface{}
	err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodAdministrator, common.HexToAddress(address))
	if err != nil {
		return false, classify(methodAdministrator, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected %s result length %d", methodAdministrator, len(out))
	}
	ok, isBool := out[0].(bool)
	if !isBool {
		return false, fmt.Errorf("unexpected %s result type %T", methodAdministrator, out[0])
	}
	return ok, nil
}

// Owner returns the contract owner, lowercase
func (g *Gateway) Owner(ctx context.Context) (string, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodOwner); err != nil {
		return "", classify(methodOwner, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("unexpected %s result length %d", methodOwner, len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected %s result type %T", methodOwner, out[0])
	}
	return strings.ToLower(owner.Hex()), nil
}

// IsOwner reports whether address owns the contract
func (g *Gateway) IsOwner(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}
	owner, err := g.Owner(ctx)
	if err != nil {
		return false, err
	}
	return owner == models.NormalizeAddress(address), nil
}

// ContractBalance returns the contract's liquid balance in wei
func (g *Gateway) ContractBalance(ctx context.Context) (*big.Int, error) {
	balance, err := g.chain.BalanceAt(ctx, g.opts.ContractAddress, nil)
	if err != nil {
		return nil, classify("eth_getBalance", err)
	}
	return balance, nil
}

// SetReviewer adds or removes an administrator. Only the owner key can do this.
func (g *Gateway) SetReviewer(ctx context.Context, address string, grant bool) (*Receipt, error) {
	if g.auth == nil {
		return nil, ErrReadOnly
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	method := methodRemoveAdmin
	if grant {
		method = methodAddAdmin
	}

	opts := *g.auth
	opts.Context = ctx
	tx, err := g.contract.Transact(&opts, method, common.HexToAddress(address))
	if err != nil {
		return nil, classify(method, err)
	}

	receipt, err := g.waitReceipt(ctx, tx.Hash(), method)
	if err != nil {
		return nil, err
	}

	r := toReceipt(receipt, g.SignerAddress())
	r.Method = method
	return r, nil
}

func decodeCall(data []byte) (string, int64) {
	if len(data) < 4 {
		return "", 0
	}
	method, err := parsedABI.MethodById(data[:4])
	if err != nil {
		return "", 0
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) == 0 {
		return method.Name, 0
	}
	if id, ok := args[0].(*big.Int); ok && id.IsInt64() {
		return method.Name, id.Int64()
	}
	return method.Name, 0
}

func toReceipt(r *types.Receipt, from string) *Receipt {
	out := &Receipt{
		TxHash:  r.TxHash.Hex(),
		GasUsed: r.GasUsed,
		From:    strings.ToLower(from),
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

func addressString(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return strings.ToLower(a.Hex())
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
