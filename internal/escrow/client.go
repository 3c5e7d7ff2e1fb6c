package escrow

// Package escrow is the gateway to the on-chain escrow contracts. One
// client holds the platform owner's signing key; every owner-signed
// transaction is serialized through the client so nonces are assigned in
// submission order.

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrChainUnavailable covers RPC transport failures and timeouts.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrTransactionFailed covers mined-but-reverted transactions.
	ErrTransactionFailed = errors.New("transaction failed")
)

// TxGasLimit is the fixed gas ceiling for every mutating escrow call.
const TxGasLimit uint64 = 3_000_000

const receiptPollInterval = 500 * time.Millisecond

// Backend is the subset of the Ethereum RPC the client uses.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	RPCURL          string
	OwnerKeyHex     string
	BytecodePath    string
	ConnectRetries  int
	ConnectInterval time.Duration
	CallTimeout     time.Duration
	ReceiptTimeout  time.Duration
}

type Client struct {
	backend  Backend
	abi      abi.ABI
	bytecode []byte
	ownerKey *ecdsa.PrivateKey
	owner    common.Address
	chainID  *big.Int
	signer   types.Signer

	callTimeout    time.Duration
	receiptTimeout time.Duration
	logger         *slog.Logger

	// mu serializes owner-signed submissions to preserve nonce ordering.
	mu sync.Mutex
}

// Dial probes the RPC endpoint within a bounded retry window and returns a
// ready client. The probe budget comes from configuration (the classic
// 30 x 1s window by default).
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	ownerKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.OwnerKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse owner key: %w", err)
	}

	bytecode, err := loadBytecode(cfg.BytecodePath)
	if err != nil {
		return nil, err
	}

	parsedABI, err := contractABI()
	if err != nil {
		return nil, err
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 1
	}

	var (
		rpc     *ethclient.Client
		chainID *big.Int
	)
	for attempt := 1; attempt <= retries; attempt++ {
		rpc, err = ethclient.DialContext(ctx, cfg.RPCURL)
		if err == nil {
			chainID, err = rpc.ChainID(ctx)
			if err == nil {
				break
			}
			rpc.Close()
		}
		if attempt == retries {
			return nil, fmt.Errorf("%w: no response from %s after %d attempts: %v",
				ErrChainUnavailable, cfg.RPCURL, retries, err)
		}
		logger.Info("waiting for chain RPC", "attempt", attempt, "max_attempts", retries)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, ctx.Err())
		case <-time.After(cfg.ConnectInterval):
		}
	}

	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)
	logger.Info("connected to chain RPC", "chain_id", chainID, "owner", owner.Hex())

	return &Client{
		backend:        rpc,
		abi:            parsedABI,
		bytecode:       bytecode,
		ownerKey:       ownerKey,
		owner:          owner,
		chainID:        chainID,
		signer:         types.LatestSignerForChainID(chainID),
		callTimeout:    cfg.CallTimeout,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         logger,
	}, nil
}

// NewClient wires a client over an existing backend. Used by tests and by
// tooling that already holds a connection.
func NewClient(backend Backend, ownerKey *ecdsa.PrivateKey, bytecode []byte, chainID *big.Int, callTimeout, receiptTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	parsedABI, err := contractABI()
	if err != nil {
		return nil, err
	}
	return &Client{
		backend:        backend,
		abi:            parsedABI,
		bytecode:       bytecode,
		ownerKey:       ownerKey,
		owner:          crypto.PubkeyToAddress(ownerKey.PublicKey),
		chainID:        chainID,
		signer:         types.LatestSignerForChainID(chainID),
		callTimeout:    callTimeout,
		receiptTimeout: receiptTimeout,
		logger:         logger,
	}, nil
}

func (c *Client) Owner() common.Address { return c.owner }

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// GasLimit reports the fixed gas ceiling used for escrow transactions.
func (c *Client) GasLimit() uint64 { return TxGasLimit }

// Deploy submits a contract-creation transaction funded by the owner and
// blocks until it is mined. amountMinorUnits is the escrow amount in
// integer minor units (price x 100).
func (c *Client) Deploy(ctx context.Context, customer common.Address, amountMinorUnits *big.Int) (common.Address, error) {
	args, err := c.abi.Pack("", c.owner, customer, amountMinorUnits)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack constructor args: %w", err)
	}
	data := make([]byte, 0, len(c.bytecode)+len(args))
	data = append(data, c.bytecode...)
	data = append(data, args...)

	receipt, err := c.submit(ctx, nil, data)
	if err != nil {
		return common.Address{}, err
	}
	return receipt.ContractAddress, nil
}

// PickUp records the courier's delivery address on the contract.
func (c *Client) PickUp(ctx context.Context, contract, courier common.Address) error {
	return c.transact(ctx, contract, "pickUp", courier)
}

// FinaliseDelivery releases the escrowed funds to the participants.
func (c *Client) FinaliseDelivery(ctx context.Context, contract common.Address) error {
	return c.transact(ctx, contract, "finaliseDelivery")
}

func (c *Client) IsPaid(ctx context.Context, contract common.Address) (bool, error) {
	return c.callBool(ctx, contract, "isPaid")
}

func (c *Client) IsPickedUp(ctx context.Context, contract common.Address) (bool, error) {
	return c.callBool(ctx, contract, "isPickedUp")
}

// Customer reads the counterparty address recorded at deployment.
func (c *Client) Customer(ctx context.Context, contract common.Address) (common.Address, error) {
	out, err := c.call(ctx, contract, "customer")
	if err != nil {
		return common.Address{}, err
	}
	var addr common.Address
	if err := c.abi.UnpackIntoInterface(&addr, "customer", out); err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack customer: %w", err)
	}
	return addr, nil
}

// GasPrice reads the current suggested gas price, used for invoices.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, chainErr("suggest gas price", err)
	}
	return price, nil
}

// PendingNonce reads the account's next transaction count, used for invoices.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	nonce, err := c.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, chainErr("pending nonce", err)
	}
	return nonce, nil
}

func (c *Client) transact(ctx context.Context, to common.Address, method string, args ...any) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	_, err = c.submit(ctx, &to, data)
	return err
}

// submit signs and sends an owner transaction, then waits for the receipt.
// The lock is held from nonce read to send so that concurrent submissions
// cannot reorder nonces; waiting for mining happens outside the lock.
func (c *Client) submit(ctx context.Context, to *common.Address, data []byte) (*types.Receipt, error) {
	signed, err := c.signAndSend(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return c.waitMined(ctx, signed.Hash())
}

func (c *Client) signAndSend(ctx context.Context, to *common.Address, data []byte) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	nonce, err := c.backend.PendingNonceAt(callCtx, c.owner)
	if err != nil {
		return nil, chainErr("pending nonce", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, chainErr("suggest gas price", err)
	}

	var tx *types.Transaction
	if to == nil {
		tx = types.NewContractCreation(nonce, new(big.Int), TxGasLimit, gasPrice, data)
	} else {
		tx = types.NewTransaction(nonce, *to, new(big.Int), TxGasLimit, gasPrice, data)
	}

	signed, err := types.SignTx(tx, c.signer, c.ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(callCtx, signed); err != nil {
		return nil, chainErr("send transaction", err)
	}
	return signed, nil
}

// waitMined polls for the receipt with a bounded budget. An exhausted
// budget is a chain availability failure, not a revert.
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: transaction %s reverted", ErrTransactionFailed, txHash.Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, chainErr("transaction receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: transaction %s not mined in time", ErrChainUnavailable, txHash.Hex())
		case <-ticker.C:
		}
	}
}

func (c *Client) callBool(ctx context.Context, contract common.Address, method string) (bool, error) {
	out, err := c.call(ctx, contract, method)
	if err != nil {
		return false, err
	}
	var result bool
	if err := c.abi.UnpackIntoInterface(&result, method, out); err != nil {
		return false, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, contract common.Address, method string) ([]byte, error) {
	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, chainErr(method, err)
	}
	return out, nil
}

func chainErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrChainUnavailable, op, err)
}
