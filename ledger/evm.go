package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Registry contract methods.
const (
	StoreMethod    = "storeArticleHash"
	IsStoredMethod = "isArticleHashStored"
	DataMethod     = "getArticleData"
)

// contractABI describes the subset of the registry contract used here.
const contractABI = `[
	{
		"inputs": [
			{"internalType": "string", "name": "contentHash", "type": "string"},
			{"internalType": "string", "name": "sourceUrl", "type": "string"},
			{"internalType": "uint256", "name": "timestamp", "type": "uint256"}
		],
		"name": "storeArticleHash",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "string", "name": "contentHash", "type": "string"}],
		"name": "isArticleHashStored",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "string", "name": "contentHash", "type": "string"}],
		"name": "getArticleData",
		"outputs": [
			{"internalType": "string", "name": "sourceUrl", "type": "string"},
			{"internalType": "uint256", "name": "timestamp", "type": "uint256"},
			{"internalType": "address", "name": "submitter", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var errReverted = errors.New("transaction reverted")

// transactor sends a signed contract call.
type transactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// caller runs a read-only contract call.
type caller interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
}

// receiptWaiter blocks until tx is mined.
type receiptWaiter func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

// EVMAnchor writes payloads to a hash registry contract on an EVM chain.
type EVMAnchor struct {
	contract transactor
	reader   caller
	wait     receiptWaiter
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	gasLimit uint64
	timeout  time.Duration
	closer   func()
}

// DialEVM connects to the RPC endpoint and prepares the signer.
func DialEVM(ctx context.Context, cfg Config) (*EVMAnchor, error) {
	cfg = cfg.withDefaults()

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, anchorError("dial", err)
	}
	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, anchorError("chain id", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(address, parsed, client, client, client)

	return &EVMAnchor{
		contract: contract,
		reader:   contract,
		wait: func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
			return bind.WaitMined(ctx, client, tx)
		},
		key:      key,
		chainID:  chainID,
		gasLimit: cfg.GasLimit,
		timeout:  cfg.Timeout,
		closer:   client.Close,
	}, nil
}

// Submit sends storeArticleHash(fingerprint, url, epochSeconds) and waits
// for a successful receipt. The reference is the transaction hash.
func (a *EVMAnchor) Submit(ctx context.Context, p Payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	opts, err := bind.NewKeyedTransactorWithChainID(a.key, a.chainID)
	if err != nil {
		return "", anchorError("signer", err)
	}
	opts.Context = ctx
	opts.GasLimit = a.gasLimit

	tx, err := a.contract.Transact(opts, StoreMethod,
		p.Fingerprint, p.CanonicalURL, big.NewInt(p.PublishedAt.Unix()))
	if err != nil {
		return "", anchorError("transact", err)
	}

	receipt, err := a.wait(ctx, tx)
	if err != nil {
		return "", anchorError("wait for receipt "+tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", anchorError("receipt "+tx.Hash().Hex(), errReverted)
	}

	return tx.Hash().Hex(), nil
}

// Lookup reads the registry entry for fingerprint. It returns
// ErrNotAnchored when the registry does not hold it.
func (a *EVMAnchor) Lookup(ctx context.Context, fingerprint string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	opts := &bind.CallOpts{Context: ctx}

	var stored []interface{}
	if err := a.reader.Call(opts, &stored, IsStoredMethod, fingerprint); err != nil {
		return nil, anchorError("lookup", err)
	}
	if len(stored) != 1 {
		return nil, anchorError("lookup", fmt.Errorf("unexpected %s result length %d", IsStoredMethod, len(stored)))
	}
	if !*abi.ConvertType(stored[0], new(bool)).(*bool) {
		return nil, ErrNotAnchored
	}

	var data []interface{}
	if err := a.reader.Call(opts, &data, DataMethod, fingerprint); err != nil {
		return nil, anchorError("read record", err)
	}
	if len(data) != 3 {
		return nil, anchorError("read record", fmt.Errorf("unexpected %s result length %d", DataMethod, len(data)))
	}

	timestamp := *abi.ConvertType(data[1], new(*big.Int)).(**big.Int)
	submitter := *abi.ConvertType(data[2], new(common.Address)).(*common.Address)
	return &Record{
		SourceURL:  *abi.ConvertType(data[0], new(string)).(*string),
		AnchoredAt: time.Unix(timestamp.Int64(), 0).UTC(),
		Submitter:  submitter.Hex(),
	}, nil
}

// Close releases the RPC connection.
func (a *EVMAnchor) Close() {
	if a.closer != nil {
		a.closer()
	}
}
