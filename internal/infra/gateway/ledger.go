package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/codec"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/usecase"
)

var tracer = otel.Tracer("gateway")

const (
	cacheKeyAuthor  = "author"
	cacheKeyChainID = "chainID"
)

// Backend is the part of an Ethereum client the ledger needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Ledger talks to the BookShelf registry contract.
type Ledger struct {
	backend  Backend
	address  common.Address
	contract *bind.BoundContract
	keyring  *Keyring
	cache    *cache.Cache

	waitTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
}

// Dial connects to rpcURL and binds the registry at contractAddress.
func Dial(ctx context.Context, rpcURL, contractAddress string, keyring *Keyring, waitTimeout time.Duration) (*Ledger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger: %v", err)
	}
	return NewLedger(client, contractAddress, keyring, waitTimeout)
}

func NewLedger(backend Backend, contractAddress string, keyring *Keyring, waitTimeout time.Duration) (*Ledger, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddress)
	}
	parsed, err := parseBookShelfABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %v", err)
	}
	if keyring == nil {
		keyring, _ = NewKeyring(nil)
	}
	if waitTimeout <= 0 {
		waitTimeout = usecase.DefaultConfirmTimeout
	}

	address := common.HexToAddress(contractAddress)
	ctx, cancel := context.WithCancel(context.Background())

	return &Ledger{
		backend:     backend,
		address:     address,
		contract:    bind.NewBoundContract(address, parsed, backend, backend, backend),
		keyring:     keyring,
		cache:       cache.New(10*time.Minute, 15*time.Minute),
		waitTimeout: waitTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

func (l *Ledger) Contract() string {
	return l.address.Hex()
}

func (l *Ledger) Keyring() *Keyring {
	return l.keyring
}

// Close stops waiting for pending receipts.
func (l *Ledger) Close() {
	l.cancel()
}

func (l *Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	if cached, found := l.cache.Get(cacheKeyChainID); found {
		return new(big.Int).Set(cached.(*big.Int)), nil
	}
	id, err := l.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %v", err)
	}
	l.cache.Set(cacheKeyChainID, id, cache.NoExpiration)
	return new(big.Int).Set(id), nil
}

func (l *Ledger) ReadAuthor(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Gateway.ReadAuthor")
	defer span.End()

	if cached, found := l.cache.Get(cacheKeyAuthor); found {
		return cached.(string), nil
	}

	var out []interface{}
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "author")
	if err != nil {
		span.RecordError(errors.Wrap(err, "Ledger.Gateway.ReadAuthor: call failed"))
		return "", fmt.Errorf("failed to call author: %v", err)
	}

	author := (*abi.ConvertType(out[0], new(common.Address)).(*common.Address)).Hex()
	l.cache.Set(cacheKeyAuthor, author, cache.DefaultExpiration)
	return author, nil
}

func (l *Ledger) ReadAuthorBooks(ctx context.Context) ([]bookshelf.RawBookRecord, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Gateway.ReadAuthorBooks")
	defer span.End()

	var out []interface{}
	err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAuthorBooks")
	if err != nil {
		span.RecordError(errors.Wrap(err, "Ledger.Gateway.ReadAuthorBooks: call failed"))
		return nil, fmt.Errorf("failed to call getAuthorBooks: %v", err)
	}

	tuples := *abi.ConvertType(out[0], new([]bookTuple)).(*[]bookTuple)
	books := make([]bookshelf.RawBookRecord, len(tuples))
	for i, t := range tuples {
		books[i] = t.raw()
	}
	span.SetAttributes(attribute.Int("books", len(books)))
	return books, nil
}

// ReadPurchasedBook reads a book as account. The contract only answers buyers.
func (l *Ledger) ReadPurchasedBook(ctx context.Context, account string, bookID uint64) (bookshelf.RawBookRecord, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Gateway.ReadPurchasedBook")
	defer span.End()

	if !common.IsHexAddress(account) {
		return bookshelf.RawBookRecord{}, fmt.Errorf("invalid account %q", account)
	}

	opts := &bind.CallOpts{Context: ctx, From: common.HexToAddress(account)}
	var out []interface{}
	err := l.contract.Call(opts, &out, "getPurchasedBookData", new(big.Int).SetUint64(bookID))
	if err != nil {
		span.RecordError(errors.Wrap(err, "Ledger.Gateway.ReadPurchasedBook: call failed"))
		return bookshelf.RawBookRecord{}, fmt.Errorf("failed to call getPurchasedBookData: %v", err)
	}

	book := *abi.ConvertType(out[0], new(bookTuple)).(*bookTuple)
	return book.raw(), nil
}

func (l *Ledger) SubmitPublish(ctx context.Context, account string, req bookshelf.PublishRequest) (*domain.TransactionHandle, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Gateway.SubmitPublish")
	defer span.End()

	price := req.Price
	if price == nil {
		price = new(big.Int)
	}

	opts, err := l.transactor(ctx, account)
	if err != nil {
		return nil, err
	}

	tx, err := l.contract.Transact(opts, "publishBook",
		codec.EncodeBytes(req.Title),
		codec.EncodeBytes(req.Content),
		codec.EncodeBytes(req.AuthorName),
		codec.EncodeBytes(req.PublishedDate),
		new(big.Int).SetUint64(req.PurchaseCounter),
		price,
		req.Status,
	)
	if err != nil {
		span.RecordError(errors.Wrap(err, "Ledger.Gateway.SubmitPublish: transact failed"))
		return nil, fmt.Errorf("failed to send publishBook: %v", err)
	}

	handle := domain.NewTransactionHandle(domain.TxKindPublish, account)
	handle.SetHash(tx.Hash().Hex())
	go l.waitMined(handle, tx, opts.From)
	return handle, nil
}

func (l *Ledger) SubmitPurchase(ctx context.Context, account string, bookID uint64, payment *big.Int) (*domain.TransactionHandle, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Gateway.SubmitPurchase")
	defer span.End()

	opts, err := l.transactor(ctx, account)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		opts.Value = new(big.Int).Set(payment)
	}

	tx, err := l.contract.Transact(opts, "buyBook", new(big.Int).SetUint64(bookID))
	if err != nil {
		span.RecordError(errors.Wrap(err, "Ledger.Gateway.SubmitPurchase: transact failed"))
		return nil, fmt.Errorf("failed to send buyBook: %v", err)
	}

	handle := domain.NewTransactionHandle(domain.TxKindPurchase, account)
	handle.BookID = bookID
	handle.SetHash(tx.Hash().Hex())
	go l.waitMined(handle, tx, opts.From)
	return handle, nil
}

func (l *Ledger) transactor(ctx context.Context, account string) (*bind.TransactOpts, error) {
	chainID, err := l.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := l.keyring.Transactor(account, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (l *Ledger) waitMined(handle *domain.TransactionHandle, tx *types.Transaction, from common.Address) {
	ctx, cancel := context.WithTimeout(l.ctx, l.waitTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrTimeout
		}
		handle.Fail(domain.TransactionError{Op: handle.Kind, Err: err})
		return
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		slog.Warn("transaction reverted",
			slog.String("hash", tx.Hash().Hex()),
			slog.String("module", "gateway"),
		)
		handle.Fail(domain.TransactionError{Op: handle.Kind, Reason: "transaction reverted"})
		return
	}

	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	handle.Resolve(bookshelf.Receipt{
		From:            from.Hex(),
		To:              to,
		TransactionHash: receipt.TxHash.Hex(),
		BlockHash:       receipt.BlockHash.Hex(),
		BlockNumber:     blockNumber,
	})
}

var _ usecase.LedgerClient = (*Ledger)(nil)
