package application

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/usecase"
	"github.com/totegamma/bookshelf/internal/utils"
)

const maxNotices = 50

// Wallet reports which accounts can sign.
type Wallet interface {
	Has(account string) bool
}

type Options struct {
	Contract       string
	ConfirmTimeout time.Duration
	Wallet         Wallet
	History        usecase.TransactionRepository
	Notifier       usecase.Notifier
	PurchasedCache usecase.PurchasedBookCache
}

// Session is one connected view of the registry. The author address, the active
// account and the confirmation counter each have a single writer; any change to
// them rebuilds the listing.
type Session struct {
	ledger    usecase.LedgerClient
	listing   *usecase.ListingUsecase
	publish   *usecase.PublishUsecase
	purchase  *usecase.PurchaseUsecase
	purchased *usecase.PurchasedBookUsecase
	opts      Options

	author       *utils.Observable[string]
	setAuthor    func(string)
	account      *utils.Observable[string]
	setAccount   func(string)
	confirmed    *utils.Observable[uint64]
	setConfirmed func(uint64)
	confirmMu    sync.Mutex

	ctx         context.Context
	cancel      context.CancelFunc
	refreshMu   sync.Mutex
	refreshing  sync.WaitGroup
	unsubscribe []func()

	mu         sync.Mutex
	handles    map[string]*domain.TransactionHandle
	notices    []domain.Notice
	pushedHash string
}

func NewSession(ledger usecase.LedgerClient, opts Options) *Session {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = usecase.DefaultConfirmTimeout
	}

	listing := usecase.NewListingUsecase(ledger)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ledger:    ledger,
		listing:   listing,
		publish:   usecase.NewPublishUsecase(ledger, opts.ConfirmTimeout),
		purchase:  usecase.NewPurchaseUsecase(ledger, listing, opts.ConfirmTimeout),
		purchased: usecase.NewPurchasedBookUsecase(ledger, opts.PurchasedCache),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[string]*domain.TransactionHandle),
	}

	s.author, s.setAuthor = utils.NewObservable("")
	s.account, s.setAccount = utils.NewObservable("")
	s.confirmed, s.setConfirmed = utils.NewObservable[uint64](0)

	s.unsubscribe = []func(){
		s.author.Subscribe(func(string) {
			s.emitSession()
			s.triggerRefresh()
		}),
		s.account.Subscribe(func(string) {
			s.emitSession()
			s.triggerRefresh()
		}),
		s.confirmed.Subscribe(func(uint64) {
			s.triggerRefresh()
		}),
	}

	return s
}

// Start performs the initial listing read and the one-time author lookup.
func (s *Session) Start(ctx context.Context) error {
	s.triggerRefresh()

	author, err := s.ledger.ReadAuthor(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read author",
			slog.String("error", err.Error()),
			slog.String("module", "session"),
		)
		return domain.TransactionError{Op: "read author", Err: err}
	}
	s.setAuthor(author)
	return nil
}

// WaitRefresh blocks until every triggered listing refresh has finished.
func (s *Session) WaitRefresh() {
	s.refreshing.Wait()
}

func (s *Session) Close() {
	s.cancel()
	s.listing.Close()
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
}

func (s *Session) Connect(account string) (domain.SessionState, error) {
	normalized, err := bookshelf.NormalizeAddress(account)
	if err != nil {
		return s.State(), domain.ValidationError{Field: "account", Reason: err.Error()}
	}
	if s.opts.Wallet != nil && !s.opts.Wallet.Has(normalized) {
		return s.State(), domain.AuthorizationError{Action: "connect", Reason: "no signing key for account"}
	}
	s.setAccount(normalized)
	return s.State(), nil
}

func (s *Session) Disconnect() domain.SessionState {
	s.setAccount("")
	return s.State()
}

func (s *Session) State() domain.SessionState {
	return usecase.SessionState(s.account.Get(), s.author.Get(), s.opts.Contract)
}

func (s *Session) Listing() domain.Listing {
	return s.listing.Current()
}

func (s *Session) key() domain.ListingKey {
	return domain.ListingKey{
		Confirmations: s.confirmed.Get(),
		Account:       s.account.Get(),
		Author:        s.author.Get(),
	}
}

func (s *Session) triggerRefresh() {
	if s.ctx.Err() != nil {
		return
	}
	s.refreshMu.Lock()
	key := s.key()
	seq := s.listing.Begin()
	s.refreshing.Add(1)
	s.refreshMu.Unlock()

	go func() {
		defer s.refreshing.Done()
		s.refresh(seq, key)
	}()
}

func (s *Session) refresh(seq uint64, key domain.ListingKey) {
	listing, err := s.listing.Refresh(s.ctx, seq, key)
	if err != nil {
		if errors.Is(err, domain.ErrStaleRead) {
			return
		}
		slog.Error("failed to refresh listing",
			slog.String("error", err.Error()),
			slog.String("module", "session"),
		)
		s.addNotice(domain.NoticeError, domain.NoticeListingFailed, "")
		return
	}

	s.mu.Lock()
	changed := listing.Hash != s.pushedHash
	s.pushedHash = listing.Hash
	s.mu.Unlock()

	if changed {
		s.emit(domain.ChannelListing, bookshelf.EventTypeListing, listing)
	}
}

func (s *Session) Draft() usecase.PublishForm {
	return s.publish.Form()
}

func (s *Session) UpdateDraft(form usecase.PublishForm) usecase.PublishForm {
	s.publish.UpdateForm(form)
	return s.publish.Form()
}

// Publish submits the current draft as the active account.
func (s *Session) Publish(ctx context.Context) (*domain.TransactionHandle, error) {
	handle, err := s.publish.Submit(ctx, s.account.Get(), s.author.Get())
	if handle != nil {
		s.track(handle)
	}
	if err != nil {
		return handle, err
	}
	s.addNotice(domain.NoticeInfo, domain.NoticePublishSubmitted, handle.ID)
	return handle, nil
}

func (s *Session) Purchase(ctx context.Context, bookID uint64) (*domain.TransactionHandle, error) {
	account := s.account.Get()
	handle, err := s.purchase.Submit(ctx, usecase.PurchaseInput{
		Account: account,
		Author:  s.author.Get(),
		BookID:  bookID,
	})
	if err != nil {
		switch {
		case account == "" && errors.Is(err, domain.ErrAuthorization):
			s.addNotice(domain.NoticeError, domain.NoticeConnectWallet, "")
		case errors.Is(err, domain.ErrTransaction):
			failed := domain.FailedTransaction(domain.TxKindPurchase, account, err)
			failed.BookID = bookID
			s.track(failed)
			return failed, err
		}
		return nil, err
	}
	s.track(handle)
	return handle, nil
}

func (s *Session) PurchasedBook(ctx context.Context, bookID uint64) (domain.BookRecord, error) {
	return s.purchased.Get(ctx, s.account.Get(), bookID)
}

func (s *Session) Transaction(ctx context.Context, id string) (domain.TransactionRecord, error) {
	s.mu.Lock()
	handle, ok := s.handles[id]
	s.mu.Unlock()
	if ok {
		return handle.Record(), nil
	}
	if s.opts.History != nil {
		return s.opts.History.Get(ctx, id)
	}
	return domain.TransactionRecord{}, domain.NotFoundError{Resource: "transaction"}
}

// Transactions lists the active account's transactions, newest first.
func (s *Session) Transactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	account := s.account.Get()
	if account == "" {
		return []domain.TransactionRecord{}, nil
	}
	if s.opts.History != nil {
		return s.opts.History.List(ctx, account, limit)
	}

	s.mu.Lock()
	records := make([]domain.TransactionRecord, 0, len(s.handles))
	for _, h := range s.handles {
		if bookshelf.SameAddress(h.Account, account) {
			records = append(records, h.Record())
		}
	}
	s.mu.Unlock()

	slices.SortFunc(records, func(a, b domain.TransactionRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Session) Notices() []domain.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notices)
}

func (s *Session) track(handle *domain.TransactionHandle) {
	s.mu.Lock()
	s.handles[handle.ID] = handle
	s.mu.Unlock()

	s.emit(domain.ChannelTransactions, bookshelf.EventTypeTransaction, handle.Summary())
	handle.Subscribe(s.onSettled)
}

func (s *Session) onSettled(handle *domain.TransactionHandle) {
	succeeded := handle.Status() == domain.TxSuccess

	switch {
	case handle.Kind == domain.TxKindPurchase && succeeded:
		s.addNotice(domain.NoticeSuccess, domain.NoticePurchaseSuccess, handle.ID)
	case handle.Kind == domain.TxKindPurchase:
		s.addNotice(domain.NoticeError, domain.NoticePurchaseFailed, handle.ID)
	case succeeded:
		s.addNotice(domain.NoticeSuccess, domain.NoticePublishSuccess, handle.ID)
	default:
		s.addNotice(domain.NoticeError, domain.NoticePublishFailed, handle.ID)
	}

	if !succeeded {
		slog.Warn("transaction failed",
			slog.String("id", handle.ID),
			slog.String("kind", handle.Kind),
			slog.Any("error", handle.Err()),
			slog.String("module", "session"),
		)
	}

	if s.opts.History != nil {
		if err := s.opts.History.Save(context.Background(), handle.Record()); err != nil {
			slog.Error("failed to save transaction",
				slog.String("id", handle.ID),
				slog.String("error", err.Error()),
				slog.String("module", "session"),
			)
		}
	}

	s.emit(domain.ChannelTransactions, bookshelf.EventTypeTransaction, handle.Summary())

	if succeeded {
		s.confirmMu.Lock()
		s.setConfirmed(s.confirmed.Get() + 1)
		s.confirmMu.Unlock()
	}
}

func (s *Session) addNotice(level domain.NoticeLevel, message, transactionID string) {
	notice := domain.Notice{
		Level:         level,
		Message:       message,
		TransactionID: transactionID,
		CreatedAt:     time.Now(),
	}

	s.mu.Lock()
	s.notices = append(s.notices, notice)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.mu.Unlock()

	s.emit(domain.ChannelNotices, bookshelf.EventTypeNotice, notice)
}

func (s *Session) emitSession() {
	s.emit(domain.ChannelSession, bookshelf.EventTypeSession, s.State())
}

func (s *Session) emit(channel, eventType string, payload any) {
	if s.opts.Notifier == nil || s.ctx.Err() != nil {
		return
	}
	err := s.opts.Notifier.Publish(s.ctx, channel, bookshelf.Event{
		Channel:   channel,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Debug("failed to publish event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
			slog.String("module", "session"),
		)
	}
}
