package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"household/internal/amqp"
	"household/internal/core"
	"household/internal/log"
	"household/internal/metrics"
	"household/internal/storage"
)

// EventPublisher receives a ledger event after each persisted mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// CartEntry is an expense staged by the UI and not yet in the document.
type CartEntry struct {
	Item     string
	Quantity core.Number
	Amount   core.Number
}

// LedgerService implements the expense store operations over a storage
// backend. It holds no document state: every call gets the document it
// mutates and persists it whole.
type LedgerService struct {
	backend   storage.Backend
	now       func() time.Time
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
}

type Option func(*LedgerService)

// WithClock overrides time.Now, which decides the current month and the
// date stamped on new expenses.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LedgerService) { s.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

func NewLedgerService(backend storage.Backend, opts ...Option) *LedgerService {
	s := &LedgerService{
		backend: backend,
		now:     time.Now,
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentMonth returns the month key new expenses are filed under.
func (s *LedgerService) CurrentMonth() string {
	return core.MonthKey(s.now())
}

// Now returns the service clock.
func (s *LedgerService) Now() time.Time {
	return s.now()
}

// Load reads the document. A missing document is created empty and
// persisted. An unreadable one yields an empty document without touching
// what is stored.
func (s *LedgerService) Load(ctx context.Context) (*core.Document, error) {
	start := time.Now()
	data, err := s.backend.Load(ctx)
	s.metrics.ObserveStorage(log.OpLoad, time.Since(start), ignoreNotFound(err))

	if errors.Is(err, storage.ErrNotFound) {
		doc := core.NewDocument()
		if err := s.Save(ctx, doc); err != nil {
			return nil, fmt.Errorf("create document: %w", err)
		}
		s.logger.InfoContext(ctx, "Created empty ledger document", log.FieldBackend, describe(s.backend))
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	doc, err := core.DecodeDocument(data)
	if err != nil {
		s.metrics.RecordDegradedLoad()
		s.logger.WarnContext(ctx, "Ledger document is unreadable, continuing with an empty one",
			log.FieldBackend, describe(s.backend),
			log.FieldError, err)
		return core.NewDocument(), nil
	}

	s.metrics.SetMonthsTracked(len(doc.Months))
	return doc, nil
}

// Save serializes doc and overwrites the stored document.
func (s *LedgerService) Save(ctx context.Context, doc *core.Document) error {
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.backend.Save(ctx, data)
	s.metrics.ObserveStorage(log.OpSave, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// SetMonthlyBalance creates month key with the given starting balance. An
// existing month is left untouched and nothing is written.
func (s *LedgerService) SetMonthlyBalance(ctx context.Context, doc *core.Document, key string, balance core.Number) (bool, error) {
	if !doc.SetMonthlyBalance(key, balance) {
		s.metrics.RecordNoop(log.OpSetBalance)
		return false, nil
	}
	if err := s.persist(ctx, doc, log.OpSetBalance); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "Monthly balance set",
		log.FieldMonth, key,
		log.FieldAmount, balance.String())
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventBalanceSet, key))
	return true, nil
}

// AddExpense appends an expense dated today to the current month.
func (s *LedgerService) AddExpense(ctx context.Context, doc *core.Document, item string, quantity, amount core.Number) (core.ExpenseRecord, error) {
	now := s.now()
	key := core.MonthKey(now)
	rec := core.ExpenseRecord{
		ID:       core.NewExpenseID(),
		Date:     core.DateString(now),
		Item:     item,
		Quantity: quantity,
		Amount:   amount,
	}

	if err := doc.AppendExpense(key, rec); err != nil {
		s.metrics.RecordMutation(log.OpAdd, err)
		return core.ExpenseRecord{}, err
	}
	if err := s.persist(ctx, doc, log.OpAdd); err != nil {
		return core.ExpenseRecord{}, err
	}
	s.metrics.AddExpensesRecorded(1)

	s.logger.InfoContext(ctx, "Expense added",
		log.NewFields().
			WithMonth(key).
			WithExpense(rec.ID, rec.Date, rec.Item, quantity.String(), amount.String()).
			ToSlice()...)

	ev := amqp.NewLedgerEvent(amqp.EventExpenseAdded, key)
	ev.ID, ev.Date, ev.Item = rec.ID, rec.Date, rec.Item
	s.publish(ctx, ev)
	return rec, nil
}

// DeleteExpense removes every expense of month key matching date and item.
// It reports whether the month exists, even when nothing matched.
func (s *LedgerService) DeleteExpense(ctx context.Context, doc *core.Document, key, date, item string) (bool, error) {
	exists, removed := doc.DeleteMatching(key, date, item)
	if !exists {
		s.metrics.RecordNoop(log.OpDelete)
		return false, nil
	}
	if err := s.persist(ctx, doc, log.OpDelete); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "Expenses deleted",
		log.FieldMonth, key,
		log.FieldDate, date,
		log.FieldItem, item,
		log.FieldMatched, removed)

	if removed > 0 {
		ev := amqp.NewLedgerEvent(amqp.EventExpenseDeleted, key)
		ev.Date, ev.Item, ev.Count = date, item, removed
		s.publish(ctx, ev)
	}
	return true, nil
}

// EditExpense updates the first expense of month key matching date and
// item. Nil values leave the field unchanged.
func (s *LedgerService) EditExpense(ctx context.Context, doc *core.Document, key, date, item string, quantity, amount *core.Number) (bool, error) {
	if !doc.EditFirstMatching(key, date, item, quantity, amount) {
		s.metrics.RecordNoop(log.OpEdit)
		return false, nil
	}
	if err := s.persist(ctx, doc, log.OpEdit); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "Expense edited",
		log.FieldMonth, key,
		log.FieldDate, date,
		log.FieldItem, item)

	ev := amqp.NewLedgerEvent(amqp.EventExpenseEdited, key)
	ev.Date, ev.Item = date, item
	s.publish(ctx, ev)
	return true, nil
}

// DeleteExpenseByID removes the single expense with id from month key.
func (s *LedgerService) DeleteExpenseByID(ctx context.Context, doc *core.Document, key, id string) (bool, error) {
	rec, found := doc.FindByID(key, id)
	if !found || !doc.DeleteByID(key, id) {
		s.metrics.RecordNoop(log.OpDelete)
		return false, nil
	}
	if err := s.persist(ctx, doc, log.OpDelete); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldMonth, key,
		log.FieldExpenseID, id,
		log.FieldItem, rec.Item)

	ev := amqp.NewLedgerEvent(amqp.EventExpenseDeleted, key)
	ev.ID, ev.Date, ev.Item, ev.Count = id, rec.Date, rec.Item, 1
	s.publish(ctx, ev)
	return true, nil
}

// EditExpenseByID updates the single expense with id in month key.
func (s *LedgerService) EditExpenseByID(ctx context.Context, doc *core.Document, key, id string, quantity, amount *core.Number) (bool, error) {
	if !doc.EditByID(key, id, quantity, amount) {
		s.metrics.RecordNoop(log.OpEdit)
		return false, nil
	}
	if err := s.persist(ctx, doc, log.OpEdit); err != nil {
		return false, err
	}

	rec, _ := doc.FindByID(key, id)
	s.logger.InfoContext(ctx, "Expense edited",
		log.FieldMonth, key,
		log.FieldExpenseID, id,
		log.FieldQuantity, rec.Quantity.String(),
		log.FieldAmount, rec.Amount.String())

	ev := amqp.NewLedgerEvent(amqp.EventExpenseEdited, key)
	ev.ID, ev.Date, ev.Item = id, rec.Date, rec.Item
	s.publish(ctx, ev)
	return true, nil
}

// ClearMonth removes every expense of month key, keeping its balance.
func (s *LedgerService) ClearMonth(ctx context.Context, doc *core.Document, key string) (bool, error) {
	if !doc.ClearMonth(key) {
		s.metrics.RecordNoop(log.OpClear)
		return false, nil
	}
	if err := s.persist(ctx, doc, log.OpClear); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "Month cleared", log.FieldMonth, key)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventMonthCleared, key))
	return true, nil
}

// CommitCart adds the staged entries in order through AddExpense. It stops
// at the first failure; entries before it stay committed and the count of
// those is returned.
func (s *LedgerService) CommitCart(ctx context.Context, doc *core.Document, cart []CartEntry) (int, error) {
	for i, entry := range cart {
		if _, err := s.AddExpense(ctx, doc, entry.Item, entry.Quantity, entry.Amount); err != nil {
			s.logger.WarnContext(ctx, "Cart commit stopped",
				log.FieldOperation, log.OpCommit,
				"committed", i,
				"staged", len(cart),
				log.FieldError, err)
			return i, err
		}
	}
	return len(cart), nil
}

func (s *LedgerService) CalculateTotal(doc *core.Document, key string) core.TotalResult {
	return doc.CalculateTotal(key)
}

func (s *LedgerService) GetDailyRecord(doc *core.Document, key, date string) *core.DailyRecord {
	return doc.Daily(key, date)
}

func (s *LedgerService) persist(ctx context.Context, doc *core.Document, op string) error {
	err := s.Save(ctx, doc)
	s.metrics.RecordMutation(op, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist ledger",
			log.FieldOperation, op,
			log.FieldError, err)
		return err
	}
	return nil
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishLedgerEvent(ctx, ev)
	s.metrics.RecordEvent(string(ev.Type), err)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			log.FieldMonth, ev.Month,
			log.FieldError, err)
	}
}

func describe(b storage.Backend) string {
	if d, ok := b.(storage.Describer); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", b)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
