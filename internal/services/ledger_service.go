package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/ports"
)

// TransactionInput is the body of a create request. Pointers distinguish a
// missing required field from its zero value.
type TransactionInput struct {
	Amount        *core.Money        `json:"amount"`
	Type          core.Flow          `json:"type"`
	Category      string             `json:"category"`
	Date          *core.Date         `json:"date"`
	Description   string             `json:"description"`
	PaymentMethod core.PaymentMethod `json:"paymentMethod"`
}

// TransactionPatch is a partial update; nil fields are left as they are.
type TransactionPatch struct {
	Amount        *core.Money         `json:"amount"`
	Type          *core.Flow          `json:"type"`
	Category      *string             `json:"category"`
	Date          *core.Date          `json:"date"`
	Description   *string             `json:"description"`
	PaymentMethod *core.PaymentMethod `json:"paymentMethod"`
}

// LedgerService orchestrates ledger writes, their events and cache invalidation.
type LedgerService struct {
	store       ports.LedgerStore
	events      ports.EventPublisher
	invalidator Invalidator
	clock       core.Clock
	logger      *log.Logger
	newID       func() string
}

func NewLedgerService(store ports.LedgerStore, events ports.EventPublisher, invalidator Invalidator, clock core.Clock, logger *log.Logger) *LedgerService {
	if events == nil {
		events = ports.NopPublisher{}
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerService{
		store:       store,
		events:      events,
		invalidator: invalidator,
		clock:       clock,
		logger:      logger.WithComponent(log.ComponentLedger),
		newID:       uuid.NewString,
	}
}

// Create validates in and stores a user-entered transaction.
func (s *LedgerService) Create(ctx context.Context, userID string, in TransactionInput) (core.Transaction, error) {
	switch {
	case in.Amount == nil:
		return core.Transaction{}, core.Invalid("amount", core.ErrMissingRequiredField)
	case in.Type == "":
		return core.Transaction{}, core.Invalid("type", core.ErrMissingRequiredField)
	case strings.TrimSpace(in.Category) == "":
		return core.Transaction{}, core.Invalid("category", core.ErrMissingRequiredField)
	case in.Date == nil || in.Date.IsEmpty():
		return core.Transaction{}, core.Invalid("date", core.ErrMissingRequiredField)
	}

	now := s.clock.Now().UTC()
	t := core.Transaction{
		ID:            s.newID(),
		UserID:        userID,
		Amount:        *in.Amount,
		Type:          in.Type,
		Category:      strings.TrimSpace(in.Category),
		Date:          *in.Date,
		Description:   strings.TrimSpace(in.Description),
		PaymentMethod: in.PaymentMethod.OrDefault(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	log.NewStructuredLogger(s.logger).LogTransactionCreated(ctx, userID, t.ID, t.Amount.Cents, string(t.Type), t.Category)
	s.changed(ctx, ports.EventTransactionCreated, t)
	return t, nil
}

// List returns the user's transactions matching f, newest first.
func (s *LedgerService) List(ctx context.Context, userID string, f ports.TransactionFilter) ([]core.Transaction, error) {
	if f.Type != "" {
		if err := f.Type.Validate(); err != nil {
			return nil, core.Invalid("type", err)
		}
	}
	txs, err := s.store.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *LedgerService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

// Update applies patch to one of the user's transactions. The recurring
// provenance of an entry cannot be changed.
func (s *LedgerService) Update(ctx context.Context, userID, id string, patch TransactionPatch) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if patch.Amount != nil {
		t.Amount = *patch.Amount
	}
	if patch.Type != nil {
		t.Type = *patch.Type
	}
	if patch.Category != nil {
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Date != nil {
		t.Date = *patch.Date
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.PaymentMethod != nil {
		t.PaymentMethod = patch.PaymentMethod.OrDefault()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	s.changed(ctx, ports.EventTransactionUpdated, t)
	return t, nil
}

func (s *LedgerService) Delete(ctx context.Context, userID, id string) error {
	t, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, ports.EventTransactionDeleted, t)
	return nil
}

// csvRow is the export shape of one transaction.
type csvRow struct {
	Date          string `csv:"date"`
	Type          string `csv:"type"`
	Category      string `csv:"category"`
	Amount        string `csv:"amount"`
	Description   string `csv:"description"`
	PaymentMethod string `csv:"payment_method"`
	Recurring     bool   `csv:"recurring"`
}

// ExportCSV writes the transactions matching f as CSV with a header row.
func (s *LedgerService) ExportCSV(ctx context.Context, userID string, f ports.TransactionFilter, w io.Writer) (int, error) {
	txs, err := s.List(ctx, userID, f)
	if err != nil {
		return 0, err
	}
	rows := make([]*csvRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, &csvRow{
			Date:          t.Date.String(),
			Type:          string(t.Type),
			Category:      t.Category,
			Amount:        t.Amount.String(),
			Description:   t.Description,
			PaymentMethod: string(t.PaymentMethod),
			Recurring:     t.IsRecurring,
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	s.logger.InfoContext(ctx, "Transactions exported",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpExport,
		"rows", len(rows))
	return len(rows), nil
}

func (s *LedgerService) changed(ctx context.Context, typ ports.EventType, t core.Transaction) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(t.UserID)
	}
	if err := s.events.Publish(ctx, ports.EventFromTransaction(typ, t, s.clock.Now().UTC())); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldTxID, t.ID,
			"event", string(typ),
			log.FieldError, err)
	}
}
