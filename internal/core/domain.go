package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

const (
	Income  Flow = "income"
	Expense Flow = "expense"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentUPI          PaymentMethod = "upi"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentOther        PaymentMethod = "other"
)

const (
	RuleActive RuleStatus = "active"
	RulePaused RuleStatus = "paused"
)

const (
	MaxDescriptionLength = 200
	MinPasswordLength    = 6
	DefaultAvatarColor   = "emerald"
)

type (
	// Flow is the direction of money: income or expense.
	Flow string

	// Frequency is the unit a recurring rule steps by.
	Frequency string

	PaymentMethod string

	RuleStatus string

	Money struct {
		Cents int64
	}

	User struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		AvatarColor  string    `json:"avatarColor"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// Transaction is a materialized ledger entry. Date is the economic date, not
	// the creation time.
	Transaction struct {
		ID            string        `json:"id"`
		UserID        string        `json:"userId"`
		Amount        Money         `json:"amount"`
		Type          Flow          `json:"type"`
		Category      string        `json:"category"`
		Date          Date          `json:"date"`
		Description   string        `json:"description"`
		PaymentMethod PaymentMethod `json:"paymentMethod"`
		IsRecurring   bool          `json:"isRecurring"`
		RecurringID   *string       `json:"recurringId,omitempty"`
		CreatedAt     time.Time     `json:"createdAt"`
		UpdatedAt     time.Time     `json:"updatedAt"`
	}

	// RecurringRule is a template for periodic transactions. LastExecutedAt is
	// written only by the execution engine.
	RecurringRule struct {
		ID             string        `json:"id"`
		UserID         string        `json:"userId"`
		Title          string        `json:"title"`
		Amount         Money         `json:"amount"`
		Type           Flow          `json:"type"`
		Category       string        `json:"category"`
		PaymentMethod  PaymentMethod `json:"paymentMethod"`
		Frequency      Frequency     `json:"frequency"`
		Interval       int           `json:"interval"`
		StartDate      Date          `json:"startDate"`
		EndDate        *Date         `json:"endDate"`
		LastExecutedAt *Date         `json:"lastExecutedAt"`
		Status         RuleStatus    `json:"status"`
		CreatedAt      time.Time     `json:"createdAt"`
		UpdatedAt      time.Time     `json:"updatedAt"`
	}

	// Budget is a spending limit for one category in one calendar month.
	Budget struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Category  string    `json:"category"`
		Limit     Money     `json:"limit"`
		Month     int       `json:"month"`
		Year      int       `json:"year"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
)

var (
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidYear          = errors.New("invalid year")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidFlow          = errors.New("type must be income or expense")
	ErrEmptyCategory        = errors.New("empty category")
	ErrEmptyTitle           = errors.New("empty title")
	ErrDescriptionTooLong   = errors.New("description too long (max 200 characters)")
	ErrInvalidPayment       = errors.New("invalid payment method")
	ErrInvalidFrequency     = errors.New("invalid frequency")
	ErrInvalidInterval      = errors.New("interval must be a positive integer")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrEndBeforeStart       = errors.New("end date must not be before start date")
	ErrEmptyName            = errors.New("empty name")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrPasswordTooShort     = errors.New("password must be at least 6 characters")
	ErrMissingRequiredField = errors.New("missing required field")
)

// ValidationError is a user-input failure tied to one field. Handlers map it to
// 400 without ever coercing the value.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err as a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (f Flow) Validate() error {
	switch f {
	case Income, Expense:
		return nil
	}
	return ErrInvalidFlow
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return nil
	}
	return ErrInvalidFrequency
}

func (p PaymentMethod) Validate() error {
	switch p {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentBankTransfer, PaymentOther:
		return nil
	}
	return ErrInvalidPayment
}

// OrDefault maps the empty method to "other".
func (p PaymentMethod) OrDefault() PaymentMethod {
	if p == "" {
		return PaymentOther
	}
	return p
}

func (s RuleStatus) Validate() error {
	switch s {
	case RuleActive, RulePaused:
		return nil
	}
	return ErrInvalidStatus
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return Invalid("name", ErrEmptyName)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil || u.Email != NormalizeEmail(u.Email) {
		return Invalid("email", ErrInvalidEmail)
	}
	return nil
}

// ValidatePassword checks the minimum password policy.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return Invalid("password", ErrPasswordTooShort)
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := t.Type.Validate(); err != nil {
		return Invalid("type", err)
	}
	if strings.TrimSpace(t.Category) == "" {
		return Invalid("category", ErrEmptyCategory)
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if len(t.Description) > MaxDescriptionLength {
		return Invalid("description", ErrDescriptionTooLong)
	}
	if err := t.PaymentMethod.Validate(); err != nil {
		return Invalid("paymentMethod", err)
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return Invalid("title", ErrEmptyTitle)
	}
	if len(r.Title) > MaxDescriptionLength {
		return Invalid("title", ErrDescriptionTooLong)
	}
	if err := r.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := r.Type.Validate(); err != nil {
		return Invalid("type", err)
	}
	if strings.TrimSpace(r.Category) == "" {
		return Invalid("category", ErrEmptyCategory)
	}
	if err := r.PaymentMethod.Validate(); err != nil {
		return Invalid("paymentMethod", err)
	}
	if err := r.Frequency.Validate(); err != nil {
		return Invalid("frequency", err)
	}
	if r.Interval < 1 {
		return Invalid("interval", ErrInvalidInterval)
	}
	if err := r.StartDate.Validate(); err != nil {
		return Invalid("startDate", err)
	}
	if r.EndDate != nil {
		if err := r.EndDate.Validate(); err != nil {
			return Invalid("endDate", err)
		}
		if r.EndDate.Before(r.StartDate) {
			return Invalid("endDate", ErrEndBeforeStart)
		}
	}
	if err := r.Status.Validate(); err != nil {
		return Invalid("status", err)
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return Invalid("category", ErrEmptyCategory)
	}
	if err := b.Limit.ValidateNonNegative(); err != nil {
		return Invalid("limit", err)
	}
	if b.Month < 1 || b.Month > 12 {
		return Invalid("month", ErrInvalidMonth)
	}
	if b.Year < 1970 || b.Year > 9999 {
		return Invalid("year", ErrInvalidYear)
	}
	return nil
}
