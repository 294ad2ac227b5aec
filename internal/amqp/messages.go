package amqp

import (
	"encoding/json"
	"time"

	"spendwise/internal/ports"
)

// LedgerEventMessage is the wire form of a ledger event. Amounts travel as
// integer cents.
type LedgerEventMessage struct {
	Type          string    `json:"type"`
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId,omitempty"`
	RuleID        string    `json:"ruleId,omitempty"`
	AmountCents   int64     `json:"amountCents"`
	Flow          string    `json:"flow"`
	Date          string    `json:"date"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(e ports.Event) *LedgerEventMessage {
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &LedgerEventMessage{
		Type:          string(e.Type),
		UserID:        e.UserID,
		TransactionID: e.TransactionID,
		RuleID:        e.RuleID,
		AmountCents:   e.Amount.Cents,
		Flow:          string(e.Flow),
		Date:          e.Date.String(),
		Timestamp:     ts,
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
