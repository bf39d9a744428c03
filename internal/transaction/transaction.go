// Package transaction defines the card transaction model consumed by the
// scoring pipeline.
//
// Transactions arrive at the request boundary, are validated once, and are
// read-only from then on. The optional PII fields (cardholder name, device
// fingerprint, IP address) are modeled as pointer-free empty-string absence:
// a field is "present" when it is non-empty after trimming.
package transaction

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Limits applied during validation.
const (
	MaxIDLength       = 100
	MaxMerchantLength = 200
	MaxCategoryLength = 100
	MaxLocationLength = 200
	MaxAmount         = 1_000_000
)

// Transaction is a single card transaction. Immutable after validation.
type Transaction struct {
	ID           string    `json:"transactionId"`
	AccountID    string    `json:"accountId"`
	Timestamp    time.Time `json:"timestamp"` // UTC
	Amount       float64   `json:"amount"`    // positive, 2-decimal precision
	MerchantName string    `json:"merchantName"`
	Category     string    `json:"merchantCategory"`
	Location     string    `json:"location"`

	// Optional PII fields. Empty string means absent.
	CardholderName    string `json:"cardholderName,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
}

// ValidationError reports a malformed transaction. The whole batch fails
// fast on the first one; nothing is partially processed.
type ValidationError struct {
	Index int    // position in the batch
	ID    string // transaction id if known
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("transaction %s: %s: %s", e.ID, e.Field, e.Msg)
	}
	return fmt.Sprintf("transaction[%d]: %s: %s", e.Index, e.Field, e.Msg)
}

// Validate checks a single transaction's fields.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "transactionId", Msg: "must not be empty"}
	}
	if len(t.ID) > MaxIDLength {
		return &ValidationError{ID: t.ID, Field: "transactionId", Msg: "exceeds maximum length"}
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return &ValidationError{ID: t.ID, Field: "accountId", Msg: "must not be empty"}
	}
	if t.Timestamp.IsZero() {
		return &ValidationError{ID: t.ID, Field: "timestamp", Msg: "must be set"}
	}
	if t.Amount <= 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return &ValidationError{ID: t.ID, Field: "amount", Msg: "must be a positive finite number"}
	}
	if t.Amount > MaxAmount {
		return &ValidationError{ID: t.ID, Field: "amount", Msg: fmt.Sprintf("exceeds maximum of %d", MaxAmount)}
	}
	if strings.TrimSpace(t.MerchantName) == "" || len(t.MerchantName) > MaxMerchantLength {
		return &ValidationError{ID: t.ID, Field: "merchantName", Msg: "must be 1-200 characters"}
	}
	if strings.TrimSpace(t.Category) == "" || len(t.Category) > MaxCategoryLength {
		return &ValidationError{ID: t.ID, Field: "merchantCategory", Msg: "must be 1-100 characters"}
	}
	if len(t.Location) > MaxLocationLength {
		return &ValidationError{ID: t.ID, Field: "location", Msg: "exceeds maximum length"}
	}
	return nil
}

// PIIFieldCount returns how many optional PII fields are present.
func (t *Transaction) PIIFieldCount() int {
	count := 0
	if strings.TrimSpace(t.CardholderName) != "" {
		count++
	}
	if strings.TrimSpace(t.DeviceFingerprint) != "" {
		count++
	}
	if strings.TrimSpace(t.IPAddress) != "" {
		count++
	}
	return count
}

// NormalizedCategory lowercases the merchant category and replaces
// separators so "Food & Dining" and "food_dining" group together.
func (t *Transaction) NormalizedCategory() string {
	c := strings.ToLower(strings.TrimSpace(t.Category))
	c = strings.ReplaceAll(c, " & ", "_")
	c = strings.ReplaceAll(c, " ", "_")
	return c
}

// ValidateBatch validates every transaction in input order and normalizes
// timestamps to UTC. Returns the first validation error encountered.
func ValidateBatch(batch []Transaction) error {
	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			var ve *ValidationError
			if verr, ok := err.(*ValidationError); ok {
				ve = verr
				ve.Index = i
			}
			if ve != nil {
				return ve
			}
			return err
		}
		batch[i].Timestamp = batch[i].Timestamp.UTC()
	}
	return nil
}
