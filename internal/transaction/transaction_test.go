package transaction

import (
	"strings"
	"testing"
	"time"
)

func validTx() Transaction {
	return Transaction{
		ID:           "tx_001",
		AccountID:    "acct_42",
		Timestamp:    time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC),
		Amount:       49.99,
		MerchantName: "Corner Coffee",
		Category:     "food_dining",
		Location:     "Portland, OR",
	}
}

func TestValidate_OK(t *testing.T) {
	tx := validTx()
	if err := tx.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		field  string
	}{
		{"empty id", func(tx *Transaction) { tx.ID = " " }, "transactionId"},
		{"empty account", func(tx *Transaction) { tx.AccountID = "" }, "accountId"},
		{"zero timestamp", func(tx *Transaction) { tx.Timestamp = time.Time{} }, "timestamp"},
		{"zero amount", func(tx *Transaction) { tx.Amount = 0 }, "amount"},
		{"negative amount", func(tx *Transaction) { tx.Amount = -5 }, "amount"},
		{"huge amount", func(tx *Transaction) { tx.Amount = 2_000_000 }, "amount"},
		{"empty merchant", func(tx *Transaction) { tx.MerchantName = "" }, "merchantName"},
		{"long merchant", func(tx *Transaction) { tx.MerchantName = strings.Repeat("x", 201) }, "merchantName"},
		{"empty category", func(tx *Transaction) { tx.Category = "" }, "merchantCategory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTx()
			tt.mutate(&tx)
			err := tx.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestPIIFieldCount(t *testing.T) {
	tx := validTx()
	if got := tx.PIIFieldCount(); got != 0 {
		t.Errorf("expected 0 PII fields, got %d", got)
	}

	tx.CardholderName = "Jane Doe"
	tx.IPAddress = "203.0.113.7"
	if got := tx.PIIFieldCount(); got != 2 {
		t.Errorf("expected 2 PII fields, got %d", got)
	}

	tx.DeviceFingerprint = "fp_abc123"
	if got := tx.PIIFieldCount(); got != 3 {
		t.Errorf("expected 3 PII fields, got %d", got)
	}
}

func TestNormalizedCategory(t *testing.T) {
	tx := validTx()
	tx.Category = "Food & Dining"
	if got := tx.NormalizedCategory(); got != "food_dining" {
		t.Errorf("expected food_dining, got %s", got)
	}
}

func TestValidateBatch_FailsFastWithIndex(t *testing.T) {
	batch := []Transaction{validTx(), validTx()}
	batch[1].Amount = -1

	err := ValidateBatch(batch)
	if err == nil {
		t.Fatal("expected error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Index != 1 {
		t.Errorf("expected index 1, got %d", ve.Index)
	}
}

func TestValidateBatch_NormalizesUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	batch := []Transaction{validTx()}
	batch[0].Timestamp = time.Date(2025, 3, 14, 7, 30, 0, 0, loc)

	if err := ValidateBatch(batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch[0].Timestamp.Location() != time.UTC {
		t.Error("timestamp not normalized to UTC")
	}
	if batch[0].Timestamp.Hour() != 15 {
		t.Errorf("expected UTC hour 15, got %d", batch[0].Timestamp.Hour())
	}
}
