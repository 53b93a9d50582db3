// Package domain holds the core entities of the finance tracker:
// transactions, pending mutations, and the merge rule shared by the
// server and the sync engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as bare JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// Type classifies a transaction as money in or money out.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Valid reports whether t is one of the known transaction types.
func (t Type) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Allowed categories per transaction type. The UI offers exactly these;
// anything else is rejected at the mutation boundary.
var (
	incomeCategories = []string{
		"Salary", "Freelance", "Investment", "Gift", "Other",
	}
	expenseCategories = []string{
		"Food", "Housing", "Transport", "Entertainment", "Health", "Shopping", "Other",
	}
)

// CategoriesFor returns the allowed categories for a transaction type.
func CategoriesFor(t Type) []string {
	switch t {
	case TypeIncome:
		return incomeCategories
	case TypeExpense:
		return expenseCategories
	}
	return nil
}

// ValidCategory reports whether category is allowed for the given type.
func ValidCategory(t Type, category string) bool {
	for _, c := range CategoriesFor(t) {
		if c == category {
			return true
		}
	}
	return false
}

// Transaction is the core entity. The id is immutable once assigned;
// Synced tracks whether the remote store has confirmed an equivalent
// record (unconfirmed -> confirmed, never back).
type Transaction struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      Type            `json:"type"`
	Category  string          `json:"category"`
	Date      Date            `json:"date"`
	Notes     string          `json:"notes"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
	Synced    bool            `json:"synced"`
}

// Confirmed reports whether the remote store holds an equivalent record.
func (t *Transaction) Confirmed() bool { return t.Synced }

// MarkConfirmed records that the remote store has confirmed this record.
func (t *Transaction) MarkConfirmed() { t.Synced = true }

// Clone returns a deep copy (UpdatedAt is the only pointer field).
func (t Transaction) Clone() Transaction {
	out := t
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		out.UpdatedAt = &ts
	}
	return out
}

// Validate checks the invariants enforced at the mutation boundary:
// positive amount, known type, category allowed for the type, and a date.
func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return &ErrValidation{Field: "amount", Message: "must be a positive number"}
	}
	if !t.Type.Valid() {
		return &ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if !ValidCategory(t.Type, t.Category) {
		return &ErrValidation{Field: "category", Message: "not allowed for type " + string(t.Type)}
	}
	if t.Date.IsZero() {
		return &ErrValidation{Field: "date", Message: "is required"}
	}
	return nil
}

// Patch carries the fields of a partial update. Nil fields are left
// untouched when applied.
type Patch struct {
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Type     *Type            `json:"type,omitempty"`
	Category *string          `json:"category,omitempty"`
	Date     *Date            `json:"date,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

// Apply overlays the set fields of p onto t and returns the result.
func (p Patch) Apply(t Transaction) Transaction {
	out := t.Clone()
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	return out
}
