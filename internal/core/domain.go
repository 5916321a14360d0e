package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	MaxDescriptionLength    = 200
	MaxCategoryNameLength   = 50
	MaxCategoryIconLength   = 20
	MaxIdempotencyKeyLength = 100
)

type (
	TransactionType string

	// Category is a user-scoped tag, unique per (owner, name, type).
	Category struct {
		Owner     string          `json:"-"`
		Name      string          `json:"name"`
		Icon      string          `json:"icon"`
		Type      TransactionType `json:"type"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	// NewTransaction is the input of RecordTransaction. Category and
	// CategoryIcon are copied by value into the stored row.
	NewTransaction struct {
		Owner          string
		Amount         Money
		Description    string
		Date           time.Time
		Type           TransactionType
		Category       string
		CategoryIcon   string
		IdempotencyKey string
	}

	Transaction struct {
		ID           string          `json:"id"`
		Owner        string          `json:"owner"`
		Amount       Money           `json:"amount"`
		Description  string          `json:"description"`
		Date         time.Time       `json:"date"`
		Type         TransactionType `json:"type"`
		Category     string          `json:"category"`
		CategoryIcon string          `json:"categoryIcon"`
		CreatedAt    time.Time       `json:"createdAt"`
		UpdatedAt    time.Time       `json:"updatedAt"`
	}
)

// ParseTransactionType normalizes s and checks it against the closed set.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

func (t TransactionType) String() string { return string(t) }

func (c Category) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return ErrEmptyOwner
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return Validationf("category name too long (max %d characters)", MaxCategoryNameLength)
	}
	if utf8.RuneCountInString(c.Icon) > MaxCategoryIconLength {
		return Validationf("category icon too long (max %d characters)", MaxCategoryIconLength)
	}
	return c.Type.Validate()
}

func (n NewTransaction) Validate() error {
	if strings.TrimSpace(n.Owner) == "" {
		return ErrEmptyOwner
	}
	if err := n.Amount.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(n.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if n.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := n.Type.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(n.Category) == "" {
		return ErrEmptyCategory
	}
	if len(n.IdempotencyKey) > MaxIdempotencyKeyLength {
		return Validationf("idempotency key too long (max %d characters)", MaxIdempotencyKeyLength)
	}
	return nil
}

// Day returns the day bucket the transaction belongs to.
func (t Transaction) Day() DayKey { return DayKeyOf(t.Date) }
