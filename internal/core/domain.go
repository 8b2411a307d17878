package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type (
	// Document is the whole persisted ledger. It is read and rewritten in full
	// on every mutation.
	Document struct {
		Months map[string]*MonthRecord `json:"months"`
	}

	// MonthRecord holds the starting balance and the expenses of one month.
	// StartingBalance never changes once the record exists.
	MonthRecord struct {
		StartingBalance Number          `json:"starting_balance"`
		Expenses        []ExpenseRecord `json:"expenses"`
	}

	// ExpenseRecord is one logged purchase. Date uses the DD-MM-YYYY layout.
	ExpenseRecord struct {
		ID       string `json:"id,omitempty"`
		Date     string `json:"date"`
		Item     string `json:"item"`
		Quantity Number `json:"quantity"`
		Amount   Number `json:"amount"`
	}
)

var (
	ErrBalanceNotSet   = errors.New("monthly balance not set")
	ErrInvalidMonthKey = errors.New("invalid month key")
	ErrInvalidDate     = errors.New("invalid date")
)

// PreconditionError reports an operation attempted before the state it
// depends on exists, e.g. adding an expense to a month with no balance.
type PreconditionError struct {
	Op    string
	Month string
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: month %s: %v", e.Op, e.Month, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Months: make(map[string]*MonthRecord)}
}

// legacyIDNamespace scopes the ids derived for records stored without one.
var legacyIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("household:expense"))

// NewExpenseID returns a fresh expense identifier.
func NewExpenseID() string {
	return uuid.NewString()
}

// DecodeDocument parses a persisted document. Missing maps and slices are
// normalized to empty values and records without an id are given one.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.normalize()
	doc.EnsureIDs()
	return &doc, nil
}

// EncodeDocument serializes the document with four-space indentation.
func EncodeDocument(doc *Document) ([]byte, error) {
	if doc == nil {
		doc = NewDocument()
	}
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func (d *Document) normalize() {
	if d.Months == nil {
		d.Months = make(map[string]*MonthRecord)
	}
	for key, m := range d.Months {
		if m == nil {
			m = &MonthRecord{}
			d.Months[key] = m
		}
		if m.Expenses == nil {
			m.Expenses = []ExpenseRecord{}
		}
	}
}

// EnsureIDs assigns an id to every record that lacks one and returns how
// many were assigned. The id is derived from the month, position, date and
// item, so loading the same stored document twice yields the same ids until
// the next save persists them.
func (d *Document) EnsureIDs() int {
	assigned := 0
	for key, m := range d.Months {
		if m == nil {
			continue
		}
		for i := range m.Expenses {
			if m.Expenses[i].ID == "" {
				m.Expenses[i].ID = legacyExpenseID(key, i, m.Expenses[i])
				assigned++
			}
		}
	}
	return assigned
}

func legacyExpenseID(key string, pos int, e ExpenseRecord) string {
	name := fmt.Sprintf("%s/%d/%s/%s", key, pos, e.Date, e.Item)
	return uuid.NewSHA1(legacyIDNamespace, []byte(name)).String()
}

// Month returns the record for key.
func (d *Document) Month(key string) (*MonthRecord, bool) {
	if d == nil || d.Months == nil {
		return nil, false
	}
	m, ok := d.Months[key]
	return m, ok && m != nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := NewDocument()
	if d == nil {
		return out
	}
	for key, m := range d.Months {
		if m == nil {
			continue
		}
		out.Months[key] = &MonthRecord{
			StartingBalance: m.StartingBalance,
			Expenses:        append([]ExpenseRecord{}, m.Expenses...),
		}
	}
	return out
}

// SetMonthlyBalance creates the month with the given balance when it does
// not exist yet. It reports whether a record was created.
func (d *Document) SetMonthlyBalance(key string, balance Number) bool {
	d.normalize()
	if _, ok := d.Month(key); ok {
		return false
	}
	d.Months[key] = &MonthRecord{StartingBalance: balance, Expenses: []ExpenseRecord{}}
	return true
}

// AppendExpense adds rec to month key.
func (d *Document) AppendExpense(key string, rec ExpenseRecord) error {
	m, ok := d.Month(key)
	if !ok {
		return &PreconditionError{Op: "add expense", Month: key, Err: ErrBalanceNotSet}
	}
	if rec.ID == "" {
		rec.ID = NewExpenseID()
	}
	m.Expenses = append(m.Expenses, rec)
	return nil
}

// DeleteMatching removes every record of month key whose date and item
// both match. The result reports whether the month exists, not whether
// anything was removed.
func (d *Document) DeleteMatching(key, date, item string) (monthExists bool, removed int) {
	m, ok := d.Month(key)
	if !ok {
		return false, 0
	}
	kept := make([]ExpenseRecord, 0, len(m.Expenses))
	for _, e := range m.Expenses {
		if e.Date == date && e.Item == item {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.Expenses = kept
	return true, removed
}

// EditFirstMatching updates the first record of month key matching date
// and item. Nil arguments leave the field unchanged.
func (d *Document) EditFirstMatching(key, date, item string, quantity, amount *Number) bool {
	m, ok := d.Month(key)
	if !ok {
		return false
	}
	for i := range m.Expenses {
		if m.Expenses[i].Date == date && m.Expenses[i].Item == item {
			applyEdit(&m.Expenses[i], quantity, amount)
			return true
		}
	}
	return false
}

// DeleteByID removes the record with the given id from month key.
func (d *Document) DeleteByID(key, id string) bool {
	m, ok := d.Month(key)
	if !ok || id == "" {
		return false
	}
	for i := range m.Expenses {
		if m.Expenses[i].ID == id {
			m.Expenses = append(m.Expenses[:i], m.Expenses[i+1:]...)
			return true
		}
	}
	return false
}

// EditByID updates the record with the given id in month key.
func (d *Document) EditByID(key, id string, quantity, amount *Number) bool {
	m, ok := d.Month(key)
	if !ok || id == "" {
		return false
	}
	for i := range m.Expenses {
		if m.Expenses[i].ID == id {
			applyEdit(&m.Expenses[i], quantity, amount)
			return true
		}
	}
	return false
}

// FindByID returns the record with the given id in month key.
func (d *Document) FindByID(key, id string) (ExpenseRecord, bool) {
	m, ok := d.Month(key)
	if !ok {
		return ExpenseRecord{}, false
	}
	for _, e := range m.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return ExpenseRecord{}, false
}

// ClearMonth empties the expenses of month key. It reports whether the
// month exists.
func (d *Document) ClearMonth(key string) bool {
	m, ok := d.Month(key)
	if !ok {
		return false
	}
	m.Expenses = []ExpenseRecord{}
	return true
}

func applyEdit(e *ExpenseRecord, quantity, amount *Number) {
	if quantity != nil {
		e.Quantity = *quantity
	}
	if amount != nil {
		e.Amount = *amount
	}
}
