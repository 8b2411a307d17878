package core

// TotalKind tags the result of CalculateTotal.
type TotalKind int

const (
	NoSuchMonth TotalKind = iota
	EmptyMonth
	Populated
)

func (k TotalKind) String() string {
	switch k {
	case NoSuchMonth:
		return "no_such_month"
	case EmptyMonth:
		return "empty_month"
	case Populated:
		return "populated"
	default:
		return "unknown"
	}
}

// MonthSummary is the balance sheet of a month with at least one expense.
type MonthSummary struct {
	StartingBalance  Number          `json:"starting_balance"`
	TotalExpenses    Number          `json:"total_expenses"`
	RemainingBalance Number          `json:"remaining_balance"`
	Expenses         []ExpenseRecord `json:"expenses"`
}

// TotalResult is NoSuchMonth, EmptyMonth, or Populated with Summary set.
type TotalResult struct {
	Kind    TotalKind
	Summary MonthSummary
}

// DailyRecord lists the expenses of a single date.
type DailyRecord struct {
	TotalExpenses Number          `json:"total_expenses"`
	Expenses      []ExpenseRecord `json:"expenses"`
}

// CalculateTotal summarizes month key. An existing month with no expenses
// yields EmptyMonth rather than a zero summary.
func (d *Document) CalculateTotal(key string) TotalResult {
	m, ok := d.Month(key)
	if !ok {
		return TotalResult{Kind: NoSuchMonth}
	}
	if len(m.Expenses) == 0 {
		return TotalResult{Kind: EmptyMonth}
	}
	total := Sum(m.Expenses)
	return TotalResult{
		Kind: Populated,
		Summary: MonthSummary{
			StartingBalance:  m.StartingBalance,
			TotalExpenses:    total,
			RemainingBalance: m.StartingBalance.Sub(total),
			Expenses:         append([]ExpenseRecord{}, m.Expenses...),
		},
	}
}

// Daily returns the expenses of month key dated exactly date, or nil
// when the month does not exist. No matches yields a zero total.
func (d *Document) Daily(key, date string) *DailyRecord {
	m, ok := d.Month(key)
	if !ok {
		return nil
	}
	daily := []ExpenseRecord{}
	for _, e := range m.Expenses {
		if e.Date == date {
			daily = append(daily, e)
		}
	}
	return &DailyRecord{TotalExpenses: Sum(daily), Expenses: daily}
}
