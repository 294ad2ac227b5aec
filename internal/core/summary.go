package core

// Summary totals income and expense over a date range.
type Summary struct {
	TotalIncome  Money `json:"totalIncome"`
	TotalExpense Money `json:"totalExpense"`
	Savings      Money `json:"savings"`
}

// NewSummary fills Savings from the two totals.
func NewSummary(income, expense Money) Summary {
	return Summary{TotalIncome: income, TotalExpense: expense, Savings: income.Sub(expense)}
}

// CategoryAmount represents an expense total aggregated by category name.
type CategoryAmount struct {
	Category   string  `json:"category"`
	Total      Money   `json:"total"`
	Percentage float64 `json:"percentage"`
}

// CategoryBreakdown is the expense split of a range, sorted by total descending.
type CategoryBreakdown struct {
	TotalExpense Money            `json:"totalExpense"`
	Categories   []CategoryAmount `json:"categories"`
}

// TrendPoint is one calendar month of income and expense.
type TrendPoint struct {
	Year    int   `json:"year"`
	Month   int   `json:"month"` // 1-12
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
}

// MonthTotals is the per-month shape used by month comparison.
type MonthTotals struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Savings Money `json:"savings"`
}

// MonthComparison pairs the running current month with the full previous one.
type MonthComparison struct {
	CurrentMonth  MonthTotals `json:"currentMonth"`
	PreviousMonth MonthTotals `json:"previousMonth"`
}

// FlowTotals is the raw per-flow sum a store hands back.
type FlowTotals struct {
	Income  Money
	Expense Money
}

// MonthTotalsOf converts flow totals to month totals.
func MonthTotalsOf(f FlowTotals) MonthTotals {
	return MonthTotals{Income: f.Income, Expense: f.Expense, Savings: f.Income.Sub(f.Expense)}
}

// BudgetUsage is a budget joined with what was actually spent in its month.
type BudgetUsage struct {
	Budget
	Spent       Money   `json:"spent"`
	Remaining   Money   `json:"remaining"`
	PercentUsed float64 `json:"percentUsed"`
	IsExceeded  bool    `json:"isExceeded"`
}

// UsageOf derives the usage fields of b given the spent amount. Remaining may go
// negative when the budget is overrun.
func UsageOf(b Budget, spent Money) BudgetUsage {
	return BudgetUsage{
		Budget:      b,
		Spent:       spent,
		Remaining:   b.Limit.Sub(spent),
		PercentUsed: Percent(spent, b.Limit, 2),
		IsExceeded:  spent.Cents > b.Limit.Cents,
	}
}
