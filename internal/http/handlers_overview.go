package http

import (
	"net/http"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"household/internal/core"
	"household/internal/log"
)

// handleOverview renders the balance sheet of the selected month.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, sess *Session) {
	var view overviewView
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		key := s.selectedMonth(r, doc)
		view.Picker = s.monthPicker(doc, key, "/")
		view.MonthName = monthName(key)
		if m, ok := doc.Month(key); ok {
			view.HasMonth = true
			view.StartingBalance = m.StartingBalance
		}
		if res := s.ledger.CalculateTotal(doc, key); res.Kind == core.Populated {
			view.Populated = true
			view.Summary = res.Summary
		}
		return nil
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not load expenses", err)
		return
	}
	s.render(w, r, http.StatusOK, "overview", s.page(sess, "Overview", "overview", view))
}

// handleBalancePage shows the balance of the selected month. Only the
// current month can be set, and only once.
func (s *Server) handleBalancePage(w http.ResponseWriter, r *http.Request, sess *Session) {
	var view balanceView
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		key := s.selectedMonth(r, doc)
		view.Picker = s.monthPicker(doc, key, "/balance")
		view.MonthName = monthName(key)
		view.CurrentMonth = s.ledger.CurrentMonth()
		view.IsCurrent = key == view.CurrentMonth
		if m, ok := doc.Month(key); ok {
			view.HasMonth = true
			view.StartingBalance = m.StartingBalance
		}
		return nil
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not load balance", err)
		return
	}
	s.render(w, r, http.StatusOK, "balance", s.page(sess, "Monthly Balance", "balance", view))
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	back := "/balance"

	form, err := decodeBalanceForm(r.PostForm)
	if err != nil {
		s.redirectWithFlash(w, sess, back, FlashError, err.Error())
		return
	}
	if err := s.validate.Struct(form); err != nil {
		s.redirectWithFlash(w, sess, back, FlashError, validationMessage(err))
		return
	}
	current := s.ledger.CurrentMonth()
	if form.Month != current {
		s.redirectWithFlash(w, sess, back+"?month="+form.Month, FlashWarning, "Only current month is editable")
		return
	}

	var created bool
	err = s.withLedger(r.Context(), func(doc *core.Document) error {
		var err error
		created, err = s.ledger.SetMonthlyBalance(r.Context(), doc, current, form.Balance)
		return err
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not save balance", err)
		return
	}
	if !created {
		s.redirectWithFlash(w, sess, back, FlashInfo, "Balance already set")
		return
	}
	s.redirectWithFlash(w, sess, back, FlashSuccess, "Saved")
}

// handleSearch filters the selected month by an optional date and an
// optional fuzzy item query.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sess *Session) {
	q := r.URL.Query()
	view := searchView{
		Date:  strings.TrimSpace(q.Get("date")),
		Query: sanitizeInput(q.Get("q")),
	}

	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		key := s.selectedMonth(r, doc)
		view.Picker = s.monthPicker(doc, key, "/search")
		view.MonthName = monthName(key)

		m, ok := doc.Month(key)
		if !ok {
			return nil
		}
		view.HasMonth = true
		results := m.Expenses

		if view.Date != "" {
			date, err := ledgerDate(view.Date)
			if err != nil {
				view.Error = "Invalid date"
				return nil
			}
			view.Filtered = true
			if daily := s.ledger.GetDailyRecord(doc, key, date); daily != nil {
				results = daily.Expenses
			}
		}
		if view.Query != "" {
			view.Filtered = true
			results = fuzzyFilter(view.Query, results)
		}

		view.Results = results
		view.Total = core.Sum(results)
		return nil
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not search expenses", err)
		return
	}
	if view.Error != "" {
		reqLogger(r, log.ComponentHTTP).DebugContext(r.Context(), "Search rejected",
			log.FieldError, view.Error,
			log.FieldDate, view.Date)
	}
	s.render(w, r, http.StatusOK, "search", s.page(sess, "Search / Filter", "search", view))
}

// fuzzyFilter keeps the expenses whose item fuzzily matches query, closest
// matches first. Ties keep ledger order.
func fuzzyFilter(query string, expenses []core.ExpenseRecord) []core.ExpenseRecord {
	items := make([]string, len(expenses))
	for i, e := range expenses {
		items[i] = e.Item
	}
	ranks := fuzzy.RankFindNormalizedFold(query, items)
	sort.Stable(ranks)

	out := make([]core.ExpenseRecord, 0, len(ranks))
	for _, rank := range ranks {
		out = append(out, expenses[rank.OriginalIndex])
	}
	return out
}
