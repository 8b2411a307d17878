package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"household/internal/core"
	"household/internal/log"
	"household/internal/services"
)

// handleAddPage shows the category forms and the cart of the session. New
// expenses always go to the current month.
func (s *Server) handleAddPage(w http.ResponseWriter, r *http.Request, sess *Session) {
	view := addView{
		CurrentMonth: s.ledger.CurrentMonth(),
		Categories:   Categories,
		Cart:         s.sessions.Cart(sess.ID),
	}
	view.MonthName = monthName(view.CurrentMonth)
	view.CartTotal = cartTotal(view.Cart)

	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		if m, ok := doc.Month(view.CurrentMonth); ok {
			view.HasBalance = true
			view.StartingBalance = m.StartingBalance
		}
		return nil
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not load expenses", err)
		return
	}
	s.render(w, r, http.StatusOK, "add", s.page(sess, "Add Expenses", "add", view))
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	back := "/expenses/new"

	form, err := decodeCartForm(r.PostForm)
	if err != nil {
		s.redirectWithFlash(w, sess, back, FlashError, err.Error())
		return
	}
	if err := s.validate.Struct(form); err != nil {
		s.redirectWithFlash(w, sess, back, FlashError, validationMessage(err))
		return
	}

	item := cartItem{
		Category: form.Category,
		Item:     form.Item,
		Quantity: form.Quantity,
		Price:    form.Price,
		Amount:   form.Amount(),
	}
	size := s.sessions.AddToCart(sess.ID, item)
	reqLogger(r, log.ComponentSession).DebugContext(r.Context(), "Cart entry staged",
		log.FieldItem, item.Item,
		log.FieldAmount, item.Amount.String(),
		"cart_size", size)
	s.redirectWithFlash(w, sess, back, FlashSuccess, "Added")
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request, sess *Session) {
	back := "/expenses/new"
	index, err := ParseIndexPath(r, "index")
	if err != nil || !s.sessions.RemoveFromCart(sess.ID, index) {
		s.redirectWithFlash(w, sess, back, FlashError, "No such cart entry")
		return
	}
	s.redirectWithFlash(w, sess, back, FlashSuccess, "Removed")
}

// handleCommitCart saves the staged entries in order and empties the cart.
// Entries saved before a failure are dropped from the cart; the rest stay.
// The cart is read and trimmed under the ledger lock so a repeated submit
// cannot save the same entries twice.
func (s *Server) handleCommitCart(w http.ResponseWriter, r *http.Request, sess *Session) {
	back := "/expenses/new"

	var staged, committed int
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		cart := s.sessions.Cart(sess.ID)
		staged = len(cart)
		if staged == 0 {
			return nil
		}
		entries := make([]services.CartEntry, staged)
		for i, it := range cart {
			entries[i] = it.entry()
		}

		var err error
		committed, err = s.ledger.CommitCart(r.Context(), doc, entries)
		s.sessions.DropCommitted(sess.ID, committed)
		return err
	})

	switch {
	case errors.Is(err, core.ErrBalanceNotSet):
		s.redirectWithFlash(w, sess, back, FlashWarning, "Set balance first")
	case err != nil:
		s.serverError(w, r, sess, fmt.Sprintf("Saved %d of %d expenses", committed, staged), err)
	case staged == 0:
		s.redirectWithFlash(w, sess, back, FlashInfo, "Cart is empty")
	default:
		s.redirectWithFlash(w, sess, back, FlashSuccess, "All saved")
	}
}

// handleEditPage lists the expenses of the selected month and, when ?id=
// names one of them, the form to change it.
func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request, sess *Session) {
	var view editView
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		key := s.selectedMonth(r, doc)
		view.Picker = s.monthPicker(doc, key, "/expenses/edit")
		view.MonthName = monthName(key)
		m, ok := doc.Month(key)
		if !ok {
			return nil
		}
		view.HasMonth = true
		view.Expenses = m.Expenses
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			if rec, found := doc.FindByID(key, id); found {
				view.Selected = &rec
			}
		}
		return nil
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not load expenses", err)
		return
	}
	s.render(w, r, http.StatusOK, "edit", s.page(sess, "Edit Expense", "edit", view))
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id := r.PathValue("id")
	form, err := decodeEditForm(r.PostForm)
	if err == nil {
		err = s.validate.Struct(form)
		if err != nil {
			err = errors.New(validationMessage(err))
		}
	}
	back := editLocation(form.Month, id)
	if err != nil {
		s.redirectWithFlash(w, sess, back, FlashError, err.Error())
		return
	}

	var updated bool
	err = s.withLedger(r.Context(), func(doc *core.Document) error {
		var err error
		updated, err = s.ledger.EditExpenseByID(r.Context(), doc, form.Month, id, &form.Quantity, &form.Amount)
		return err
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not update expense", err)
		return
	}
	if !updated {
		s.redirectWithFlash(w, sess, back, FlashError, "Expense not found")
		return
	}
	s.redirectWithFlash(w, sess, back, FlashSuccess, "Updated")
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request, sess *Session) {
	var view deleteView
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		key := s.selectedMonth(r, doc)
		view.Picker = s.monthPicker(doc, key, "/expenses/delete")
		view.MonthName = monthName(key)
		if m, ok := doc.Month(key); ok {
			view.HasMonth = true
			view.Expenses = m.Expenses
		}
		return nil
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not load expenses", err)
		return
	}
	s.render(w, r, http.StatusOK, "delete", s.page(sess, "Delete Expense", "delete", view))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id := r.PathValue("id")
	key := ParseMonthParam(r.PostForm, "")
	back := monthLocation("/expenses/delete", key)
	if key == "" {
		s.redirectWithFlash(w, sess, back, FlashError, "Select a month")
		return
	}

	var deleted bool
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		var err error
		deleted, err = s.ledger.DeleteExpenseByID(r.Context(), doc, key, id)
		return err
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not delete expense", err)
		return
	}
	if !deleted {
		s.redirectWithFlash(w, sess, back, FlashError, "Expense not found")
		return
	}
	s.redirectWithFlash(w, sess, back, FlashSuccess, "Deleted")
}

// handleClearMonth removes every expense of a month, keeping its balance.
func (s *Server) handleClearMonth(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	key := ParseMonthParam(r.PostForm, "")
	back := monthLocation("/expenses/delete", key)
	if key == "" {
		s.redirectWithFlash(w, sess, back, FlashError, "Select a month")
		return
	}

	var cleared bool
	err := s.withLedger(r.Context(), func(doc *core.Document) error {
		var err error
		cleared, err = s.ledger.ClearMonth(r.Context(), doc, key)
		return err
	})
	if err != nil {
		s.serverError(w, r, sess, "Could not clear month", err)
		return
	}
	if !cleared {
		s.redirectWithFlash(w, sess, back, FlashInfo, "No data")
		return
	}
	s.redirectWithFlash(w, sess, back, FlashSuccess, "All expenses of "+monthName(key)+" deleted")
}

func monthLocation(path, key string) string {
	if key == "" {
		return path
	}
	return path + "?" + url.Values{"month": {key}}.Encode()
}

func editLocation(key, id string) string {
	v := url.Values{}
	if key != "" {
		v.Set("month", key)
	}
	if id != "" {
		v.Set("id", id)
	}
	if len(v) == 0 {
		return "/expenses/edit"
	}
	return "/expenses/edit?" + v.Encode()
}
