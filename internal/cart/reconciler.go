package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"shopfront/internal/api"
	"shopfront/internal/localstore"
	"shopfront/internal/models"
	"shopfront/internal/notify"
)

var (
	ErrValidation = errors.New("validation")
	ErrOutOfRange = errors.New("cart index out of range")
)

// Session is the slice of the session manager the reconciler needs.
type Session interface {
	IsAuthenticated() bool
	Subscribe(fn func())
}

// Views lets the reconciler open the transient cart preview without
// knowing anything about the UI. A nil Views disables the side effect.
type Views interface {
	ActiveView() string
	OpenCartPreview()
}

const (
	ViewCart     = "cart"
	ViewCheckout = "checkout"
)

type cartState struct {
	Items []models.CartLineItem `json:"items"`
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Reconciler presents one logical cart over two variants: a locally
// persisted guest cart while anonymous and a backend mirror while logged
// in. Exactly one variant is authoritative at a time, selected by the
// session's authentication state; the guest cart is merged into the server
// cart once per login transition.
type Reconciler struct {
	sess     Session
	api      *api.Client
	store    *localstore.Store
	notifier notify.Notifier
	views    Views
	log      *slog.Logger

	mu          sync.Mutex
	serverItems []models.CartLineItem
	wasAuthed   bool
	mergeDone   bool
}

func New(sess Session, client *api.Client, store *localstore.Store, notifier notify.Notifier, views Views, log *slog.Logger) *Reconciler {
	r := &Reconciler{
		sess:     sess,
		api:      client,
		store:    store,
		notifier: notifier,
		views:    views,
		log:      log,
	}
	r.wasAuthed = sess.IsAuthenticated()
	sess.Subscribe(r.onSessionChange)
	return r
}

func (r *Reconciler) onSessionChange() {
	authed := r.sess.IsAuthenticated()

	r.mu.Lock()
	was := r.wasAuthed
	r.wasAuthed = authed
	r.mu.Unlock()

	switch {
	case !was && authed:
		ctx := context.Background()
		r.mergeGuestCart(ctx)
	case was && !authed:
		r.mu.Lock()
		r.serverItems = nil
		r.mergeDone = false
		r.mu.Unlock()
	}
}

// Items returns the currently authoritative sequence. Indices into it are
// positional and only valid until the next mutation.
func (r *Reconciler) Items() []models.CartLineItem {
	if r.sess.IsAuthenticated() {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make([]models.CartLineItem, len(r.serverItems))
		copy(out, r.serverItems)
		return out
	}
	return r.store.GuestCart()
}

func (r *Reconciler) BadgeCount() uint { return models.BadgeCount(r.Items()) }
func (r *Reconciler) Subtotal() float64 { return models.Subtotal(r.Items()) }

// AddItem adds quantity units of a variant. A repeated
// (product, variantSKU) key accumulates quantity instead of duplicating
// the line. Opens the cart preview unless the user is already looking at
// the cart or the checkout.
func (r *Reconciler) AddItem(ctx context.Context, item models.CartLineItem) error {
	if item.ProductID == 0 {
		return fmt.Errorf("product id must not be zero: %w", ErrValidation)
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}

	if r.sess.IsAuthenticated() {
		var state cartState
		if err := r.api.Do(ctx, http.MethodPost, "/cart/items", item, &state); err != nil {
			return err
		}
		r.setServerItems(state.Items)
	} else {
		items := r.store.GuestCart()
		merged := false
		for i := range items {
			if items[i].SameVariant(item) {
				items[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			items = append(items, item)
		}
		if err := r.store.SetGuestCart(items); err != nil {
			return err
		}
	}

	r.openPreview()
	return nil
}

func (r *Reconciler) UpdateQuantity(ctx context.Context, index int, quantity uint) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be more than zero: %w", ErrValidation)
	}

	if r.sess.IsAuthenticated() {
		var state cartState
		path := fmt.Sprintf("/cart/items/%d", index)
		body := map[string]uint{"quantity": quantity}
		if err := r.api.Do(ctx, http.MethodPatch, path, body, &state); err != nil {
			return err
		}
		r.setServerItems(state.Items)
		return nil
	}

	items := r.store.GuestCart()
	if index < 0 || index >= len(items) {
		return ErrOutOfRange
	}
	items[index].Quantity = quantity
	return r.store.SetGuestCart(items)
}

func (r *Reconciler) RemoveItem(ctx context.Context, index int) error {
	if r.sess.IsAuthenticated() {
		var state cartState
		path := fmt.Sprintf("/cart/items/%d", index)
		if err := r.api.Do(ctx, http.MethodDelete, path, nil, &state); err != nil {
			return err
		}
		r.setServerItems(state.Items)
		return nil
	}

	items := r.store.GuestCart()
	if index < 0 || index >= len(items) {
		return ErrOutOfRange
	}
	items = append(items[:index], items[index+1:]...)
	return r.store.SetGuestCart(items)
}

func (r *Reconciler) ClearCart(ctx context.Context) error {
	if r.sess.IsAuthenticated() {
		if err := r.api.Do(ctx, http.MethodDelete, "/cart", nil, nil); err != nil {
			return err
		}
		r.setServerItems(nil)
		return nil
	}
	return r.store.ClearGuestCart()
}

// ValidateCart asks the backend whether the cart is orderable. Guest carts
// always report valid: without the backend no stock assertion is possible,
// and an optimistic client must not claim correctness it cannot verify.
func (r *Reconciler) ValidateCart(ctx context.Context) (*ValidationResult, error) {
	if !r.sess.IsAuthenticated() {
		return &ValidationResult{Valid: true}, nil
	}
	var res ValidationResult
	if err := r.api.Do(ctx, http.MethodGet, "/cart/validate", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reload refetches the server cart. No-op for guests.
func (r *Reconciler) Reload(ctx context.Context) error {
	if !r.sess.IsAuthenticated() {
		return nil
	}
	var state cartState
	if err := r.api.Do(ctx, http.MethodGet, "/cart", nil, &state); err != nil {
		return err
	}
	r.setServerItems(state.Items)
	return nil
}

// mergeGuestCart runs the one-shot merge protocol: best-effort per-item
// adds with no atomicity, then an unconditional guest-cart clear and a
// server reload. Clearing regardless of partial failure is what prevents
// re-merging the same items on every future login.
func (r *Reconciler) mergeGuestCart(ctx context.Context) {
	l := r.log.With("svc", "cart.merge")

	r.mu.Lock()
	if r.mergeDone {
		r.mu.Unlock()
		if err := r.Reload(ctx); err != nil {
			l.Warn("reload_failed", "error", err)
		}
		return
	}
	r.mergeDone = true
	r.mu.Unlock()

	guest := r.store.GuestCart()
	if len(guest) == 0 {
		if err := r.Reload(ctx); err != nil {
			l.Warn("reload_failed", "error", err)
		}
		return
	}

	failed := 0
	for _, item := range guest {
		if err := r.api.Do(ctx, http.MethodPost, "/cart/items", item, nil); err != nil {
			failed++
		}
	}

	if err := r.store.ClearGuestCart(); err != nil {
		l.Warn("guest_clear_failed", "error", err)
	}
	if err := r.Reload(ctx); err != nil {
		l.Warn("reload_failed", "error", err)
	}

	if failed == 0 {
		l.Info("merge_done", "items", len(guest))
		r.notifier.Notify(notify.LevelSuccess, "your cart has been synced")
	} else {
		l.Warn("merge_partial", "items", len(guest), "failed", failed)
		r.notifier.Notify(notify.LevelWarn, "your cart was partially synced")
	}
}

func (r *Reconciler) setServerItems(items []models.CartLineItem) {
	r.mu.Lock()
	r.serverItems = items
	r.mu.Unlock()
}

func (r *Reconciler) openPreview() {
	if r.views == nil {
		return
	}
	if v := r.views.ActiveView(); v == ViewCart || v == ViewCheckout {
		return
	}
	r.views.OpenCartPreview()
}
