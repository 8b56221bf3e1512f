// Package notify fans read-only invoice snapshots out to live listeners
// (kitchen display, reporting dashboard). Delivery is best effort and
// at-most-once: a slow or absent listener never affects the sale that
// produced the event.
package notify

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pos-backend/internal/models"
)

// InvoiceSnapshot is the read-only projection published on creation.
type InvoiceSnapshot struct {
	ID            uint            `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	BranchID      uint            `json:"branch_id"`
	FloorID       *uint           `json:"floor_id,omitempty"`
	InvoiceStatus string          `json:"invoice_status"`
	PaymentStatus string          `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     string          `json:"created_at"`
	Items         []ItemSnapshot  `json:"items"`
}

type ItemSnapshot struct {
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
}

// Snapshot projects an invoice with its items.
func Snapshot(inv *models.Invoice) InvoiceSnapshot {
	snap := InvoiceSnapshot{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		BranchID:      inv.BranchID,
		FloorID:       inv.FloorID,
		InvoiceStatus: string(inv.InvoiceStatus),
		PaymentStatus: string(inv.PaymentStatus),
		TotalAmount:   inv.TotalAmount,
		CreatedAt:     inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	for _, it := range inv.Items {
		snap.Items = append(snap.Items, ItemSnapshot{ProductName: it.ProductName, Quantity: it.Quantity})
	}
	return snap
}

// Sink receives newly created invoices. One delivery attempt, no
// acknowledgement.
type Sink interface {
	InvoiceCreated(snap InvoiceSnapshot)
}

// Hub is an in-process Sink broadcasting to subscriber channels.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]subscriber
}

type subscriber struct {
	branchID uint // 0 subscribes to every branch
	ch       chan InvoiceSnapshot
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a listener for one branch (0 for all). The returned
// cancel func must be called when the listener goes away.
func (h *Hub) Subscribe(branchID uint) (<-chan InvoiceSnapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan InvoiceSnapshot, 8)
	h.subs[id] = subscriber{branchID: branchID, ch: ch}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// InvoiceCreated delivers the snapshot to every matching subscriber. A full
// buffer drops the event for that subscriber; the display catches up on its
// next poll.
func (h *Hub) InvoiceCreated(snap InvoiceSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.branchID != 0 && sub.branchID != snap.BranchID {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			logrus.WithField("invoice", snap.InvoiceNumber).Debug("notify: subscriber buffer full, event dropped")
		}
	}
}
