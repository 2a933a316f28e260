package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Item counters: CurrentStock is on the shelf, InUse is out on an
// appointment, Empty is spent or waiting to be cleaned. Their sum only
// changes on an explicit restock.
type Item struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	CurrentStock int       `json:"current_stock"`
	InUse        int       `json:"in_use"`
	Empty        int       `json:"empty"`
	Unit         string    `json:"unit"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (i Item) Total() int {
	return i.CurrentStock + i.InUse + i.Empty
}

// MaterialRequest is one line of the materials an appointment needs.
type MaterialRequest struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
	Reusable bool      `json:"is_reusable"`
}

// AppointmentMaterial records stock taken for an appointment. It is written
// at deduction and settled exactly once: ReturnedAt for reusable material,
// ConsumedAt for everything else.
type AppointmentMaterial struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	ItemID        uuid.UUID  `json:"item_id"`
	QuantityUsed  int        `json:"quantity_used"`
	IsReusable    bool       `json:"is_reusable"`
	DeductedAt    time.Time  `json:"deducted_at"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
}

func (m AppointmentMaterial) Settled() bool {
	return m.ReturnedAt != nil || m.ConsumedAt != nil
}

type UsageAction string

const (
	UsageDeduct  UsageAction = "deduct"
	UsageReturn  UsageAction = "return"
	UsageConsume UsageAction = "consume"
	UsageRestock UsageAction = "restock"
	UsageRefill  UsageAction = "refill"
)

type UsageLog struct {
	ID            int64       `json:"id"`
	ItemID        uuid.UUID   `json:"item_id"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
	Action        UsageAction `json:"action"`
	Quantity      int         `json:"quantity"`
	StockAfter    int         `json:"stock_after"`
	CreatedAt     time.Time   `json:"created_at"`
}
