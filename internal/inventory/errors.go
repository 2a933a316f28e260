package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound      = errors.New("inventory item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// ShortfallError reports the first item that could not cover a request.
// Nothing from the batch has been deducted when it is returned.
type ShortfallError struct {
	ItemID    uuid.UUID
	Name      string
	Required  int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("%s for %s (%s): required %d, available %d, short %d",
		ErrInsufficientStock, e.Name, e.ItemID, e.Required, e.Available, e.Shortfall())
}

func (e *ShortfallError) Shortfall() int {
	return e.Required - e.Available
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }
