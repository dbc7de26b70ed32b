package enums

import "fmt"

// FulfillmentStatus tracks shipment progress for an order.
type FulfillmentStatus string

const (
	FulfillmentStatusNotFulfilled FulfillmentStatus = "not_fulfilled"
	FulfillmentStatusFulfilled    FulfillmentStatus = "fulfilled"
	FulfillmentStatusShipped      FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered    FulfillmentStatus = "delivered"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusNotFulfilled,
	FulfillmentStatusFulfilled,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
}

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (f FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}
