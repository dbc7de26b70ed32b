package enums

import "fmt"

// OrderType classifies an order for list filtering. The type is computed
// from metadata and line items, never stored.
type OrderType string

const (
	OrderTypeStandard     OrderType = "standard"
	OrderTypePreorder     OrderType = "preorder"
	OrderTypeSubscription OrderType = "subscription"
	OrderTypeImported     OrderType = "imported"
)

var validOrderTypes = []OrderType{
	OrderTypeStandard,
	OrderTypePreorder,
	OrderTypeSubscription,
	OrderTypeImported,
}

// String implements fmt.Stringer.
func (o OrderType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderType.
func (o OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderType converts raw input into an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
