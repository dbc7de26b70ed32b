package types

import "strings"

// RelayPoint is a carrier pickup location. Only the code is required at
// order time; the postal address is backfilled from the carrier on the
// first shipment attempt and cached here.
type RelayPoint struct {
	Code       string `json:"code"`
	Name       string `json:"name,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// HasFullAddress reports whether the relay has been resolved to a
// deliverable postal address.
func (r *RelayPoint) HasFullAddress() bool {
	if r == nil {
		return false
	}
	return strings.TrimSpace(r.Street) != "" &&
		strings.TrimSpace(r.PostalCode) != "" &&
		strings.TrimSpace(r.City) != ""
}

// Address is the shipping destination stored on an order as jsonb.
type Address struct {
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Line1      string      `json:"line1"`
	Line2      *string     `json:"line2,omitempty"`
	City       string      `json:"city"`
	PostalCode string      `json:"postal_code"`
	Country    string      `json:"country"`
	Phone      *string     `json:"phone,omitempty"`
	Relay      *RelayPoint `json:"relay,omitempty"`
}

// Validate reports the first missing field, if any.
func (a Address) Validate() string {
	switch {
	case strings.TrimSpace(a.Line1) == "" && a.Relay == nil:
		return "line1"
	case strings.TrimSpace(a.City) == "" && a.Relay == nil:
		return "city"
	case strings.TrimSpace(a.PostalCode) == "":
		return "postal_code"
	case strings.TrimSpace(a.Country) == "":
		return "country"
	}
	return ""
}
