package sendcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL             = "https://panel.sendcloud.sc/api/v2"
	errorBodyReadLimit   int64 = 2048
	defaultClientTimeout       = 15 * time.Second
)

var (
	errCredentialsRequired = errors.New("sendcloud api key and secret are required")

	// ErrServicePointNotFound signals that the carrier no longer knows the
	// requested relay code. Callers surface this without retry.
	ErrServicePointNotFound = errors.New("service point not found")
)

// Client talks to the Sendcloud parcel/service-point APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// NewClient builds the carrier client given API credentials.
func NewClient(apiKey, apiSecret string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	secret := strings.TrimSpace(apiSecret)
	if key == "" || secret == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		apiKey:     key,
		apiSecret:  secret,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultClientTimeout}
	}

	return client, nil
}

// ServicePoint is a carrier relay/pickup location.
type ServicePoint struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// ParcelAddress is the destination block sent with a parcel.
type ParcelAddress struct {
	Name           string
	Address        string
	PostalCode     string
	City           string
	Country        string
	Phone          string
	ToServicePoint string
}

// ParcelRequest creates a shipment with the carrier.
type ParcelRequest struct {
	OrderNumber string
	WeightGrams int
	Address     ParcelAddress
	Email       string
}

// Parcel is the carrier's view of a created shipment.
type Parcel struct {
	ID             string `json:"id"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	LabelURL       string `json:"label_url,omitempty"`
}

// Tracking reports the carrier-side progress of a parcel.
type Tracking struct {
	ParcelID       string `json:"parcel_id"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	Delivered      bool   `json:"delivered"`
}

type parcelPayload struct {
	Parcel parcelBody `json:"parcel"`
}

type parcelBody struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	City           string `json:"city"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	Telephone      string `json:"telephone,omitempty"`
	Email          string `json:"email,omitempty"`
	ToServicePoint string `json:"to_service_point,omitempty"`
	OrderNumber    string `json:"order_number"`
	Weight         string `json:"weight"`
	RequestLabel   bool   `json:"request_label"`
}

type parcelEnvelope struct {
	Parcel struct {
		ID             json.Number `json:"id"`
		TrackingNumber string      `json:"tracking_number"`
		Status         struct {
			Message string `json:"message"`
		} `json:"status"`
		Label struct {
			NormalPrinter []string `json:"normal_printer"`
		} `json:"label"`
	} `json:"parcel"`
}

type servicePointEnvelope struct {
	ID         json.Number `json:"id"`
	Name       string      `json:"name"`
	Street     string      `json:"street"`
	HouseNumber string     `json:"house_number"`
	PostalCode string      `json:"postal_code"`
	City       string      `json:"city"`
	Country    string      `json:"country"`
}

// SearchServicePoints lists relay points around a postal code.
func (c *Client) SearchServicePoints(ctx context.Context, country, postalCode string) ([]ServicePoint, error) {
	if strings.TrimSpace(postalCode) == "" {
		return nil, fmt.Errorf("postal code is required")
	}
	if strings.TrimSpace(country) == "" {
		country = "FR"
	}

	query := url.Values{}
	query.Set("country", strings.ToUpper(country))
	query.Set("postal_code", postalCode)

	var payload []servicePointEnvelope
	if err := c.do(ctx, http.MethodGet, "/service-points?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	points := make([]ServicePoint, 0, len(payload))
	for _, sp := range payload {
		points = append(points, mapServicePoint(sp))
	}
	return points, nil
}

// GetServicePoint fetches one relay point by carrier code. Returns
// ErrServicePointNotFound when the code is no longer recognized.
func (c *Client) GetServicePoint(ctx context.Context, code string) (*ServicePoint, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("service point code is required")
	}

	var payload servicePointEnvelope
	err := c.do(ctx, http.MethodGet, "/service-points/"+url.PathEscape(code), nil, &payload)
	if err != nil {
		return nil, err
	}

	point := mapServicePoint(payload)
	return &point, nil
}

// CreateParcel registers a shipment and requests a label.
func (c *Client) CreateParcel(ctx context.Context, req ParcelRequest) (*Parcel, error) {
	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, fmt.Errorf("order number is required")
	}
	if req.WeightGrams <= 0 {
		return nil, fmt.Errorf("parcel weight must be positive")
	}

	body := parcelPayload{
		Parcel: parcelBody{
			Name:           req.Address.Name,
			Address:        req.Address.Address,
			City:           req.Address.City,
			PostalCode:     req.Address.PostalCode,
			Country:        strings.ToUpper(req.Address.Country),
			Telephone:      req.Address.Phone,
			Email:          req.Email,
			ToServicePoint: req.Address.ToServicePoint,
			OrderNumber:    req.OrderNumber,
			Weight:         fmt.Sprintf("%.3f", float64(req.WeightGrams)/1000),
			RequestLabel:   true,
		},
	}

	var payload parcelEnvelope
	if err := c.do(ctx, http.MethodPost, "/parcels", body, &payload); err != nil {
		return nil, err
	}

	parcel := &Parcel{
		ID:             payload.Parcel.ID.String(),
		TrackingNumber: payload.Parcel.TrackingNumber,
		Status:         payload.Parcel.Status.Message,
	}
	if labels := payload.Parcel.Label.NormalPrinter; len(labels) > 0 {
		parcel.LabelURL = labels[0]
	}
	return parcel, nil
}

// CancelParcel asks the carrier to cancel a shipment. Cancelling an already
// announced parcel is accepted by the carrier as long as it has not been
// handed over.
func (c *Client) CancelParcel(ctx context.Context, parcelID string) error {
	if strings.TrimSpace(parcelID) == "" {
		return fmt.Errorf("parcel id is required")
	}
	return c.do(ctx, http.MethodPost, "/parcels/"+url.PathEscape(parcelID)+"/cancel", nil, nil)
}

// Track returns the carrier's current status for a parcel.
func (c *Client) Track(ctx context.Context, parcelID string) (*Tracking, error) {
	if strings.TrimSpace(parcelID) == "" {
		return nil, fmt.Errorf("parcel id is required")
	}

	var payload parcelEnvelope
	if err := c.do(ctx, http.MethodGet, "/parcels/"+url.PathEscape(parcelID), nil, &payload); err != nil {
		return nil, err
	}

	status := payload.Parcel.Status.Message
	return &Tracking{
		ParcelID:       payload.Parcel.ID.String(),
		TrackingNumber: payload.Parcel.TrackingNumber,
		Status:         status,
		Delivered:      strings.EqualFold(status, "delivered"),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrServicePointNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return fmt.Errorf("carrier responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapServicePoint(sp servicePointEnvelope) ServicePoint {
	street := sp.Street
	if sp.HouseNumber != "" {
		street = strings.TrimSpace(sp.HouseNumber + " " + sp.Street)
	}
	return ServicePoint{
		ID:         sp.ID.String(),
		Name:       sp.Name,
		Street:     street,
		PostalCode: sp.PostalCode,
		City:       sp.City,
		Country:    sp.Country,
	}
}
