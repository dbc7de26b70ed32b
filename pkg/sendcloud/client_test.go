package sendcloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("key", "secret", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "secret"); err == nil {
		t.Fatal("expected missing key to fail")
	}
	if _, err := NewClient("key", "  "); err == nil {
		t.Fatal("expected missing secret to fail")
	}
}

func TestCreateParcelSendsWeightInKilograms(t *testing.T) {
	var received map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parcels" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Error("expected basic auth credentials")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"parcel":{"id":12345,"tracking_number":"TRACKXYZ","status":{"message":"announced"},"label":{"normal_printer":["https://labels.example/1.pdf"]}}}`))
	})

	parcel, err := client.CreateParcel(context.Background(), ParcelRequest{
		OrderNumber: "1042",
		WeightGrams: 750,
		Email:       "claire@example.fr",
		Address: ParcelAddress{
			Name:       "Claire Moreau",
			Address:    "12 rue des Lilas",
			City:       "Lyon",
			PostalCode: "69003",
			Country:    "fr",
		},
	})
	if err != nil {
		t.Fatalf("create parcel: %v", err)
	}

	body, ok := received["parcel"].(map[string]any)
	if !ok {
		t.Fatal("request body missing parcel envelope")
	}
	if body["weight"] != "0.750" {
		t.Fatalf("expected weight in kilograms, got %v", body["weight"])
	}
	if body["country"] != "FR" {
		t.Fatalf("expected upper-cased country, got %v", body["country"])
	}
	if parcel.ID != "12345" || parcel.TrackingNumber != "TRACKXYZ" {
		t.Fatalf("unexpected parcel %+v", parcel)
	}
	if parcel.LabelURL != "https://labels.example/1.pdf" {
		t.Fatalf("label url not mapped, got %q", parcel.LabelURL)
	}
}

func TestCreateParcelValidatesInput(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for invalid input")
	})

	if _, err := client.CreateParcel(context.Background(), ParcelRequest{WeightGrams: 100}); err == nil {
		t.Fatal("expected missing order number to fail")
	}
	if _, err := client.CreateParcel(context.Background(), ParcelRequest{OrderNumber: "1", WeightGrams: 0}); err == nil {
		t.Fatal("expected zero weight to fail")
	}
}

func TestGetServicePointNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetServicePoint(context.Background(), "SPGONE")
	if !errors.Is(err, ErrServicePointNotFound) {
		t.Fatalf("expected ErrServicePointNotFound, got %v", err)
	}
}

func TestSearchServicePointsJoinsHouseNumber(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("postal_code"); got != "69003" {
			t.Errorf("unexpected postal code %q", got)
		}
		if got := r.URL.Query().Get("country"); got != "FR" {
			t.Errorf("expected default country FR, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":77,"name":"Tabac des Lilas","street":"place Bellecour","house_number":"4","postal_code":"69002","city":"Lyon","country":"FR"}]`))
	})

	points, err := client.SearchServicePoints(context.Background(), "", "69003")
	if err != nil {
		t.Fatalf("search service points: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected one point, got %d", len(points))
	}
	if points[0].Street != "4 place Bellecour" {
		t.Fatalf("house number must prefix the street, got %q", points[0].Street)
	}
}

func TestTrackMapsDeliveredStatus(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"parcel":{"id":12345,"tracking_number":"TRACKXYZ","status":{"message":"Delivered"}}}`))
	})

	tracking, err := client.Track(context.Background(), "12345")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !tracking.Delivered {
		t.Fatal("expected delivered flag")
	}
}

func TestErrorResponsesIncludeSnippet(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"invalid postal code"}}`))
	})

	_, err := client.CreateParcel(context.Background(), ParcelRequest{OrderNumber: "1", WeightGrams: 100})
	if err == nil {
		t.Fatal("expected carrier rejection to surface")
	}
}
