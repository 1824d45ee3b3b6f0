//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, newClient(t), "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	products := decodeJSON[[]productResponse](t, resp)
	if len(products) == 0 {
		t.Fatal("expected seeded products")
	}
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			t.Fatalf("product missing fields: %+v", p)
		}
	}
}

func TestGetUnknownProduct(t *testing.T) {
	resp := doGet(t, newClient(t), "/api/products/does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Kind != "not_found" {
		t.Fatalf("expected not_found, got %q", body.Kind)
	}
}

func TestListShippingOptions(t *testing.T) {
	resp := doGet(t, newClient(t), "/api/shipping-options")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	options := decodeJSON[[]shippingOptionResponse](t, resp)
	if len(options) == 0 {
		t.Fatal("expected seeded shipping options")
	}
}
