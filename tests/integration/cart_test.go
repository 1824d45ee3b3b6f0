//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func firstProductID(t *testing.T, client *http.Client) string {
	t.Helper()
	resp := doGet(t, client, "/api/products")
	defer resp.Body.Close()
	products := decodeJSON[[]productResponse](t, resp)
	if len(products) == 0 {
		t.Fatal("no seeded products")
	}
	return products[0].ID
}

func TestCartLifecycle(t *testing.T) {
	client := newClient(t)
	productID := firstProductID(t, client)

	// Empty cart on first contact.
	resp := doGet(t, client, "/api/cart")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get cart: expected 200, got %d", resp.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(c.Items))
	}

	// Add two units.
	resp = doJSON(t, client, http.MethodPost, "/api/cart/items", map[string]any{
		"productId": productID,
		"quantity":  2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", resp.StatusCode)
	}
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Items) != 1 || c.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart after add: %+v", c)
	}

	// Quantity 0 removes the line item.
	resp = doJSON(t, client, http.MethodPut, "/api/cart/items/"+productID, map[string]any{
		"quantity": 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update item: expected 200, got %d", resp.StatusCode)
	}
	c = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(c.Items) != 0 {
		t.Fatalf("expected item removed, got %+v", c.Items)
	}
}

func TestCartSessionsAreIsolated(t *testing.T) {
	first := newClient(t)
	second := newClient(t)
	productID := firstProductID(t, first)

	resp := doJSON(t, first, http.MethodPost, "/api/cart/items", map[string]any{
		"productId": productID,
		"quantity":  1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d", resp.StatusCode)
	}

	resp = doGet(t, second, "/api/cart")
	defer resp.Body.Close()
	c := decodeJSON[cartResponse](t, resp)
	if len(c.Items) != 0 {
		t.Fatalf("second session sees first session's cart: %+v", c.Items)
	}
}

func TestCartRejectsUnknownProduct(t *testing.T) {
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, "/api/cart/items", map[string]any{
		"productId": "does-not-exist",
		"quantity":  1,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
