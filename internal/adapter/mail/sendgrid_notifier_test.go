package mail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rl1809/storefront/internal/core/domain"
)

func testOrder() domain.Order {
	return domain.Order{
		OrderNumber:      "ORD-1A2B3C4D",
		CustomerEmail:    "shopper@example.com",
		Currency:         "usd",
		AmountTotalMinor: 1999,
		Lines: []domain.OrderLine{
			{Title: "Tee (M)", Quantity: 2, TotalAmountMinor: 1500},
			{Title: "Shipping", Quantity: 1, TotalAmountMinor: 499},
		},
	}
}

func TestRenderConfirmation(t *testing.T) {
	subject, body := RenderConfirmation(testOrder())

	if subject != "Your order ORD-1A2B3C4D" {
		t.Errorf("unexpected subject %q", subject)
	}
	for _, want := range []string{"2 x Tee (M)  15.00 USD", "1 x Shipping  4.99 USD", "Total: 19.99 USD"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestSendOrderConfirmation(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer SG.test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewSendGridNotifier("SG.test", "shop@example.com", "Shop", slog.New(slog.NewTextHandler(io.Discard, nil))).WithHost(srv.URL)
	if err := n.SendOrderConfirmation(context.Background(), testOrder()); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if payload["subject"] != "Your order ORD-1A2B3C4D" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestSendOrderConfirmation_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	if err := NewSendGridNotifier("", "shop@example.com", "Shop", nil).SendOrderConfirmation(ctx, testOrder()); err == nil {
		t.Error("expected error for empty api key")
	}

	noEmail := testOrder()
	noEmail.CustomerEmail = ""
	if err := NewSendGridNotifier("SG.test", "shop@example.com", "Shop", nil).SendOrderConfirmation(ctx, noEmail); err == nil {
		t.Error("expected error for empty recipient")
	}

	n := NewSendGridNotifier("SG.bad", "shop@example.com", "Shop", nil).WithHost(srv.URL)
	if err := n.SendOrderConfirmation(ctx, testOrder()); err == nil {
		t.Error("expected error for 401 response")
	}
}
