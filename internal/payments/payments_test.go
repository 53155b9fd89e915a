package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		price string
		want  int64
	}{
		{"19.99", 1999},
		{"0.01", 1},
		{"100", 10000},
		{"24.995", 2500}, // rounds half up
		{"0", 0},
	}
	for _, tt := range tests {
		got := MinorUnits(decimal.RequireFromString(tt.price))
		if got != tt.want {
			t.Errorf("MinorUnits(%s) = %d, want %d", tt.price, got, tt.want)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got := NormalizeCurrency(" USD "); got != "usd" {
		t.Errorf("got %q, want usd", got)
	}
	if got := NormalizeCurrency("cad"); got != "cad" {
		t.Errorf("got %q, want cad", got)
	}
}

func TestStaticProcessorRecordsRequest(t *testing.T) {
	p := NewStaticProcessor()
	req := &SessionRequest{
		CustomerEmail: "buyer@example.com",
		LineItems: []SessionLineItem{
			{Name: "12L bag", Currency: "usd", UnitAmount: 2999, Quantity: 2},
		},
	}
	sess, err := p.CreateSession(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" || sess.URL == "" {
		t.Fatalf("empty session: %+v", sess)
	}
	if p.Calls() != 1 {
		t.Errorf("calls = %d, want 1", p.Calls())
	}
	if p.LastRequest().CustomerEmail != "buyer@example.com" {
		t.Errorf("last request not recorded: %+v", p.LastRequest())
	}
}

func TestStaticProcessorError(t *testing.T) {
	p := NewStaticProcessor()
	p.Err = errors.New("vendor down")
	if _, err := p.CreateSession(context.Background(), &SessionRequest{}); err == nil {
		t.Fatal("expected error")
	}
}
