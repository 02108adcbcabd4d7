package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pricewatch/internal/dao/memory"
	"pricewatch/internal/model"
)

func TestSymbolService(t *testing.T) {
	svc := NewSymbolService(memory.NewSymbolDAO())
	ctx := context.Background()

	created, err := svc.CreateBatch(ctx, []model.CreateSymbolItem{{Symbol: "btcusdt"}, {Symbol: "ETH/USDT"}})
	if err != nil || len(created) != 2 {
		t.Fatalf("create batch: %v %v", created, err)
	}
	if _, err := svc.CreateBatch(ctx, []model.CreateSymbolItem{{Symbol: "BTCUSDT"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("existing symbol should be rejected, got %v", err)
	}
	if _, err := svc.CreateBatch(ctx, []model.CreateSymbolItem{{Symbol: "SOLUSDT"}, {Symbol: "solusdt"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate symbols should be rejected, got %v", err)
	}

	list, _ := svc.List(ctx)
	if len(list) != 2 || list[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected list %+v", list)
	}
	if s, err := svc.Get(ctx, "ethusdt"); err != nil || s.Symbol != "ETHUSDT" {
		t.Fatalf("get: %+v %v", s, err)
	}
	if err := svc.Delete(ctx, "ETHUSDT"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, "ETHUSDT"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, "ETHUSDT"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestPriceService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("symbols") == `["BTCUSDT"]` {
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"50500.01"}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"50500.01"},{"symbol":"ETHUSDT","price":"3000.10"}]`))
	}))
	defer srv.Close()

	svc := NewPriceService(srv.URL, srv.Client())
	prices, err := svc.Prices(context.Background())
	if err != nil || len(prices) != 2 {
		t.Fatalf("prices: %+v %v", prices, err)
	}
	prices, err = svc.Prices(context.Background(), "btcusdt")
	if err != nil || len(prices) != 1 || prices[0].Price != "50500.01" {
		t.Fatalf("filtered prices: %+v %v", prices, err)
	}

	bad := NewPriceService(srv.URL+"/missing", srv.Client())
	if _, err := bad.Prices(context.Background()); err == nil {
		t.Fatalf("non-200 upstream should return an error")
	}
}
