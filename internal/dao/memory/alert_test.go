package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricewatch/internal/dao"
	"pricewatch/internal/model/entity"
)

func newAlert(id string) *entity.Alert {
	return &entity.Alert{
		ID:           id,
		UserID:       "u1",
		Symbol:       "BTCUSDT",
		TargetPrice:  50000,
		Type:         "ABOVE",
		DurationType: "ONCE",
		IsActive:     true,
	}
}

func TestTriggerIfEligibleOnlyOnce(t *testing.T) {
	d := NewAlertDAO()
	ctx := context.Background()
	if err := d.Create(ctx, newAlert("a1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := d.TriggerIfEligible(ctx, "a1", dao.TriggerPatch{Price: 50500, At: time.Now()})
			if err != nil {
				t.Errorf("trigger: %v", err)
				return
			}
			if a != nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful trigger, got %d", wins)
	}
	got, _ := d.FindByID(ctx, "a1")
	if got.TriggerCount != 1 || !got.IsThresholdPassed {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestUpdateIfNotTriggered(t *testing.T) {
	d := NewAlertDAO()
	ctx := context.Background()
	_ = d.Create(ctx, newAlert("a1"))

	price := 60000.0
	a, err := d.UpdateIfNotTriggered(ctx, "a1", dao.AlertPatch{TargetPrice: &price})
	if err != nil || a == nil || a.TargetPrice != price {
		t.Fatalf("update before trigger failed: %v %+v", err, a)
	}

	_, _ = d.TriggerIfEligible(ctx, "a1", dao.TriggerPatch{Price: 61000, At: time.Now()})
	a, err = d.UpdateIfNotTriggered(ctx, "a1", dao.AlertPatch{TargetPrice: &price})
	if err != nil || a != nil {
		t.Fatalf("update after trigger should be rejected, got %+v %v", a, err)
	}

	a, _ = d.UpdateIfNotTriggered(ctx, "missing", dao.AlertPatch{TargetPrice: &price})
	if a != nil {
		t.Fatalf("missing alert should return nil")
	}
}

func TestFindKeysetPagination(t *testing.T) {
	d := NewAlertDAO()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_ = d.Create(ctx, newAlert(fmt.Sprintf("id-%03d", i)))
	}

	var seen int
	cursor := ""
	for {
		batch, err := d.Find(ctx, dao.AlertFilter{Symbol: "BTCUSDT", AfterID: cursor}, dao.SortIDAsc, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(batch) == 0 {
			break
		}
		// 翻页过程中触发一半记录，游标分页不受影响
		for _, a := range batch {
			_, _ = d.TriggerIfEligible(ctx, a.ID, dao.TriggerPatch{Price: 1, At: time.Now()})
		}
		seen += len(batch)
		cursor = batch[len(batch)-1].ID
	}
	if seen != 25 {
		t.Fatalf("expected 25 alerts, saw %d", seen)
	}
}

func TestDeactivateExpired(t *testing.T) {
	d := NewAlertDAO()
	ctx := context.Background()
	now := time.Now()
	exp := now.Add(-time.Hour)

	a := newAlert("a1")
	a.DurationType = "ONE_DAY"
	a.ExpiresAt = &exp
	_ = d.Create(ctx, a)
	_ = d.Create(ctx, newAlert("a2"))

	n, err := d.DeactivateExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deactivated, got %d %v", n, err)
	}
	syms, _ := d.DistinctActiveSymbols(ctx, now)
	if len(syms) != 1 || syms[0] != "BTCUSDT" {
		t.Fatalf("unexpected symbols %v", syms)
	}
}
