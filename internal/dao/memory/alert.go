// Package memory 提供不依赖数据库的 DAO 实现，用于本地调试（database.driver: memory）和单元测试。
// 所有条件更新都在同一把锁内完成“检查 + 修改”，与 SQL 的 UPDATE ... WHERE 语义一致。
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pricewatch/internal/dao"
	"pricewatch/internal/model"
	"pricewatch/internal/model/entity"
)

type AlertDAO struct {
	mu     sync.RWMutex
	alerts map[string]*entity.Alert
	now    func() time.Time
}

func NewAlertDAO() *AlertDAO {
	return &AlertDAO{
		alerts: make(map[string]*entity.Alert),
		now:    time.Now,
	}
}

var _ dao.AlertDAO = (*AlertDAO)(nil)

func clone(a *entity.Alert) *entity.Alert {
	c := *a
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	if a.TriggeredAt != nil {
		t := *a.TriggeredAt
		c.TriggeredAt = &t
	}
	return &c
}

func (d *AlertDAO) Create(ctx context.Context, alert *entity.Alert) error {
	if alert.ID == "" {
		return errors.New("alert ID is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.alerts[alert.ID]; ok {
		return errors.New("duplicate alert id " + alert.ID)
	}
	now := d.now()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if alert.DurationType == "" {
		alert.DurationType = string(model.DurationOnce)
	}
	d.alerts[alert.ID] = clone(alert)
	return nil
}

func match(a *entity.Alert, f dao.AlertFilter) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Symbol != "" && a.Symbol != f.Symbol {
		return false
	}
	if f.IsActive != nil && a.IsActive != *f.IsActive {
		return false
	}
	if f.IsThresholdPassed != nil && a.IsThresholdPassed != *f.IsThresholdPassed {
		return false
	}
	if f.AfterID != "" && a.ID <= f.AfterID {
		return false
	}
	return true
}

func (d *AlertDAO) Find(ctx context.Context, filter dao.AlertFilter, order dao.AlertSort, skip, limit int) ([]entity.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	var out []entity.Alert
	for _, a := range d.alerts {
		if match(a, filter) {
			out = append(out, *clone(a))
		}
	}
	d.mu.RUnlock()

	switch order {
	case dao.SortIDAsc:
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	default:
		sort.Slice(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID > out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	if skip > 0 {
		if skip >= len(out) {
			return nil, nil
		}
		out = out[skip:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *AlertDAO) FindByID(ctx context.Context, id string) (*entity.Alert, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.alerts[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (d *AlertDAO) UpdateIfNotTriggered(ctx context.Context, id string, patch dao.AlertPatch) (*entity.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.alerts[id]
	if !ok || a.IsThresholdPassed {
		return nil, nil
	}
	if patch.Symbol != nil {
		a.Symbol = *patch.Symbol
	}
	if patch.TargetPrice != nil {
		a.TargetPrice = *patch.TargetPrice
	}
	if patch.Type != nil {
		a.Type = *patch.Type
	}
	if patch.DurationType != nil {
		a.DurationType = *patch.DurationType
	}
	if patch.IsActive != nil {
		a.IsActive = *patch.IsActive
	}
	if patch.ExpiresAt != nil {
		t := *patch.ExpiresAt
		a.ExpiresAt = &t
	} else if patch.ClearExpiresAt {
		a.ExpiresAt = nil
	}
	a.UpdatedAt = d.now()
	return clone(a), nil
}

func (d *AlertDAO) TriggerIfEligible(ctx context.Context, id string, patch dao.TriggerPatch) (*entity.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.alerts[id]
	if !ok || !a.Eligible() {
		return nil, nil
	}
	at := patch.At
	a.TriggerCount++
	a.TriggeredAt = &at
	a.IsThresholdPassed = true
	a.LastPrice = patch.Price
	a.UpdatedAt = at
	if patch.Deactivate {
		a.IsActive = false
	}
	if patch.ExpiresAt != nil {
		t := *patch.ExpiresAt
		a.ExpiresAt = &t
	}
	return clone(a), nil
}

func (d *AlertDAO) RearmIfPassed(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.alerts[id]
	if !ok || !a.IsActive || !a.IsThresholdPassed {
		return false, nil
	}
	a.IsThresholdPassed = false
	a.UpdatedAt = d.now()
	return true, nil
}

func (d *AlertDAO) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, a := range d.alerts {
		if a.IsActive && a.DurationType == string(model.DurationOneDay) && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			a.IsActive = false
			a.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (d *AlertDAO) Delete(ctx context.Context, id string) (*entity.Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.alerts[id]
	if !ok {
		return nil, nil
	}
	delete(d.alerts, id)
	return a, nil
}

func (d *AlertDAO) DistinctActiveSymbols(ctx context.Context, now time.Time) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, a := range d.alerts {
		if !a.IsActive || (a.ExpiresAt != nil && !a.ExpiresAt.After(now)) {
			continue
		}
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		out = append(out, a.Symbol)
	}
	sort.Strings(out)
	return out, nil
}
