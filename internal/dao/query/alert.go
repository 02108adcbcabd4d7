package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pricewatch/internal/dao"
	"pricewatch/internal/model"
	"pricewatch/internal/model/entity"
)

// AlertDAOImpl Gorm 实现
type AlertDAOImpl struct {
	db *gorm.DB
}

// NewAlertDAO 创建 DAO 实例
func NewAlertDAO(db *gorm.DB) dao.AlertDAO {
	return &AlertDAOImpl{db: db}
}

func (d *AlertDAOImpl) Create(ctx context.Context, alert *entity.Alert) error {
	if alert.ID == "" {
		return errors.New("alert ID is required")
	}
	if err := d.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert %s: %w", alert.ID, err)
	}
	return nil
}

func applyFilter(q *gorm.DB, f dao.AlertFilter) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.IsThresholdPassed != nil {
		q = q.Where("is_threshold_passed = ?", *f.IsThresholdPassed)
	}
	if f.AfterID != "" {
		q = q.Where("id > ?", f.AfterID)
	}
	return q
}

func (d *AlertDAOImpl) Find(ctx context.Context, filter dao.AlertFilter, sort dao.AlertSort, skip, limit int) ([]entity.Alert, error) {
	var alerts []entity.Alert
	q := applyFilter(d.db.WithContext(ctx).Model(&entity.Alert{}), filter)
	switch sort {
	case dao.SortIDAsc:
		q = q.Order("id ASC")
	default:
		q = q.Order("created_at DESC")
	}
	if skip > 0 {
		q = q.Offset(skip)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}
	return alerts, nil
}

func (d *AlertDAOImpl) FindByID(ctx context.Context, id string) (*entity.Alert, error) {
	var alert entity.Alert
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	// Gorm 会在找不到记录时返回 gorm.ErrRecordNotFound
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by ID %s: %w", id, err)
	}
	return &alert, nil
}

// conditionalUpdate 在事务内执行带前置条件的更新并读回最新记录。
// 条件不满足（RowsAffected == 0）时返回 nil
func (d *AlertDAOImpl) conditionalUpdate(ctx context.Context, id string, where func(*gorm.DB) *gorm.DB, updates map[string]interface{}) (*entity.Alert, error) {
	var out *entity.Alert
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := where(tx.Model(&entity.Alert{}).Where("id = ?", id)).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var alert entity.Alert
		if err := tx.Where("id = ?", id).First(&alert).Error; err != nil {
			return err
		}
		out = &alert
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	return out, nil
}

func (d *AlertDAOImpl) UpdateIfNotTriggered(ctx context.Context, id string, patch dao.AlertPatch) (*entity.Alert, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if patch.Symbol != nil {
		updates["symbol"] = *patch.Symbol
	}
	if patch.TargetPrice != nil {
		updates["target_price"] = *patch.TargetPrice
	}
	if patch.Type != nil {
		updates["type"] = *patch.Type
	}
	if patch.DurationType != nil {
		updates["duration_type"] = *patch.DurationType
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.ExpiresAt != nil {
		updates["expires_at"] = *patch.ExpiresAt
	} else if patch.ClearExpiresAt {
		updates["expires_at"] = gorm.Expr("NULL")
	}
	return d.conditionalUpdate(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("is_threshold_passed = ?", false)
	}, updates)
}

func (d *AlertDAOImpl) TriggerIfEligible(ctx context.Context, id string, patch dao.TriggerPatch) (*entity.Alert, error) {
	updates := map[string]interface{}{
		"trigger_count":       gorm.Expr("trigger_count + ?", 1),
		"triggered_at":        patch.At,
		"is_threshold_passed": true,
		"last_price":          patch.Price,
		"updated_at":          patch.At,
	}
	if patch.Deactivate {
		updates["is_active"] = false
	}
	if patch.ExpiresAt != nil {
		updates["expires_at"] = *patch.ExpiresAt
	}
	return d.conditionalUpdate(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("is_active = ? AND is_threshold_passed = ?", true, false)
	}, updates)
}

func (d *AlertDAOImpl) RearmIfPassed(ctx context.Context, id string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&entity.Alert{}).
		Where("id = ? AND is_active = ? AND is_threshold_passed = ?", id, true, true).
		Updates(map[string]interface{}{
			"is_threshold_passed": false,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to rearm alert %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *AlertDAOImpl) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Model(&entity.Alert{}).
		Where("is_active = ? AND duration_type = ? AND expires_at < ?", true, string(model.DurationOneDay), now).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate expired alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (d *AlertDAOImpl) Delete(ctx context.Context, id string) (*entity.Alert, error) {
	var deleted []entity.Alert
	// MySQL 不支持 UPDATE ... RETURNING，先锁行再软删除，放在同一事务
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Find(&deleted).Error; err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}
		return tx.Where("id = ?", id).Delete(&entity.Alert{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	if len(deleted) == 0 {
		return nil, nil
	}
	return &deleted[0], nil
}

func (d *AlertDAOImpl) DistinctActiveSymbols(ctx context.Context, now time.Time) ([]string, error) {
	var symbols []string
	err := d.db.WithContext(ctx).Model(&entity.Alert{}).
		Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now).
		Distinct("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active symbols: %w", err)
	}
	return symbols, nil
}
