package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"pricewatch/internal/consts"
	"pricewatch/internal/dao"
	"pricewatch/internal/model"
	"pricewatch/internal/model/entity"
	"pricewatch/pkg/kafka"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
)

// OnPrice 行情回调。同一交易对已有匹配在进行时直接丢弃本次价格
func (s *AlertService) OnPrice(ctx context.Context, symbol string, price float64) {
	if !s.acquire(symbol) {
		metrics.MatchPassesSkipped.Inc()
		logger.Debug("match pass in flight, tick dropped", logger.Pair("symbol", symbol))
		return
	}
	defer s.release(symbol)

	ctx, span := tracer.Start(ctx, "AlertService.OnPrice")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Float64("price", price))

	n := s.matchAndTrigger(ctx, symbol, price)
	span.SetAttributes(attribute.Int("triggered", n))
	if s.cfg.RearmOnRecross {
		s.rearm(ctx, symbol, price)
	}
}

func (s *AlertService) acquire(symbol string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[symbol]; busy {
		return false
	}
	s.inflight[symbol] = struct{}{}
	return true
}

func (s *AlertService) release(symbol string) {
	s.inflightMu.Lock()
	delete(s.inflight, symbol)
	s.inflightMu.Unlock()
}

// eachBatch 按 id 游标分页遍历，触发过程中记录状态变化不会导致漏读
func (s *AlertService) eachBatch(ctx context.Context, filter dao.AlertFilter, fn func([]entity.Alert)) {
	size := s.cfg.BatchSize
	for {
		sctx, cancel := s.storeCtx(ctx)
		batch, err := s.dao.Find(sctx, filter, dao.SortIDAsc, 0, size)
		cancel()
		if err != nil {
			logger.Error("failed to load alert batch", logger.Pair("symbol", filter.Symbol), logger.Err(err))
			return
		}
		if len(batch) == 0 {
			return
		}
		fn(batch)
		if len(batch) < size || ctx.Err() != nil {
			return
		}
		filter.AfterID = batch[len(batch)-1].ID
	}
}

// matchAndTrigger 遍历交易对下所有可匹配的提醒，返回本轮触发数量
func (s *AlertService) matchAndTrigger(ctx context.Context, symbol string, price float64) int {
	active, passed := true, false
	filter := dao.AlertFilter{Symbol: symbol, IsActive: &active, IsThresholdPassed: &passed}

	var triggered atomic.Int32
	s.eachBatch(ctx, filter, func(batch []entity.Alert) {
		var wg sync.WaitGroup
		for i := range batch {
			a := batch[i]
			if !model.AlertType(a.Type).Matches(price, a.TargetPrice) {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.trigger(ctx, &a, price) {
					triggered.Add(1)
				}
			}()
		}
		wg.Wait()
	})
	return int(triggered.Load())
}

// trigger 条件更新成功才发送通知；竞争失败说明其他匹配已经触发过
func (s *AlertService) trigger(ctx context.Context, a *entity.Alert, price float64) bool {
	now := s.now()
	patch := dao.TriggerPatch{Price: price, At: now}
	switch model.DurationType(a.DurationType) {
	case model.DurationOneDay:
		exp := now.Add(model.OneDayTTL)
		patch.ExpiresAt = &exp
	case model.DurationContinuous:
	default:
		patch.Deactivate = true
	}

	sctx, cancel := s.storeCtx(ctx)
	updated, err := s.dao.TriggerIfEligible(sctx, a.ID, patch)
	cancel()
	if err != nil {
		logger.Error("failed to trigger alert", logger.Pair("alert_id", a.ID), logger.Err(err))
		return false
	}
	if updated == nil {
		return false
	}
	metrics.AlertsTriggeredTotal.WithLabelValues(updated.Symbol).Inc()
	logger.Info("alert triggered",
		logger.Pair("alert_id", updated.ID),
		logger.Pair("symbol", updated.Symbol),
		logger.Pair("price", price),
		logger.Pair("target", updated.TargetPrice),
		logger.Pair("trigger_count", updated.TriggerCount))

	n := model.Notification{
		Kind:        consts.NotificationTrigger,
		UserID:      updated.UserID,
		AlertID:     updated.ID,
		Symbol:      updated.Symbol,
		Price:       price,
		TargetPrice: updated.TargetPrice,
		Type:        model.AlertType(updated.Type),
		Message:     fmt.Sprintf("Price alert triggered for %s", updated.Symbol),
		TriggeredAt: &now,
		Timestamp:   now,
	}
	if err := s.publisher.Publish(ctx, kafka.TopicNotifications, updated.UserID, n); err != nil {
		logger.Error("failed to publish notification", logger.Pair("alert_id", updated.ID), logger.Err(err))
	}
	s.invalidate(ctx, updated.UserID, updated.ID)
	return true
}

// rearm 价格回到阈值另一侧时，把已触发的 ONE_DAY / CONTINUOUS 提醒恢复为可匹配
func (s *AlertService) rearm(ctx context.Context, symbol string, price float64) {
	active, passed := true, true
	filter := dao.AlertFilter{Symbol: symbol, IsActive: &active, IsThresholdPassed: &passed}
	now := s.now()

	s.eachBatch(ctx, filter, func(batch []entity.Alert) {
		for i := range batch {
			a := &batch[i]
			d := model.DurationType(a.DurationType)
			if d != model.DurationOneDay && d != model.DurationContinuous {
				continue
			}
			if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
				continue
			}
			if !model.AlertType(a.Type).Recrossed(price, a.TargetPrice) {
				continue
			}
			sctx, cancel := s.storeCtx(ctx)
			ok, err := s.dao.RearmIfPassed(sctx, a.ID)
			cancel()
			if err != nil {
				logger.Error("failed to rearm alert", logger.Pair("alert_id", a.ID), logger.Err(err))
				continue
			}
			if ok {
				logger.Info("alert rearmed", logger.Pair("alert_id", a.ID), logger.Pair("price", price))
				s.invalidate(ctx, a.UserID, a.ID)
			}
		}
	})
}
