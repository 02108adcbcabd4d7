package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pricewatch/conf"
	"pricewatch/internal/consts"
	"pricewatch/internal/dao"
	"pricewatch/internal/model"
	"pricewatch/internal/model/entity"
	"pricewatch/pkg/cache"
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
	"pricewatch/pkg/kafka"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/utils"
)

const defaultBatchSize = 100

var tracer = otel.Tracer("pricewatch/service")

// Publisher 消息队列写入端
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// SymbolSubscriber 行情订阅端，新交易对出现时通知它
type SymbolSubscriber interface {
	Subscribe(symbol string) bool
}

// AlertService 价格提醒引擎：CRUD、价格匹配与触发、过期清理
type AlertService struct {
	dao        dao.AlertDAO
	cache      cache.Store
	publisher  Publisher
	subscriber SymbolSubscriber
	cfg        conf.AlertConfig
	cacheTTL   time.Duration
	now        func() time.Time

	// 正在匹配中的交易对，同一交易对同一时刻只允许一轮匹配
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewAlertService(d dao.AlertDAO, store cache.Store, publisher Publisher, cfg conf.AlertConfig, cacheTTL time.Duration) *AlertService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.ExpireCheckInterval <= 0 {
		cfg.ExpireCheckInterval = time.Hour
	}
	return &AlertService{
		dao:       d,
		cache:     store,
		publisher: publisher,
		cfg:       cfg,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// SetSubscriber 行情服务依赖 AlertService 作为价格回调，所以订阅端在构造后注入
func (s *AlertService) SetSubscriber(sub SymbolSubscriber) {
	s.subscriber = sub
}

func (s *AlertService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AlertService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *AlertService) subscribe(symbol string) {
	if s.subscriber != nil {
		s.subscriber.Subscribe(symbol)
	}
}

// ---------- CRUD ----------

func (s *AlertService) Create(ctx context.Context, req model.CreateAlertRequest) (*entity.Alert, error) {
	ctx, span := tracer.Start(ctx, "AlertService.Create")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	symbol := utils.NormalizeSymbol(req.Symbol)
	switch {
	case userID == "":
		return nil, invalid("user_id is required")
	case symbol == "":
		return nil, invalid("symbol is required")
	case req.TargetPrice <= 0:
		return nil, invalid("target_price must be greater than 0")
	case !req.Type.Valid():
		return nil, invalid("type must be one of ABOVE, BELOW")
	}
	duration := req.DurationType
	if duration == "" {
		duration = model.DurationOnce
	}
	if !duration.Valid() {
		return nil, invalid("duration_type must be one of ONCE, ONE_DAY, CONTINUOUS")
	}

	alert := &entity.Alert{
		ID:           uuid.NewString(),
		UserID:       userID,
		Symbol:       symbol,
		TargetPrice:  req.TargetPrice,
		Type:         string(req.Type),
		DurationType: string(duration),
		IsActive:     true,
	}
	if err := s.dao.Create(ctx, alert); err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "create alert")
	}
	span.SetAttributes(attribute.String("alert.id", alert.ID), attribute.String("alert.symbol", symbol))
	logger.Info("alert created", logger.Pair("alert_id", alert.ID), logger.Pair("user_id", userID), logger.Pair("symbol", symbol))

	perr := s.publisher.Publish(ctx, kafka.TopicPriceAlerts, alert.UserID, alert)
	s.subscribe(symbol)
	s.invalidate(ctx, alert.UserID, "")
	if perr != nil {
		return alert, errors.Wrap(perr, ecode.PublishErr, "alert %s saved but intake message was not published", alert.ID)
	}
	return alert, nil
}

func (s *AlertService) GetByUser(ctx context.Context, userID string, page, limit int) ([]entity.Alert, error) {
	if page <= 0 {
		page = consts.DefaultPage
	}
	if limit <= 0 {
		limit = consts.DefaultPageSize
	}
	if limit > consts.MaxPageSize {
		limit = consts.MaxPageSize
	}
	key := cache.Key(consts.CacheAlertsByUser, userID, page, limit)
	return readThrough(ctx, s, key, func() ([]entity.Alert, error) {
		alerts, err := s.dao.Find(ctx, dao.AlertFilter{UserID: userID}, dao.SortCreatedDesc, (page-1)*limit, limit)
		if err != nil {
			return nil, errors.Wrap(err, ecode.Unknown, "list alerts")
		}
		if alerts == nil {
			alerts = []entity.Alert{}
		}
		return alerts, nil
	})
}

func (s *AlertService) GetByID(ctx context.Context, id string) (*entity.Alert, error) {
	key := cache.Key(consts.CacheAlertByID, id)
	return readThrough(ctx, s, key, func() (*entity.Alert, error) {
		alert, err := s.dao.FindByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, ecode.Unknown, "get alert")
		}
		if alert == nil {
			return nil, ErrNotFound
		}
		return alert, nil
	})
}

func (s *AlertService) GetActiveByUser(ctx context.Context, userID string) ([]entity.Alert, error) {
	key := cache.Key(consts.CacheActiveByUser, userID)
	active := true
	return readThrough(ctx, s, key, func() ([]entity.Alert, error) {
		alerts, err := s.dao.Find(ctx, dao.AlertFilter{UserID: userID, IsActive: &active}, dao.SortCreatedDesc, 0, 0)
		if err != nil {
			return nil, errors.Wrap(err, ecode.Unknown, "list active alerts")
		}
		if alerts == nil {
			alerts = []entity.Alert{}
		}
		return alerts, nil
	})
}

// Update 只能修改尚未触发的提醒
func (s *AlertService) Update(ctx context.Context, id string, req model.UpdateAlertRequest) (*entity.Alert, error) {
	ctx, span := tracer.Start(ctx, "AlertService.Update")
	defer span.End()

	var patch dao.AlertPatch
	if req.Symbol != nil {
		symbol := utils.NormalizeSymbol(*req.Symbol)
		if symbol == "" {
			return nil, invalid("symbol must not be empty")
		}
		patch.Symbol = &symbol
	}
	if req.TargetPrice != nil {
		if *req.TargetPrice <= 0 {
			return nil, invalid("target_price must be greater than 0")
		}
		patch.TargetPrice = req.TargetPrice
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, invalid("type must be one of ABOVE, BELOW")
		}
		t := string(*req.Type)
		patch.Type = &t
	}
	if req.DurationType != nil {
		if !req.DurationType.Valid() {
			return nil, invalid("duration_type must be one of ONCE, ONE_DAY, CONTINUOUS")
		}
		d := string(*req.DurationType)
		patch.DurationType = &d
		if *req.DurationType == model.DurationOneDay {
			exp := s.now().Add(model.OneDayTTL)
			patch.ExpiresAt = &exp
		} else {
			patch.ClearExpiresAt = true
		}
	}
	patch.IsActive = req.IsActive

	alert, err := s.dao.UpdateIfNotTriggered(ctx, id, patch)
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "update alert")
	}
	if alert == nil {
		return nil, ErrNotFoundOrAlreadyTriggered
	}
	if patch.Symbol != nil {
		s.subscribe(alert.Symbol)
	}
	s.invalidate(ctx, alert.UserID, alert.ID)
	logger.Info("alert updated", logger.Pair("alert_id", id))
	return alert, nil
}

func (s *AlertService) Delete(ctx context.Context, id string) error {
	alert, err := s.dao.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(err, ecode.Unknown, "delete alert")
	}
	if alert == nil {
		return ErrNotFound
	}
	s.invalidate(ctx, alert.UserID, alert.ID)
	logger.Info("alert deleted", logger.Pair("alert_id", id))
	return nil
}

// WatchedSymbols 启动时需要订阅行情的交易对
func (s *AlertService) WatchedSymbols(ctx context.Context) ([]string, error) {
	symbols, err := s.dao.DistinctActiveSymbols(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, ecode.Unknown, "load watched symbols")
	}
	return symbols, nil
}

// ---------- 缓存 ----------

// readThrough 先读缓存，未命中时调用 load 并写回缓存。缓存故障只记录日志
func readThrough[T any](ctx context.Context, s *AlertService, key string, load func() (T, error)) (T, error) {
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.Warn("cache get failed", logger.Pair("key", key), logger.Err(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		logger.Warn("cache entry undecodable, reloading", logger.Pair("key", key))
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			logger.Warn("cache set failed", logger.Pair("key", key), logger.Err(err))
		}
	}
	return v, nil
}

// invalidate 清除用户维度的列表缓存，alertID 非空时同时清除单条缓存
func (s *AlertService) invalidate(ctx context.Context, userID, alertID string) {
	if err := s.cache.InvalidateByUser(ctx, userID); err != nil {
		logger.Warn("cache invalidation failed", logger.Pair("user_id", userID), logger.Err(err))
	}
	if alertID == "" {
		return
	}
	if err := s.cache.InvalidateByKey(ctx, cache.Key(consts.CacheAlertByID, alertID)); err != nil {
		logger.Warn("cache invalidation failed", logger.Pair("alert_id", alertID), logger.Err(err))
	}
}

// ---------- 队列消费 ----------

// HandleAlertCreated 消费新建提醒消息，向通知队列写入 ALERT_CREATED。
// 返回 error 时消息进入死信队列
func (s *AlertService) HandleAlertCreated(ctx context.Context, msg kafka.Message) error {
	var alert entity.Alert
	if err := msg.Decode(&alert); err != nil {
		return fmt.Errorf("decode alert message %s: %w", msg.ID, err)
	}
	if alert.ID == "" || alert.UserID == "" {
		return fmt.Errorf("alert message %s missing id or user_id", msg.ID)
	}
	logger.Info("processing alert", logger.Pair("alert_id", alert.ID), logger.Pair("delivery", msg.Delivery))

	n := model.Notification{
		Kind:        consts.NotificationCreated,
		UserID:      alert.UserID,
		AlertID:     alert.ID,
		Symbol:      alert.Symbol,
		Price:       alert.TargetPrice,
		TargetPrice: alert.TargetPrice,
		Type:        model.AlertType(alert.Type),
		Message:     fmt.Sprintf("Price alert created for %s", alert.Symbol),
		Timestamp:   s.now(),
	}
	return s.publisher.Publish(ctx, kafka.TopicNotifications, alert.UserID, n)
}

// ---------- 过期清理 ----------

// ExpireStale 停用所有已过期的 ONE_DAY 提醒，有变化时清空缓存
func (s *AlertService) ExpireStale(ctx context.Context) (int64, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.dao.DeactivateExpired(sctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AlertsExpiredTotal.Add(float64(n))
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warn("cache clear failed", logger.Err(err))
		}
		logger.Info("expired alerts deactivated", logger.Pair("count", n))
	}
	return n, nil
}

// RunExpirationSweep 启动时执行一次，之后按配置间隔执行，ctx 取消后返回
func (s *AlertService) RunExpirationSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ExpireCheckInterval)
	defer ticker.Stop()
	for {
		if _, err := s.ExpireStale(ctx); err != nil && ctx.Err() == nil {
			logger.Error("error checking expired alerts", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
