package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pricewatch/conf"
	"pricewatch/internal/dao"
	"pricewatch/internal/dao/memory"
	"pricewatch/internal/model"
	"pricewatch/internal/model/entity"
	"pricewatch/pkg/cache"
	"pricewatch/pkg/kafka"
)

type published struct {
	topic   string
	key     string
	payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, payload: payload})
	return nil
}

func (p *fakePublisher) notifications() []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Notification
	for _, m := range p.msgs {
		if n, ok := m.payload.(model.Notification); ok && m.topic == kafka.TopicNotifications {
			out = append(out, n)
		}
	}
	return out
}

type fakeSubscriber struct {
	mu      sync.Mutex
	symbols []string
}

func (f *fakeSubscriber) Subscribe(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = append(f.symbols, symbol)
	return true
}

type fixture struct {
	svc   *AlertService
	dao   *memory.AlertDAO
	pub   *fakePublisher
	sub   *fakeSubscriber
	cache *cache.MemoryStore
	now   time.Time
}

func newFixture(t *testing.T, cfg conf.AlertConfig) *fixture {
	t.Helper()
	f := &fixture{
		dao:   memory.NewAlertDAO(),
		pub:   &fakePublisher{},
		sub:   &fakeSubscriber{},
		cache: cache.NewMemoryStore(time.Minute),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewAlertService(f.dao, f.cache, f.pub, cfg, time.Minute)
	f.svc.SetSubscriber(f.sub)
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) create(t *testing.T, typ model.AlertType, target float64, d model.DurationType) *entity.Alert {
	t.Helper()
	a, err := f.svc.Create(context.Background(), model.CreateAlertRequest{
		UserID:       "user-1",
		Symbol:       "btcusdt",
		TargetPrice:  target,
		Type:         typ,
		DurationType: d,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return a
}

func (f *fixture) get(t *testing.T, id string) *entity.Alert {
	t.Helper()
	a, err := f.dao.FindByID(context.Background(), id)
	if err != nil || a == nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return a
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()
	cases := []model.CreateAlertRequest{
		{Symbol: "BTCUSDT", TargetPrice: 1, Type: model.AlertAbove},
		{UserID: "u", TargetPrice: 1, Type: model.AlertAbove},
		{UserID: "u", Symbol: "BTCUSDT", TargetPrice: 0, Type: model.AlertAbove},
		{UserID: "u", Symbol: "BTCUSDT", TargetPrice: 1, Type: "SIDEWAYS"},
		{UserID: "u", Symbol: "BTCUSDT", TargetPrice: 1, Type: model.AlertBelow, DurationType: "FOREVER"},
	}
	for i, req := range cases {
		if _, err := f.svc.Create(ctx, req); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestCreatePublishesAndSubscribes(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	a := f.create(t, model.AlertAbove, 50000, "")

	if a.Symbol != "BTCUSDT" || a.DurationType != string(model.DurationOnce) || !a.IsActive {
		t.Fatalf("unexpected alert %+v", a)
	}
	if len(f.pub.msgs) != 1 || f.pub.msgs[0].topic != kafka.TopicPriceAlerts {
		t.Fatalf("expected one intake message, got %+v", f.pub.msgs)
	}
	if len(f.sub.symbols) != 1 || f.sub.symbols[0] != "BTCUSDT" {
		t.Fatalf("symbol should be subscribed, got %v", f.sub.symbols)
	}
}

func TestCreatePublishFailureKeepsAlert(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	f.pub.err = kafka.ErrChannelUnavailable

	a, err := f.svc.Create(context.Background(), model.CreateAlertRequest{
		UserID: "user-1", Symbol: "ETHUSDT", TargetPrice: 3000, Type: model.AlertBelow,
	})
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	if a == nil || f.get(t, a.ID) == nil {
		t.Fatalf("alert should stay persisted")
	}
}

// 49000 不触发，50500 触发一次并发出一条通知，之后的价格不再触发
func TestTriggerOnceAcrossTicks(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()
	a := f.create(t, model.AlertAbove, 50000, model.DurationOnce)

	f.svc.OnPrice(ctx, "BTCUSDT", 49000)
	if got := f.get(t, a.ID); got.IsThresholdPassed || got.TriggerCount != 0 {
		t.Fatalf("49000 must not trigger: %+v", got)
	}

	f.svc.OnPrice(ctx, "BTCUSDT", 50500)
	f.svc.OnPrice(ctx, "BTCUSDT", 51000)

	got := f.get(t, a.ID)
	if !got.IsThresholdPassed || got.TriggerCount != 1 || got.IsActive || got.LastPrice != 50500 {
		t.Fatalf("unexpected state after trigger: %+v", got)
	}
	notes := f.pub.notifications()
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
	if notes[0].AlertID != a.ID || notes[0].Price != 50500 || notes[0].TriggeredAt == nil {
		t.Fatalf("unexpected notification %+v", notes[0])
	}
}

func TestConcurrentPassesTriggerOnce(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	a := f.create(t, model.AlertBelow, 100, model.DurationContinuous)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 绕过交易对互斥，直接并发执行匹配
			f.svc.matchAndTrigger(context.Background(), "BTCUSDT", 90)
		}()
	}
	wg.Wait()

	if got := f.get(t, a.ID); got.TriggerCount != 1 {
		t.Fatalf("expected trigger_count 1, got %d", got.TriggerCount)
	}
	if n := len(f.pub.notifications()); n != 1 {
		t.Fatalf("expected one notification, got %d", n)
	}
}

func TestInflightSymbolDropsTick(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	a := f.create(t, model.AlertAbove, 10, model.DurationOnce)

	if !f.svc.acquire("BTCUSDT") {
		t.Fatalf("acquire should succeed")
	}
	f.svc.OnPrice(context.Background(), "BTCUSDT", 20)
	if f.get(t, a.ID).IsThresholdPassed {
		t.Fatalf("tick should be dropped while a pass is in flight")
	}
	f.svc.release("BTCUSDT")

	f.svc.OnPrice(context.Background(), "BTCUSDT", 20)
	if !f.get(t, a.ID).IsThresholdPassed {
		t.Fatalf("tick should trigger once the guard is released")
	}
}

func TestDurationPolicy(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	once := f.create(t, model.AlertAbove, 100, model.DurationOnce)
	day := f.create(t, model.AlertAbove, 100, model.DurationOneDay)
	cont := f.create(t, model.AlertAbove, 100, model.DurationContinuous)

	f.svc.OnPrice(context.Background(), "BTCUSDT", 150)

	if got := f.get(t, once.ID); got.IsActive || got.ExpiresAt != nil {
		t.Fatalf("ONCE should be deactivated without expiry: %+v", got)
	}
	got := f.get(t, day.ID)
	if !got.IsActive || got.ExpiresAt == nil || !got.ExpiresAt.Equal(f.now.Add(24*time.Hour)) {
		t.Fatalf("ONE_DAY should stay active and expire in 24h: %+v", got)
	}
	if got := f.get(t, cont.ID); !got.IsActive || got.ExpiresAt != nil || !got.IsThresholdPassed {
		t.Fatalf("CONTINUOUS should stay active without expiry: %+v", got)
	}
}

// ONE_DAY 触发后 25 小时执行过期清理，提醒被停用
func TestOneDayExpiresAfterSweep(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()
	a := f.create(t, model.AlertAbove, 100, model.DurationOneDay)
	f.svc.OnPrice(ctx, "BTCUSDT", 101)

	// 预先写入一条缓存，清理后应被清空
	if _, err := f.svc.GetActiveByUser(ctx, "user-1"); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(25 * time.Hour)
	n, err := f.svc.ExpireStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 expired alert, got %d %v", n, err)
	}
	if f.get(t, a.ID).IsActive {
		t.Fatalf("alert should be inactive after sweep")
	}
	if f.cache.Len() != 0 {
		t.Fatalf("cache should be cleared after expiring alerts")
	}
	active, _ := f.svc.GetActiveByUser(ctx, "user-1")
	if len(active) != 0 {
		t.Fatalf("no active alerts expected, got %d", len(active))
	}
}

type countingDAO struct {
	dao.AlertDAO
	mu      sync.Mutex
	batches []int
}

func (c *countingDAO) Find(ctx context.Context, f dao.AlertFilter, s dao.AlertSort, skip, limit int) ([]entity.Alert, error) {
	out, err := c.AlertDAO.Find(ctx, f, s, skip, limit)
	c.mu.Lock()
	c.batches = append(c.batches, len(out))
	c.mu.Unlock()
	return out, err
}

func TestMatchVisitsEveryAlertInBatches(t *testing.T) {
	mem := memory.NewAlertDAO()
	counting := &countingDAO{AlertDAO: mem}
	pub := &fakePublisher{}
	svc := NewAlertService(counting, cache.NewMemoryStore(0), pub, conf.AlertConfig{BatchSize: 100}, 0)

	ctx := context.Background()
	for i := 0; i < 250; i++ {
		_, err := svc.Create(ctx, model.CreateAlertRequest{
			UserID: "u", Symbol: "SOLUSDT", TargetPrice: 10, Type: model.AlertAbove,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	counting.batches = nil

	if n := svc.matchAndTrigger(ctx, "SOLUSDT", 11); n != 250 {
		t.Fatalf("expected 250 triggered, got %d", n)
	}
	want := []int{100, 100, 50}
	if len(counting.batches) != len(want) {
		t.Fatalf("expected batches %v, got %v", want, counting.batches)
	}
	for i := range want {
		if counting.batches[i] != want[i] {
			t.Fatalf("expected batches %v, got %v", want, counting.batches)
		}
	}
}

func TestCacheReflectsWrites(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()
	a := f.create(t, model.AlertAbove, 100, model.DurationOnce)

	list, _ := f.svc.GetByUser(ctx, "user-1", 1, 20)
	if len(list) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(list))
	}
	if _, err := f.svc.GetByID(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	f.create(t, model.AlertBelow, 50, model.DurationOnce)
	list, _ = f.svc.GetByUser(ctx, "user-1", 1, 20)
	if len(list) != 2 {
		t.Fatalf("listing should include the new alert, got %d", len(list))
	}

	price := 200.0
	if _, err := f.svc.Update(ctx, a.ID, model.UpdateAlertRequest{TargetPrice: &price}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.svc.GetByID(ctx, a.ID)
	if got.TargetPrice != 200 {
		t.Fatalf("GetByID should see the update, got %v", got.TargetPrice)
	}

	if err := f.svc.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()
	a := f.create(t, model.AlertAbove, 100, model.DurationOnce)

	day := model.DurationOneDay
	sym := "eth/usdt"
	got, err := f.svc.Update(ctx, a.ID, model.UpdateAlertRequest{DurationType: &day, Symbol: &sym})
	if err != nil {
		t.Fatal(err)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(f.now.Add(24*time.Hour)) || got.Symbol != "ETHUSDT" {
		t.Fatalf("unexpected alert after update %+v", got)
	}
	if last := f.sub.symbols[len(f.sub.symbols)-1]; last != "ETHUSDT" {
		t.Fatalf("new symbol should be subscribed, got %s", last)
	}

	cont := model.DurationContinuous
	got, _ = f.svc.Update(ctx, a.ID, model.UpdateAlertRequest{DurationType: &cont})
	if got.ExpiresAt != nil {
		t.Fatalf("non ONE_DAY duration should clear expires_at")
	}

	bad := model.AlertType("UP")
	if _, err := f.svc.Update(ctx, a.ID, model.UpdateAlertRequest{Type: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	f.svc.OnPrice(ctx, "ETHUSDT", 150)
	price := 1.0
	if _, err := f.svc.Update(ctx, a.ID, model.UpdateAlertRequest{TargetPrice: &price}); !errors.Is(err, ErrNotFoundOrAlreadyTriggered) {
		t.Fatalf("expected ErrNotFoundOrAlreadyTriggered, got %v", err)
	}
	if _, err := f.svc.Update(ctx, "missing", model.UpdateAlertRequest{TargetPrice: &price}); !errors.Is(err, ErrNotFoundOrAlreadyTriggered) {
		t.Fatalf("expected ErrNotFoundOrAlreadyTriggered for missing alert, got %v", err)
	}
	if err := f.svc.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRearmDisabledByDefault(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()
	a := f.create(t, model.AlertAbove, 100, model.DurationContinuous)

	f.svc.OnPrice(ctx, "BTCUSDT", 110)
	f.svc.OnPrice(ctx, "BTCUSDT", 90)
	f.svc.OnPrice(ctx, "BTCUSDT", 120)

	if got := f.get(t, a.ID); got.TriggerCount != 1 || !got.IsThresholdPassed {
		t.Fatalf("alert should fire only once without rearm: %+v", got)
	}
}

func TestRearmOnRecross(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{RearmOnRecross: true})
	ctx := context.Background()
	cont := f.create(t, model.AlertAbove, 100, model.DurationContinuous)
	once := f.create(t, model.AlertBelow, 100, model.DurationOnce)

	f.svc.OnPrice(ctx, "BTCUSDT", 110) // cont 触发
	f.svc.OnPrice(ctx, "BTCUSDT", 90)  // cont 重新激活，once 触发
	if got := f.get(t, cont.ID); got.IsThresholdPassed {
		t.Fatalf("continuous alert should be rearmed after recross: %+v", got)
	}
	f.svc.OnPrice(ctx, "BTCUSDT", 120)
	if got := f.get(t, cont.ID); got.TriggerCount != 2 {
		t.Fatalf("continuous alert should fire again, count=%d", got.TriggerCount)
	}
	if got := f.get(t, once.ID); got.TriggerCount != 1 || got.IsActive {
		t.Fatalf("ONCE alert must not be rearmed: %+v", got)
	}
}

func TestWatchedSymbols(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	f.create(t, model.AlertAbove, 100, model.DurationOnce)
	syms, err := f.svc.WatchedSymbols(context.Background())
	if err != nil || len(syms) != 1 || syms[0] != "BTCUSDT" {
		t.Fatalf("unexpected watched symbols %v %v", syms, err)
	}
}

func TestHandleAlertCreated(t *testing.T) {
	f := newFixture(t, conf.AlertConfig{})
	ctx := context.Background()

	msg := kafka.Message{ID: "1", Value: []byte(`{"id":"a1","user_id":"u1","symbol":"BTCUSDT","target_price":5,"type":"ABOVE"}`)}
	if err := f.svc.HandleAlertCreated(ctx, msg); err != nil {
		t.Fatal(err)
	}
	notes := f.pub.notifications()
	if len(notes) != 1 || notes[0].Kind != "ALERT_CREATED" || notes[0].AlertID != "a1" {
		t.Fatalf("unexpected notifications %+v", notes)
	}

	if err := f.svc.HandleAlertCreated(ctx, kafka.Message{Value: []byte(`{`)}); err == nil {
		t.Fatalf("malformed message should be rejected")
	}
	if err := f.svc.HandleAlertCreated(ctx, kafka.Message{Value: []byte(`{"symbol":"X"}`)}); err == nil {
		t.Fatalf("message without ids should be rejected")
	}
}
