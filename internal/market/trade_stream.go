package market

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"pricewatch/conf"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
)

// DefaultChunkSize 单个连接最多订阅的交易对数量
const DefaultChunkSize = 200

// PriceHandler 接收去重后的最新成交价
type PriceHandler interface {
	OnPrice(ctx context.Context, symbol string, price float64)
}

// tradeEvent 逐笔成交推送，只解析用到的字段
type tradeEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

// TradeStream 管理行情 websocket 连接。
// 订阅集合每变化一次就整体重建所有连接；任一连接出错只安排一次延迟重建，
// 旧一代连接的错误不会再触发重建
type TradeStream struct {
	baseURL        string
	chunkSize      int
	reconnectDelay time.Duration
	readTimeout    time.Duration
	handler        PriceHandler
	dialer         *websocket.Dialer
	limiter        *rate.Limiter

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	symbols    map[string]struct{}
	conns      []*websocket.Conn
	generation uint64
	reconnect  *time.Timer
	closed     bool

	priceMu   sync.Mutex
	lastPrice map[string]float64
}

func NewTradeStream(cfg conf.StreamConfig, handler PriceHandler) *TradeStream {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = time.Minute
	}
	limit := rate.Inf
	if cfg.DialRate > 0 {
		limit = rate.Limit(cfg.DialRate)
	}
	return &TradeStream{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		chunkSize:      chunk,
		reconnectDelay: delay,
		readTimeout:    readTimeout,
		handler:        handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		limiter:   rate.NewLimiter(limit, 1),
		symbols:   make(map[string]struct{}),
		lastPrice: make(map[string]float64),
	}
}

// StreamURL 拼接逐笔成交订阅地址：<base>/ws/btcusdt@trade/ethusdt@trade
func StreamURL(base string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, s+"@trade")
	}
	return base + "/ws/" + strings.Join(streams, "/")
}

// Chunk 按 size 切分交易对
func Chunk(symbols []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}

// Start 载入启动时需要监听的交易对并建立连接
func (s *TradeStream) Start(ctx context.Context, symbols []string) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, sym := range symbols {
		if sym = strings.ToLower(strings.TrimSpace(sym)); sym != "" {
			s.symbols[sym] = struct{}{}
		}
	}
	n := len(s.symbols)
	s.mu.Unlock()

	logger.Info("trade stream starting", logger.Pair("symbols", n))
	s.rebuild()
}

// Subscribe 加入新的交易对，已存在时什么也不做。返回是否为新增
func (s *TradeStream) Subscribe(symbol string) bool {
	sym := strings.ToLower(strings.TrimSpace(symbol))
	if sym == "" {
		return false
	}
	s.mu.Lock()
	if _, ok := s.symbols[sym]; ok {
		s.mu.Unlock()
		return false
	}
	s.symbols[sym] = struct{}{}
	started := s.ctx != nil && !s.closed
	s.mu.Unlock()

	logger.Info("new symbol subscribed", logger.Pair("symbol", sym))
	if started {
		go s.rebuild()
	}
	return true
}

// Symbols 当前订阅的交易对（小写，已排序）
func (s *TradeStream) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedSymbolsLocked()
}

func (s *TradeStream) sortedSymbolsLocked() []string {
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ConnectionCount 当前存活的连接数
func (s *TradeStream) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// rebuild 关闭所有连接，按当前订阅集合重新建立
func (s *TradeStream) rebuild() {
	s.mu.Lock()
	if s.closed || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	old := s.conns
	s.conns = nil
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	symbols := s.sortedSymbolsLocked()
	ctx := s.ctx
	s.mu.Unlock()

	for _, c := range old {
		_ = c.Close()
	}
	metrics.StreamConnections.Set(0)
	if len(symbols) == 0 {
		logger.Info("no symbols to watch, trade stream idle")
		return
	}

	for i, chunk := range Chunk(symbols, s.chunkSize) {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		conn, _, err := s.dialer.DialContext(ctx, StreamURL(s.baseURL, chunk), nil)
		if err != nil {
			logger.Warn("trade stream dial failed", logger.Pair("chunk", i), logger.Err(err))
			s.scheduleReconnect(gen)
			return
		}

		s.mu.Lock()
		if s.closed || s.generation != gen {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		metrics.StreamConnections.Set(float64(len(s.conns)))
		s.mu.Unlock()

		logger.Info("trade stream connected", logger.Pair("chunk", i), logger.Pair("symbols", len(chunk)))
		go s.readLoop(ctx, conn, gen)
	}
}

// scheduleReconnect 安排一次延迟重建；已有待执行的重建或连接属于旧一代时忽略
func (s *TradeStream) scheduleReconnect(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation || s.reconnect != nil {
		return
	}
	logger.Info("trade stream reconnect scheduled", logger.Pair("delay", s.reconnectDelay.String()))
	s.reconnect = time.AfterFunc(s.reconnectDelay, func() {
		metrics.StreamReconnects.Inc()
		s.rebuild()
	})
}

// readLoop 读取推送直到出错。任何数据帧或控制帧都会顺延读超时，
// 超时说明链路已失效（半开连接），同样进入重连
func (s *TradeStream) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	done := make(chan struct{})
	defer close(done)

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		if e, ok := err.(net.Error); ok && e.Timeout() {
			return nil
		}
		return err
	})
	go s.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("trade stream read failed", logger.Err(err))
			}
			s.scheduleReconnect(gen)
			return
		}
		extend()
		s.handleMessage(ctx, data)
	}
}

// pingLoop 每半个读超时发送一次 ping，对端回 pong 时顺延读超时
func (s *TradeStream) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.readTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *TradeStream) handleMessage(ctx context.Context, data []byte) {
	var ev tradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		metrics.TicksTotal.WithLabelValues("invalid").Inc()
		logger.Debug("unparseable trade message", logger.Err(err))
		return
	}
	if ev.Event != "trade" || ev.Symbol == "" {
		return
	}
	price, err := cast.ToFloat64E(ev.Price)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("invalid").Inc()
		return
	}
	metrics.TicksTotal.WithLabelValues("received").Inc()

	symbol := strings.ToUpper(ev.Symbol)
	if !s.recordPrice(symbol, price) {
		metrics.TicksTotal.WithLabelValues("duplicate").Inc()
		return
	}
	metrics.TicksTotal.WithLabelValues("forwarded").Inc()
	go s.handler.OnPrice(ctx, symbol, price)
}

// recordPrice 价格与上次转发的相同返回 false
func (s *TradeStream) recordPrice(symbol string, price float64) bool {
	s.priceMu.Lock()
	defer s.priceMu.Unlock()
	if last, ok := s.lastPrice[symbol]; ok && last == price {
		return false
	}
	s.lastPrice[symbol] = price
	return true
}

// Close 关闭所有连接并取消待执行的重建
func (s *TradeStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	metrics.StreamConnections.Set(0)
	logger.Info("trade stream closed")
	return nil
}
