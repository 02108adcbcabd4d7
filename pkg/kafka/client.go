// Package kafka 持久化消息队列客户端。
//
// 队列语义映射到 Kafka：一个持久队列对应一个 topic，写入使用 RequireAll 确认；
// 死信队列是 dead_letter_queue topic，x-dead-letter-reason 头记录原因；
// 每条消息带 x-expires-at 头，消费时已过期的消息直接进入死信队列。
package kafka

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"pricewatch/conf"
	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
	"pricewatch/pkg/logger"
)

const (
	TopicPriceAlerts   = "price_alerts"
	TopicNotifications = "notifications"
	TopicDeadLetter    = "dead_letter_queue"
)

const (
	HeaderMessageID        = "x-message-id"
	HeaderExpiresAt        = "x-expires-at"
	HeaderDeadLetterReason = "x-dead-letter-reason"
	HeaderOriginalTopic    = "x-original-topic"
	HeaderOriginalOffset   = "x-original-offset"
)

// 死信原因
const (
	ReasonExpired       = "expired"
	ReasonRejected      = "rejected"
	ReasonMaxDeliveries = "max-deliveries"
)

var (
	ErrPublishFailed      = errors.WithCode(ecode.PublishErr, "publish failed")
	ErrChannelUnavailable = errors.WithCode(ecode.ChannelUnavailableErr, "channel unavailable")
	ErrReconnectExhausted = stderrors.New("kafka: reconnect attempts exhausted")
)

// Reader kafka.Reader 中用到的方法
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer kafka.Writer 中用到的方法
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Option func(*Client)

// WithReaderFactory 替换 Reader 的创建方式
func WithReaderFactory(f func(topic, groupID string) Reader) Option {
	return func(c *Client) { c.newReader = f }
}

func WithWriter(w Writer) Option {
	return func(c *Client) { c.writer = w }
}

// WithDialer 替换重连时的连通性检查
func WithDialer(f func(ctx context.Context) error) Option {
	return func(c *Client) { c.dial = f }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithFatalHandler 重连次数耗尽时回调，进程通常在这里退出
func WithFatalHandler(f func(error)) Option {
	return func(c *Client) { c.onFatal = f }
}

type deliveryKey struct {
	topic     string
	partition int
	offset    int64
}

type Client struct {
	cfg     conf.KafkaConfig
	brokers []string
	node    *snowflake.Node

	newReader func(topic, groupID string) Reader
	dial      func(ctx context.Context) error
	now       func() time.Time
	onFatal   func(error)

	mu      sync.Mutex
	writer  Writer
	readers map[Reader]struct{}
	closed  bool

	dmu        sync.Mutex
	deliveries map[deliveryKey]int
}

func NewClient(cfg conf.KafkaConfig, opts ...Option) (*Client, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 3
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 10 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		brokers:    splitBrokers(cfg.Broker),
		node:       node,
		now:        time.Now,
		readers:    make(map[Reader]struct{}),
		deliveries: make(map[deliveryKey]int),
	}
	c.newReader = c.defaultReader
	c.dial = c.ping
	for _, opt := range opts {
		opt(c)
	}
	if c.writer == nil {
		c.writer = &kafka.Writer{
			Addr:                   kafka.TCP(c.brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		}
	}
	return c, nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Client) defaultReader(topic, groupID string) Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
		// CommitInterval 为 0：同步提交，处理完一条才提交一条
		CommitInterval: 0,
	})
}

func (c *Client) ping(ctx context.Context) error {
	var errs error
	for _, b := range c.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	if errs == nil {
		errs = stderrors.New("no broker configured")
	}
	return errs
}

// Ping 检查 broker 是否可达
func (c *Client) Ping(ctx context.Context) error {
	return c.dial(ctx)
}

// EnsureTopics 创建业务 topic 与死信 topic（已存在时忽略）
func (c *Client) EnsureTopics(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		topics = []string{TopicPriceAlerts, TopicNotifications, TopicDeadLetter}
	}
	if len(c.brokers) == 0 {
		return stderrors.New("no broker configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", c.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := ctrl.CreateTopics(configs...); err != nil && !stderrors.Is(err, kafka.TopicAlreadyExists) {
		return err
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) track(r Reader) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.readers[r] = struct{}{}
	return true
}

func (c *Client) untrack(r Reader) {
	c.mu.Lock()
	delete(c.readers, r)
	c.mu.Unlock()
}

// Close 先关闭所有 Reader 再关闭 Writer，可重复调用
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	readers := make([]Reader, 0, len(c.readers))
	for r := range c.readers {
		readers = append(readers, r)
	}
	c.readers = make(map[Reader]struct{})
	writer := c.writer
	c.mu.Unlock()

	var err error
	for _, r := range readers {
		err = multierr.Append(err, r.Close())
	}
	if writer != nil {
		err = multierr.Append(err, writer.Close())
	}
	if err != nil {
		logger.Warn("kafka client closed with errors", logger.Err(err))
	}
	return err
}
