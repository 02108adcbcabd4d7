package kafka

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cast"

	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/utils"
)

// Message 交给业务处理函数的消息
type Message struct {
	ID       string
	Topic    string
	Key      string
	Value    []byte
	Headers  map[string]string
	Time     time.Time
	Delivery int
}

func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Value, v)
}

// Handler 返回 error 表示拒绝该消息（不重新入队，进入死信队列）
type Handler func(ctx context.Context, msg Message) error

// Consume 阻塞消费 topic，每次只处理一条消息（prefetch = 1）：
// 取一条、处理、提交，再取下一条。
// ctx 取消或客户端关闭时返回 nil；重连次数耗尽返回 ErrReconnectExhausted
func (c *Client) Consume(ctx context.Context, topic, groupID string, handler Handler) error {
	if c.isClosed() {
		return ErrChannelUnavailable
	}
	reader := c.newReader(topic, groupID)
	if !c.track(reader) {
		_ = reader.Close()
		return ErrChannelUnavailable
	}
	logger.Info("kafka consumer started", logger.Pair("topic", topic), logger.Pair("group", groupID))

	for {
		m, err := c.fetch(ctx, reader)
		if err == nil {
			err = c.dispatch(ctx, reader, m, handler)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil || c.isClosed() {
			c.untrack(reader)
			_ = reader.Close()
			logger.Info("kafka consumer stopped", logger.Pair("topic", topic))
			return nil
		}

		reader, err = c.reconnect(ctx, reader, topic, groupID, err)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return nil
			}
			logger.Error("kafka consumer gave up", logger.Pair("topic", topic), logger.Err(err))
			if c.onFatal != nil {
				c.onFatal(err)
			}
			return err
		}
	}
}

// fetch 按 HealthInterval 分段等待下一条消息。kafka-go 的消费组 Reader 在 broker 不可达时
// 只会在内部重试并一直阻塞，所以每次空闲超时都探测一次 broker，探测失败按连接断开处理
func (c *Client) fetch(ctx context.Context, reader Reader) (kafka.Message, error) {
	for {
		fctx, cancel := context.WithTimeout(ctx, c.cfg.HealthInterval)
		m, err := reader.FetchMessage(fctx)
		cancel()
		if err == nil || ctx.Err() != nil || !stderrors.Is(err, context.DeadlineExceeded) {
			return m, err
		}
		if derr := c.dial(ctx); derr != nil {
			return kafka.Message{}, fmt.Errorf("broker health check: %w", derr)
		}
	}
}

// dispatch 处理单条消息。只有与 broker 交互失败（写死信、提交）才返回 error，
// 此时消息未提交，重连后会再次投递
func (c *Client) dispatch(ctx context.Context, reader Reader, m kafka.Message, handler Handler) error {
	key := deliveryKey{topic: m.Topic, partition: m.Partition, offset: m.Offset}
	n := c.markDelivery(key)

	msg := toMessage(m, n)
	switch {
	case n > c.cfg.MaxDeliveries:
		if err := c.deadLetter(ctx, m, ReasonMaxDeliveries); err != nil {
			return err
		}
	case c.expired(msg):
		if err := c.deadLetter(ctx, m, ReasonExpired); err != nil {
			return err
		}
	default:
		if herr := handler(ctx, msg); herr != nil {
			logger.Warn("message rejected by handler",
				logger.Pair("topic", m.Topic),
				logger.Pair("id", msg.ID),
				logger.Err(herr))
			if err := c.deadLetter(ctx, m, ReasonRejected); err != nil {
				return err
			}
		}
	}

	if err := reader.CommitMessages(ctx, m); err != nil {
		return err
	}
	c.forgetDelivery(key)
	return nil
}

func (c *Client) expired(m Message) bool {
	v, ok := m.Headers[HeaderExpiresAt]
	if !ok {
		return false
	}
	ms, err := cast.ToInt64E(v)
	if err != nil {
		return false
	}
	return c.now().UnixMilli() > ms
}

func toMessage(m kafka.Message, delivery int) Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		ID:       headers[HeaderMessageID],
		Topic:    m.Topic,
		Key:      string(m.Key),
		Value:    m.Value,
		Headers:  headers,
		Time:     m.Time,
		Delivery: delivery,
	}
}

func (c *Client) markDelivery(k deliveryKey) int {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.deliveries[k]++
	return c.deliveries[k]
}

func (c *Client) forgetDelivery(k deliveryKey) {
	c.dmu.Lock()
	delete(c.deliveries, k)
	c.dmu.Unlock()
}

// reconnect 关闭旧 Reader，按指数退避重建连接
func (c *Client) reconnect(ctx context.Context, old Reader, topic, groupID string, cause error) (Reader, error) {
	c.untrack(old)
	_ = old.Close()
	logger.Warn("kafka connection lost, reconnecting", logger.Pair("topic", topic), logger.Err(cause))

	var reader Reader
	err := utils.Retry(ctx, c.cfg.ReconnectAttempts, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, func(attempt int) error {
		metrics.QueueReconnectsTotal.Inc()
		if c.isClosed() {
			return ErrChannelUnavailable
		}
		if err := c.dial(ctx); err != nil {
			logger.Warn("kafka reconnect attempt failed", logger.Pair("topic", topic), logger.Pair("attempt", attempt), logger.Err(err))
			return err
		}
		reader = c.newReader(topic, groupID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
	}
	if !c.track(reader) {
		_ = reader.Close()
		return nil, ErrChannelUnavailable
	}
	logger.Info("kafka consumer reconnected", logger.Pair("topic", topic))
	return reader, nil
}
