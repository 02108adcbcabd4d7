package kafka

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"pricewatch/pkg/errors"
	"pricewatch/pkg/errors/ecode"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
)

// Publish 序列化 payload 并持久化写入 topic。
// payload 为 []byte 时原样写入，其余类型按 JSON 编码
func (c *Client) Publish(ctx context.Context, topic, key string, payload any) error {
	c.mu.Lock()
	closed, writer := c.closed, c.writer
	c.mu.Unlock()
	if closed || writer == nil {
		return ErrChannelUnavailable
	}

	value, ok := payload.([]byte)
	if !ok {
		var err error
		if value, err = json.Marshal(payload); err != nil {
			return errors.Wrap(err, ecode.PublishErr, "encode message for %s", topic)
		}
	}

	now := c.now()
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: HeaderMessageID, Value: []byte(c.node.Generate().String())},
		},
	}
	if c.cfg.MessageTTL > 0 {
		expiresAt := now.Add(c.cfg.MessageTTL).UnixMilli()
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderExpiresAt, Value: []byte(strconv.FormatInt(expiresAt, 10))})
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		logger.Error("kafka publish failed", logger.Pair("topic", topic), logger.Pair("key", key), logger.Err(err))
		return errors.Wrap(err, ecode.PublishErr, "publish to %s failed", topic)
	}
	metrics.QueuePublishedTotal.WithLabelValues(topic).Inc()
	return nil
}

// deadLetter 把消息转入死信 topic，保留原有 header
func (c *Client) deadLetter(ctx context.Context, m kafka.Message, reason string) error {
	headers := make([]kafka.Header, 0, len(m.Headers)+3)
	for _, h := range m.Headers {
		if h.Key == HeaderDeadLetterReason {
			continue
		}
		headers = append(headers, h)
	}
	headers = append(headers,
		kafka.Header{Key: HeaderDeadLetterReason, Value: []byte(reason)},
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(m.Topic)},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.Itoa(m.Partition) + ":" + strconv.FormatInt(m.Offset, 10))},
	)

	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()

	err := writer.WriteMessages(ctx, kafka.Message{
		Topic:   TopicDeadLetter,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    c.now(),
	})
	if err != nil {
		return err
	}
	metrics.QueueDeadLetteredTotal.WithLabelValues(reason).Inc()
	logger.Warn("message dead-lettered",
		logger.Pair("topic", m.Topic),
		logger.Pair("partition", m.Partition),
		logger.Pair("offset", m.Offset),
		logger.Pair("reason", reason))
	return nil
}
