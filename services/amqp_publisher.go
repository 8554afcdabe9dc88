package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"skzb-service/logger"
	"skzb-service/models"
)

// AMQPPublisher 将快照刷新事件发布到 fanout exchange
type AMQPPublisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *logger.Logger
}

// NewAMQPPublisher 创建发布器，首次发布时建立连接
func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		log:      logger.New("AMQP"),
	}
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = ch
	p.log.Printf("Connected, exchange: %s", p.exchange)
	return nil
}

// OnSnapshot 发布事件；连接断开后下次发布自动重连
func (p *AMQPPublisher) OnSnapshot(ctx context.Context, snap models.Snapshot) error {
	body, err := json.Marshal(NewSnapshotEvent(snap, true))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, RoutingKey(snap), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Unix(snap.LastFetch, 0),
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// Close 关闭连接
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
