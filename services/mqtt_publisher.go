package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"skzb-service/logger"
	"skzb-service/models"
)

const (
	// QoSAtLeastOnce MQTT QoS 1
	QoSAtLeastOnce = 1

	mqttPublishTimeout = 5 * time.Second
)

// MQTTPublisher 把快照摘要作为 retained 消息发布，新订阅者立即拿到最新状态
type MQTTPublisher struct {
	broker   string
	topic    string
	username string
	password string
	client   mqtt.Client
	log      *logger.Logger
}

// NewMQTTPublisher 创建发布器
func NewMQTTPublisher(broker, topic, username, password string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:   broker,
		topic:    topic,
		username: username,
		password: password,
		log:      logger.New("MQTT"),
	}
}

// Connect 连接 broker，断线后由客户端自动重连
func (p *MQTTPublisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetUsername(p.username)
	opts.SetPassword(p.password)
	opts.SetClientID(fmt.Sprintf("skzb_%d", time.Now().UnixNano()))
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.log.Printf("Connected to %s", p.broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.log.Errorf("Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect: %w", token.Error())
	}
	p.client = client
	return nil
}

// IsConnected 是否已连接
func (p *MQTTPublisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

// OnSnapshot 发布快照摘要
func (p *MQTTPublisher) OnSnapshot(ctx context.Context, snap models.Snapshot) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(NewSnapshotEvent(snap, false))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := p.client.Publish(p.topic, QoSAtLeastOnce, true, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() error {
	if p.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
