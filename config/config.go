package config

import (
	"os"
	"strings"
)

const (
	// ServiceName 服务名称
	ServiceName = "SKZB体育直播API"

	// Version 服务版本
	Version = "2.0"
)

type Config struct {
	// 服务器配置
	Port string

	// 其他配置
	Environment string

	// 联赛/平台规则文件（为空则使用内置规则）
	RulesFile string

	// 快照归档（可选）
	DatabaseURL string

	// 飞书告警（可选）
	LarkWebhook string

	// AMQP 发布（可选）
	AMQPURL      string
	AMQPExchange string

	// MQTT 发布（可选）
	MQTTBroker   string
	MQTTTopic    string
	MQTTUsername string
	MQTTPassword string
}

func Load() *Config {
	return &Config{
		// Render/Vercel 等平台通过 PORT 注入端口
		Port: getEnv("PORT", "5000"),

		Environment: getEnv("ENVIRONMENT", "development"),
		RulesFile:   getEnv("RULES_FILE", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		LarkWebhook: getEnv("LARK_WEBHOOK_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "skzb.matches"),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "skzb/matches"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
	}
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}
