package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"skzb-service/config"
	"skzb-service/database"
	"skzb-service/logger"
	"skzb-service/scraper"
	"skzb-service/services"
	"skzb-service/web"
)

func main() {
	logger.Println("Starting SKZB sports live service...")

	// 加载配置
	cfg := config.Load()

	rules := scraper.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := scraper.LoadRules(cfg.RulesFile)
		if err != nil {
			logger.Fatalf("Failed to load rules: %v", err)
		}
		rules = loaded
		logger.Printf("Loaded rules from %s", cfg.RulesFile)
	}

	fetcher := scraper.NewFetcher()
	pipeline := scraper.NewPipeline(fetcher, rules)

	metrics := services.NewMetrics()
	cache := services.NewMatchCache(pipeline, services.CacheDuration)
	cache.SetMetrics(metrics)

	// 飞书告警
	larkNotifier := services.NewLarkNotifier(cfg.LarkWebhook)
	if larkNotifier.Enabled() {
		cache.SetAlerter(larkNotifier)
	}

	server := web.NewServer(cfg, cache, fetcher)
	server.SetMetrics(metrics)

	// WebSocket 推送
	hub := web.NewHub()
	go hub.Run()
	cache.AddObserver(hub)
	server.SetHistory(database.NewSnapshotArchive(nil))
	server.SetHub(hub)

	// 快照归档（可选）
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Errorf("Failed to connect to database, archive disabled: %v", err)
		} else {
			defer db.Close()
			if err := database.Migrate(db); err != nil {
				logger.Fatalf("Failed to migrate database: %v", err)
			}
			archive := database.NewSnapshotArchive(db)
			cache.AddObserver(archive)
			server.SetHistory(archive)
			logger.Println("Database connected and migrated")
		}
	}

	// AMQP 发布（可选）
	if cfg.AMQPURL != "" {
		amqpPublisher := services.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		defer amqpPublisher.Close()
		cache.AddObserver(amqpPublisher)
		logger.Printf("AMQP publisher enabled (exchange=%s)", cfg.AMQPExchange)
	}

	// MQTT 发布（可选）
	if cfg.MQTTBroker != "" {
		mqttPublisher := services.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTTopic, cfg.MQTTUsername, cfg.MQTTPassword)
		if err := mqttPublisher.Connect(); err != nil {
			logger.Errorf("Failed to connect MQTT broker, publisher disabled: %v", err)
		} else {
			defer mqttPublisher.Close()
			cache.AddObserver(mqttPublisher)
		}
	}

	// 启动Web服务器
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			larkNotifier.NotifyError("Web Server", err.Error())
			logger.Fatalf("Web server error: %v", err)
		}
	}()

	// 只有生产环境发送启停通知，避免本地调试刷屏
	if cfg.IsProduction() {
		if err := larkNotifier.NotifyServiceStart(config.Version, cfg.Port, fetcher.URL()); err != nil {
			logger.Errorf("Failed to send start notification: %v", err)
		}
	} else {
		logger.Printf("Environment %s: start/stop notifications disabled", cfg.Environment)
	}

	logger.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down service...")

	server.Stop()
	hub.Stop()

	if cfg.IsProduction() {
		if err := larkNotifier.NotifyServiceStop(); err != nil {
			logger.Errorf("Failed to send stop notification: %v", err)
		}
	}

	logger.Println("Service stopped")
}
