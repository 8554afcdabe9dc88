// Package handler 是 Vercel Go 运行时入口。每个实例持有自己的缓存，
// 不启用归档、推送和告警。
package handler

import (
	"net/http"
	"os"
	"sync"

	"skzb-service/config"
	"skzb-service/logger"
	"skzb-service/scraper"
	"skzb-service/services"
	"skzb-service/web"
)

var (
	once    sync.Once
	handler http.Handler
)

func build() {
	cfg := config.Load()

	rules := scraper.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := scraper.LoadRules(cfg.RulesFile)
		if err != nil {
			logger.Errorf("Failed to load rules, using built-in rules: %v", err)
		} else {
			rules = loaded
		}
	}

	fetcher := scraper.NewFetcher()
	cache := services.NewMatchCache(scraper.NewPipeline(fetcher, rules), services.CacheDuration)
	handler = web.NewServer(cfg, cache, fetcher).Handler()

	logger.Printf("Serverless handler ready (region=%s)", os.Getenv("VERCEL_REGION"))
}

// Handler Vercel 入口
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(build)
	handler.ServeHTTP(w, r)
}
