// scrape 抓取一次数据源并输出快照 JSON，用于调试提取规则
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"skzb-service/models"
	"skzb-service/scraper"
	"skzb-service/services"
)

func main() {
	url := flag.String("url", scraper.UpstreamURL, "source page URL")
	rulesFile := flag.String("rules", os.Getenv("RULES_FILE"), "rule file (YAML), built-in rules when empty")
	file := flag.String("file", "", "parse a saved page instead of fetching")
	timeout := flag.Duration("timeout", scraper.DefaultTimeout, "fetch timeout")
	flag.Parse()

	rules := scraper.DefaultRules()
	if *rulesFile != "" {
		loaded, err := scraper.LoadRules(*rulesFile)
		if err != nil {
			log.Fatalf("Failed to load rules: %v", err)
		}
		rules = loaded
	}

	fetcher := scraper.NewFetcherWithConfig(scraper.FetcherConfig{URL: *url, Timeout: *timeout})
	pipeline := scraper.NewPipeline(fetcher, rules)

	var source services.MatchSource = pipeline
	if *file != "" {
		source = fileSource{path: *file, pipeline: pipeline}
	}

	cache := services.NewMatchCache(source, services.CacheDuration)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()

	if err := cache.Refresh(ctx); err != nil {
		log.Fatalf("Refresh failed: %v", err)
	}

	out, err := json.MarshalIndent(cache.Peek(), "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode snapshot: %v", err)
	}
	fmt.Println(string(out))
}

// fileSource 从本地文件读取页面（需已是 UTF-8）
type fileSource struct {
	path     string
	pipeline *scraper.Pipeline
}

func (s fileSource) FetchMatches(ctx context.Context) ([]models.MatchRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Parse(string(data))
}
