// Command feedcheck validates the configured watcher feeds, plus any feed URLs
// given as arguments, and exits non-zero when one of them cannot be parsed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/NullMeDev/factlens/internal/config"
	"github.com/NullMeDev/factlens/internal/feeds"
)

type result struct {
	url     string
	title   string
	items   int
	elapsed time.Duration
	err     error
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	timeout := flag.Duration("timeout", 15*time.Second, "per-feed timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	urls := append(append([]string(nil), cfg.Feeds.URLs...), flag.Args()...)
	if len(urls) == 0 {
		fmt.Println("No feeds configured. Set FEED_URLS or pass URLs as arguments.")
		os.Exit(1)
	}

	fmt.Println("Feed Validator")
	fmt.Println("==============")
	fmt.Printf("Validating %d feeds\n\n", len(urls))

	results := check(urls, feeds.NewFetcher(nil), *timeout)

	var invalid []string
	for _, r := range results {
		if r.err != nil {
			fmt.Printf("❌ %-50s [%7dms] %v\n", r.url, r.elapsed.Milliseconds(), r.err)
			invalid = append(invalid, r.url)
			continue
		}
		fmt.Printf("✅ %-50s [%7dms] %s (%d items)\n", r.url, r.elapsed.Milliseconds(), r.title, r.items)
	}

	fmt.Println("\nValidation Summary:")
	fmt.Printf("Valid feeds:   %d\n", len(results)-len(invalid))
	fmt.Printf("Invalid feeds: %d\n", len(invalid))
	if len(invalid) > 0 {
		os.Exit(1)
	}
}

// check fetches every feed concurrently; results keep the input order.
func check(urls []string, fetcher *feeds.Fetcher, timeout time.Duration) []result {
	results := make([]result, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			start := time.Now()
			feed, err := fetcher.Fetch(ctx, u)
			r := result{url: u, elapsed: time.Since(start), err: err}
			if err == nil {
				r.title = feed.Title
				r.items = len(feed.Items)
			}
			results[i] = r
		}(i, u)
	}
	wg.Wait()
	return results
}
