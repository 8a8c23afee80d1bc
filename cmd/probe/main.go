package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"keyscan/pkg/rpc"
)

// ProbeResult - задержки PING, снятые пока шёл длинный подсчёт.
type ProbeResult struct {
	Mode       string
	Count      int
	CountTime  time.Duration
	Pings      int
	FailedPing int
	AvgLatency time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "keyscan HTTP address")
	pattern := flag.String("pattern", "test:user:*", "pattern to count")
	groups := flag.Int("groups", 0, "seed this many groups before probing (0 - skip)")
	perGroup := flag.Int("per-group", 1000, "keys per seeded group")
	layout := flag.String("layout", "hierarchical", "layout for seeded groups")
	every := flag.Duration("every", 5*time.Millisecond, "pause between pings")
	flag.Parse()

	ctx := context.Background()
	client := rpc.NewClient(*baseURL, 5*time.Minute)

	fmt.Println("=== keyscan probe ===")
	fmt.Printf("Target: %s\n", *baseURL)
	fmt.Println()

	if err := client.Health(ctx); err != nil {
		fmt.Printf("ERROR: %s is not available: %v\n", *baseURL, err)
		os.Exit(1)
	}

	if *groups > 0 {
		res, err := client.SeedGroups(ctx, *layout, *groups, *perGroup)
		if err != nil {
			fmt.Printf("ERROR: seed failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d keys in %d flushes (%s)\n\n", res.Applied, res.Flushes, *layout)
	}

	// Тест 1: PING пока идёт KEYS
	fmt.Println("Test 1: ping while counting with KEYS")
	printResult(probe(ctx, client, *pattern, "keys", *every))

	// Тест 2: PING пока идёт SCAN
	fmt.Println("\nTest 2: ping while counting with SCAN")
	printResult(probe(ctx, client, *pattern, "scan", *every))

	fmt.Println("\n=== Probe Complete ===")
}

func probe(ctx context.Context, client *rpc.Client, pattern, mode string, every time.Duration) ProbeResult {
	res := ProbeResult{Mode: mode}

	countCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		start := time.Now()
		cnt, err := client.CountKeys(countCtx, pattern, mode, "")
		res.CountTime = time.Since(start)
		if err != nil {
			fmt.Printf("  count failed: %v\n", err)
			return
		}
		res.Count = cnt.Count
	}()

	var latencies []time.Duration
	for countCtx.Err() == nil {
		start := time.Now()
		_, err := client.Ping(ctx)
		lat := time.Since(start)
		if err != nil {
			res.FailedPing++
		} else {
			latencies = append(latencies, lat)
		}
		time.Sleep(every)
	}
	wg.Wait()

	res.Pings = len(latencies) + res.FailedPing
	var sum time.Duration
	for i, lat := range latencies {
		if i == 0 || lat < res.MinLatency {
			res.MinLatency = lat
		}
		if lat > res.MaxLatency {
			res.MaxLatency = lat
		}
		sum += lat
	}
	if len(latencies) > 0 {
		res.AvgLatency = sum / time.Duration(len(latencies))
	}
	return res
}

func printResult(result ProbeResult) {
	fmt.Printf("  Mode: %s\n", result.Mode)
	fmt.Printf("  Keys counted: %d\n", result.Count)
	fmt.Printf("  Count duration: %v\n", result.CountTime)
	fmt.Printf("  Pings: %d (failed %d)\n", result.Pings, result.FailedPing)
	fmt.Printf("  Avg Latency: %v\n", result.AvgLatency)
	fmt.Printf("  Min Latency: %v\n", result.MinLatency)
	fmt.Printf("  Max Latency: %v\n", result.MaxLatency)
}
