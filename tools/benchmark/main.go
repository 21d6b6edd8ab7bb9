package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"

	"github.com/feral-file/territory-arbiter/internal/api/shared/dto"
	"github.com/feral-file/territory-arbiter/internal/domain"
)

const (
	defaultAPIURL = "http://localhost:8080"
	// reasonTransportError marks requests that never produced an API response
	reasonTransportError domain.ReasonCode = "transport_error"
)

type Config struct {
	APIURL      string
	APIKey      string
	Players     int           // Number of simulated players
	Rounds      int           // Claims per player
	Concurrency int           // Number of concurrent workers
	Lat         float64       // Center of the territory discovery query
	Lon         float64       // Center of the territory discovery query
	Radius      float64       // Radius of the territory discovery query in meters
	Targets     int           // Maximum number of contested territories (0 = all discovered)
	Timeout     time.Duration // Timeout for each request
	OutputFile  string        // Output markdown file path (optional)
	Seed        int64         // Seed of the target selection
	Debug       bool
}

// Target is a territory the simulated players fight over
type Target struct {
	ID     string
	Center domain.Location
}

// ClaimStats aggregates the outcomes of a benchmark run
type ClaimStats struct {
	mu         sync.Mutex
	Targets    []Target
	Total      int
	ByReason   map[domain.ReasonCode]int
	ByTarget   map[string]map[domain.ReasonCode]int
	Latencies  []time.Duration
	StartTime  time.Time
	FinishTime time.Time
}

func newClaimStats(targets []Target) *ClaimStats {
	return &ClaimStats{
		Targets:  targets,
		ByReason: make(map[domain.ReasonCode]int),
		ByTarget: make(map[string]map[domain.ReasonCode]int),
	}
}

func (s *ClaimStats) record(targetID string, reason domain.ReasonCode, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Total++
	s.ByReason[reason]++
	if s.ByTarget[targetID] == nil {
		s.ByTarget[targetID] = make(map[domain.ReasonCode]int)
	}
	s.ByTarget[targetID][reason]++
	s.Latencies = append(s.Latencies, latency)
}

// Successful returns the number of committed claims
func (s *ClaimStats) Successful() int {
	return s.ByReason[domain.ReasonClaimed] + s.ByReason[domain.ReasonRefreshed]
}

// Duration returns the wall time of the run
func (s *ClaimStats) Duration() time.Duration {
	return s.FinishTime.Sub(s.StartTime)
}

// SortedLatencies returns a sorted copy of the recorded latencies
func (s *ClaimStats) SortedLatencies() []time.Duration {
	sorted := append([]time.Duration(nil), s.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// apiClient talks to the territory API as an operator
type apiClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func newAPIClient(cfg *Config) *apiClient {
	return &apiClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// nearby discovers the territories around the configured point
func (c *apiClient) nearby(ctx context.Context, lat, lon, radius float64) ([]Target, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/territories/nearby?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("nearby query failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Territories []struct {
			ID     string          `json:"id"`
			Center domain.Location `json:"center"`
		} `json:"territories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode nearby response: %w", err)
	}

	targets := make([]Target, 0, len(result.Territories))
	for _, t := range result.Territories {
		targets = append(targets, Target{ID: t.ID, Center: t.Center})
	}
	return targets, nil
}

// claim submits one claim and returns its outcome
func (c *apiClient) claim(ctx context.Context, userID string, target Target) domain.ReasonCode {
	lat, lon := target.Center.Lat, target.Center.Lon
	body, err := json.Marshal(dto.ClaimRequest{
		TerritoryID:     target.ID,
		UserID:          userID,
		DeviceID:        "benchmark-" + userID,
		Lat:             &lat,
		Lon:             &lon,
		Accuracy:        5,
		ClientTimestamp: time.Now().UTC(),
		IdempotencyKey:  ulid.Make().String(),
	})
	if err != nil {
		return reasonTransportError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/claims", bytes.NewReader(body))
	if err != nil {
		return reasonTransportError
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return reasonTransportError
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return outcomeOf(resp.StatusCode, resp.Body)
}

// outcomeOf extracts the claim reason, or the API error code, of a response
func outcomeOf(status int, body io.Reader) domain.ReasonCode {
	var payload struct {
		ReasonCode domain.ReasonCode `json:"reason_code"`
		Code       string            `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64*1024)).Decode(&payload); err == nil {
		if payload.ReasonCode != "" {
			return payload.ReasonCode
		}
		if payload.Code != "" {
			return domain.ReasonCode(payload.Code)
		}
	}
	return domain.ReasonCode(fmt.Sprintf("http_%d", status))
}

func main() {
	cfg := parseFlags()

	if cfg.APIKey == "" {
		fmt.Println("Error: api-key is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	client := newAPIClient(cfg)

	targets, err := client.nearby(ctx, cfg.Lat, cfg.Lon, cfg.Radius)
	if err != nil {
		fmt.Printf("Error discovering territories: %v\n", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Printf("No territories within %.0fm of %f,%f\n", cfg.Radius, cfg.Lat, cfg.Lon)
		os.Exit(1)
	}
	if cfg.Targets > 0 && len(targets) > cfg.Targets {
		targets = targets[:cfg.Targets]
	}

	fmt.Printf("Connected to %s\n", cfg.APIURL)
	fmt.Printf("Contesting %d territories with %d players x %d rounds (concurrency: %d)\n",
		len(targets), cfg.Players, cfg.Rounds, cfg.Concurrency)

	stats := runBenchmark(ctx, cfg, targets, client.claim)

	fmt.Println("\n\n" + strings.Repeat("=", 80))
	if ctx.Err() != nil {
		fmt.Println("INTERRUPTED - PARTIAL RESULTS")
	} else {
		fmt.Println("BENCHMARK RESULTS")
	}
	fmt.Println(strings.Repeat("=", 80))
	printClaimStats(stats)

	// Write to markdown file if specified
	if cfg.OutputFile != "" {
		if err := writeMarkdownReport(cfg.OutputFile, cfg, stats); err != nil {
			fmt.Printf("\n⚠️  Warning: Failed to write markdown file: %v\n", err)
		} else {
			fmt.Printf("\n✓ Report written to: %s\n", cfg.OutputFile)
		}
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.APIURL, "api-url", defaultAPIURL, "Territory API base URL")
	flag.StringVar(&cfg.APIKey, "api-key", "", "Operator API key")
	flag.IntVar(&cfg.Players, "players", 20, "Number of simulated players (default: 20)")
	flag.IntVar(&cfg.Rounds, "rounds", 10, "Claims per player (default: 10)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "Number of concurrent workers (default: 10)")
	flag.Float64Var(&cfg.Lat, "lat", 45.4642, "Latitude of the territory discovery query")
	flag.Float64Var(&cfg.Lon, "lon", 9.19, "Longitude of the territory discovery query")
	flag.Float64Var(&cfg.Radius, "radius", 2000, "Radius of the territory discovery query in meters")
	flag.IntVar(&cfg.Targets, "targets", 3, "Maximum contested territories (0 = all discovered)")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output markdown file path (optional)")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "Seed of the target selection")
	flag.BoolVar(&cfg.Debug, "debug", false, "Print every claim outcome")

	var timeoutSeconds int
	flag.IntVar(&timeoutSeconds, "timeout", 10, "Timeout for each request in seconds (default: 10)")

	configFile := flag.String("config", "", "Path to config file (optional)")
	saveConfig := flag.Bool("save-config", false, "Save api-url and api-key to the default config file")

	flag.Parse()

	cfg.Timeout = time.Duration(timeoutSeconds) * time.Second

	if cfg.Players <= 0 {
		cfg.Players = 1
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Concurrency > 200 {
		cfg.Concurrency = 200 // Cap to avoid exhausting local sockets
	}

	path := *configFile
	if path == "" {
		path = GetDefaultConfigPath()
	}
	if fileCfg, err := LoadConfig(path); err == nil {
		// Override with file values if not set via flags
		if cfg.APIURL == defaultAPIURL && fileCfg.APIURL != "" {
			cfg.APIURL = fileCfg.APIURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = fileCfg.APIKey
		}
	} else if *configFile != "" {
		fmt.Printf("Warning: failed to load config file: %v\n", err)
	}

	if *saveConfig {
		if err := SaveConfig(path, &BenchmarkConfig{APIURL: cfg.APIURL, APIKey: cfg.APIKey}); err != nil {
			fmt.Printf("Warning: failed to save config file: %v\n", err)
		}
	}

	return cfg
}

// claimFunc submits one claim of userID on target
type claimFunc func(ctx context.Context, userID string, target Target) domain.ReasonCode

// runBenchmark has every player claim random targets for the configured rounds
func runBenchmark(ctx context.Context, cfg *Config, targets []Target, claim claimFunc) *ClaimStats {
	stats := newClaimStats(targets)
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec

	// Pre-compute the plan so the run is reproducible for a seed
	type job struct {
		userID string
		target Target
	}
	jobs := make([]job, 0, cfg.Players*cfg.Rounds)
	for round := 0; round < cfg.Rounds; round++ {
		for p := 0; p < cfg.Players; p++ {
			jobs = append(jobs, job{
				userID: fmt.Sprintf("bench-player-%03d", p),
				target: targets[rng.Intn(len(targets))],
			})
		}
	}

	pool := pond.NewPool(cfg.Concurrency, pond.WithContext(ctx))

	stats.StartTime = time.Now()
	for _, j := range jobs {
		pool.Submit(func() {
			start := time.Now()
			reason := claim(ctx, j.userID, j.target)
			latency := time.Since(start)
			stats.record(j.target.ID, reason, latency)
			if cfg.Debug {
				fmt.Printf("%s %s -> %s (%s)\n", j.userID, j.target.ID, reason, formatDuration(latency))
			}
		})
	}
	pool.StopAndWait()
	stats.FinishTime = time.Now()

	return stats
}

func printClaimStats(stats *ClaimStats) {
	sorted := stats.SortedLatencies()

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Claims:\n")
	fmt.Printf("  Total:       %d\n", stats.Total)
	fmt.Printf("  Committed:   %d (%s)\n", stats.Successful(), percentageString(stats.Successful(), stats.Total))
	fmt.Printf("  Duration:    %s\n", formatDuration(stats.Duration()))
	fmt.Printf("  Rate:        %s\n", formatRate(stats.Total, stats.Duration()))
	fmt.Println()

	fmt.Printf("Latency:\n")
	fmt.Printf("  p50:         %s\n", formatDuration(percentile(sorted, 50)))
	fmt.Printf("  p90:         %s\n", formatDuration(percentile(sorted, 90)))
	fmt.Printf("  p99:         %s\n", formatDuration(percentile(sorted, 99)))
	fmt.Printf("  max:         %s\n", formatDuration(percentile(sorted, 100)))
	fmt.Println()

	fmt.Println("Outcomes:")
	for _, reason := range sortedReasons(stats.ByReason) {
		count := stats.ByReason[reason]
		fmt.Printf("  %s %-18s %6d (%s)\n", reasonEmoji(reason), reason, count, percentageString(count, stats.Total))
	}
	fmt.Println()

	fmt.Println("Territories:")
	for _, target := range stats.Targets {
		counts := stats.ByTarget[target.ID]
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Printf("  %s\n", target.ID)
		fmt.Printf("    Attempts:       %d\n", total)
		fmt.Printf("    Committed:      %d\n", counts[domain.ReasonClaimed]+counts[domain.ReasonRefreshed])
		fmt.Printf("    Locked:         %d\n", counts[domain.ReasonLocked])
		fmt.Printf("    Conflicts:      %d\n", counts[domain.ReasonConflict])
	}

	fmt.Println(strings.Repeat("-", 80))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func writeMarkdownReport(filepath string, cfg *Config, stats *ClaimStats) error {
	file, err := os.Create(filepath) //nolint:gosec,G304
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	sorted := stats.SortedLatencies()

	// Write header
	_, _ = fmt.Fprintf(file, "# Claim Contention Benchmark Report\n\n")
	_, _ = fmt.Fprintf(file, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	_, _ = fmt.Fprintf(file, "## Setup\n\n")
	_, _ = fmt.Fprintf(file, "| Property | Value |\n")
	_, _ = fmt.Fprintf(file, "|----------|-------|\n")
	_, _ = fmt.Fprintf(file, "| **API** | `%s` |\n", cfg.APIURL)
	_, _ = fmt.Fprintf(file, "| **Players** | %d |\n", cfg.Players)
	_, _ = fmt.Fprintf(file, "| **Rounds** | %d |\n", cfg.Rounds)
	_, _ = fmt.Fprintf(file, "| **Concurrency** | %d |\n", cfg.Concurrency)
	_, _ = fmt.Fprintf(file, "| **Territories** | %d |\n", len(stats.Targets))
	_, _ = fmt.Fprintf(file, "| **Seed** | %d |\n", cfg.Seed)
	_, _ = fmt.Fprintf(file, "\n")

	_, _ = fmt.Fprintf(file, "## Summary\n\n")
	_, _ = fmt.Fprintf(file, "| Metric | Value |\n")
	_, _ = fmt.Fprintf(file, "|--------|-------|\n")
	_, _ = fmt.Fprintf(file, "| **Total** | %d |\n", stats.Total)
	_, _ = fmt.Fprintf(file, "| **Committed** | %d (%s) |\n", stats.Successful(), percentageString(stats.Successful(), stats.Total))
	_, _ = fmt.Fprintf(file, "| **Duration** | %s |\n", formatDuration(stats.Duration()))
	_, _ = fmt.Fprintf(file, "| **Rate** | %s |\n", formatRate(stats.Total, stats.Duration()))
	_, _ = fmt.Fprintf(file, "| **p50** | %s |\n", formatDuration(percentile(sorted, 50)))
	_, _ = fmt.Fprintf(file, "| **p90** | %s |\n", formatDuration(percentile(sorted, 90)))
	_, _ = fmt.Fprintf(file, "| **p99** | %s |\n", formatDuration(percentile(sorted, 99)))
	_, _ = fmt.Fprintf(file, "\n")

	_, _ = fmt.Fprintf(file, "## Outcomes\n\n")
	_, _ = fmt.Fprintf(file, "| Outcome | Count | Share |\n")
	_, _ = fmt.Fprintf(file, "|---------|-------|-------|\n")
	for _, reason := range sortedReasons(stats.ByReason) {
		count := stats.ByReason[reason]
		_, _ = fmt.Fprintf(file, "| %s `%s` | %d | %s |\n", reasonEmoji(reason), reason, count, percentageString(count, stats.Total))
	}
	_, _ = fmt.Fprintf(file, "\n")

	_, _ = fmt.Fprintf(file, "## Territories\n\n")
	_, _ = fmt.Fprintf(file, "| Territory | Attempts | Committed | Locked | Conflicts |\n")
	_, _ = fmt.Fprintf(file, "|-----------|----------|-----------|--------|-----------|\n")
	for _, target := range stats.Targets {
		counts := stats.ByTarget[target.ID]
		total := 0
		for _, n := range counts {
			total += n
		}
		_, _ = fmt.Fprintf(file, "| `%s` | %d | %d | %d | %d |\n",
			target.ID, total,
			counts[domain.ReasonClaimed]+counts[domain.ReasonRefreshed],
			counts[domain.ReasonLocked],
			counts[domain.ReasonConflict],
		)
	}

	return nil
}
