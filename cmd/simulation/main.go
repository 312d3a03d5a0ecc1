package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stefanaltmann/markets-api/internal/types"
)

const (
	minOrders     = 50
	maxOrders     = 300
	numWorkers    = 5
	serverAddress = "http://localhost:8080"

	cancelProbability = 0.15
	acceptProbability = 0.10
	marketProbability = 0.20
)

var assets = []string{"A", "B"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// trader is one simulated participant with its own JWT token
type trader struct {
	code  string
	token string
}

// simulationClient handles HTTP communication with the markets API
type simulationClient struct {
	baseURL string
	client  *http.Client
	traders []*trader
	stats   map[string]*routeStats
}

// newSimulationClient authenticates every simulated trader and prepares
// performance tracking
func newSimulationClient(traderCount int) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":   {name: "Authentication"},
			"enter":  {name: "Enter Order"},
			"market": {name: "Market Order"},
			"cancel": {name: "Cancel Order"},
			"accept": {name: "Accept Order"},
			"book":   {name: "Book Snapshot"},
		},
	}

	for i := 0; i < traderCount; i++ {
		code := fmt.Sprintf("trader-%02d", i)
		token, err := sc.authenticate(code)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate %s: %w", code, err)
		}
		sc.traders = append(sc.traders, &trader{code: code, token: token})
	}

	return sc, nil
}

// authenticate performs API authentication for one trader and returns a JWT
// token. The server's config must register api keys sim-key-<code>.
func (sc *simulationClient) authenticate(code string) (string, error) {
	start := time.Now()
	failed := true
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start), failed)
	}()

	credentials := map[string]string{
		"api_key":    "sim-key-" + code,
		"api_secret": "sim-secret-" + code,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	failed = false
	return result.Data.Token, nil
}

func (sc *simulationClient) do(stat, method, path, token string, payload interface{}) ([]byte, int, error) {
	start := time.Now()
	failed := true
	defer func() {
		sc.stats[stat].addDuration(time.Since(start), failed)
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	failed = resp.StatusCode >= 500
	return respBody, resp.StatusCode, nil
}

// enterOrder submits a random limit order for the given trader
func (sc *simulationClient) enterOrder(tr *trader, asset string) error {
	isBid := rand.Intn(2) == 0
	payload := map[string]interface{}{
		"price":  int64(90 + rand.Intn(21)),
		"volume": int64(1 + rand.Intn(10)),
		"is_bid": isBid,
	}
	body, status, err := sc.do("enter", "POST", "/api/v1/markets/"+asset+"/orders", tr.token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("enter order failed with status %d: %s", status, string(body))
	}
	return nil
}

// enterMarketOrder submits a random market order for the given trader
func (sc *simulationClient) enterMarketOrder(tr *trader, asset string) error {
	payload := map[string]interface{}{
		"volume": int64(1 + rand.Intn(10)),
		"is_bid": rand.Intn(2) == 0,
	}
	body, status, err := sc.do("market", "POST", "/api/v1/markets/"+asset+"/market-orders", tr.token, payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("market order failed with status %d: %s", status, string(body))
	}
	return nil
}

// book fetches the current book snapshot for an asset
func (sc *simulationClient) book(tr *trader, asset string) (*types.BookResponse, error) {
	body, status, err := sc.do("book", "GET", "/api/v1/markets/"+asset+"/book", tr.token, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("book snapshot failed with status %d: %s", status, string(body))
	}

	var result struct {
		Data types.BookResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
	}
	return &result.Data, nil
}

// cancelRandomOwnOrder cancels one of the trader's resting orders, if any
func (sc *simulationClient) cancelRandomOwnOrder(tr *trader, asset string) error {
	book, err := sc.book(tr, asset)
	if err != nil {
		return err
	}

	var own []types.Order
	for _, order := range append(book.Bids, book.Asks...) {
		if order.TraderCode == tr.code {
			own = append(own, order)
		}
	}
	if len(own) == 0 {
		return nil
	}

	target := own[rand.Intn(len(own))]
	path := fmt.Sprintf("/api/v1/markets/%s/orders/%d", asset, target.ID)
	body, status, err := sc.do("cancel", "DELETE", path, tr.token, nil)
	if err != nil {
		return err
	}
	// A 409 just means another worker got there first.
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("cancel failed with status %d: %s", status, string(body))
	}
	return nil
}

// acceptRandomOrder directly accepts a random resting order of another trader
func (sc *simulationClient) acceptRandomOrder(tr *trader, asset string) error {
	book, err := sc.book(tr, asset)
	if err != nil {
		return err
	}

	var others []types.Order
	for _, order := range append(book.Bids, book.Asks...) {
		if order.TraderCode != tr.code {
			others = append(others, order)
		}
	}
	if len(others) == 0 {
		return nil
	}

	target := others[rand.Intn(len(others))]
	path := fmt.Sprintf("/api/v1/markets/%s/orders/%d/accept", asset, target.ID)
	body, status, err := sc.do("accept", "POST", path, tr.token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("accept failed with status %d: %s", status, string(body))
	}
	return nil
}

// runWorker submits a mixed stream of market activity
func (sc *simulationClient) runWorker(workerID, orders int) {
	logger := log.With().Int("worker_id", workerID).Logger()

	for i := 0; i < orders; i++ {
		tr := sc.traders[rand.Intn(len(sc.traders))]
		asset := assets[rand.Intn(len(assets))]

		var err error
		switch roll := rand.Float64(); {
		case roll < cancelProbability:
			err = sc.cancelRandomOwnOrder(tr, asset)
		case roll < cancelProbability+acceptProbability:
			err = sc.acceptRandomOrder(tr, asset)
		case roll < cancelProbability+acceptProbability+marketProbability:
			err = sc.enterMarketOrder(tr, asset)
		default:
			err = sc.enterOrder(tr, asset)
		}
		if err != nil {
			logger.Warn().Err(err).Str("trader", tr.code).Msg("request failed")
		}
	}

	logger.Info().Int("orders", orders).Msg("worker finished")
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the market simulation against an already-running server. The
// server must be started with a config registering sim-key-trader-NN
// credentials for each simulated trader.
func main() {
	simClient, err := newSimulationClient(numWorkers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			simClient.runWorker(workerID, targetOrders/numWorkers)
		}(i)
	}
	wg.Wait()

	// Final book summary per asset
	for _, asset := range assets {
		book, err := simClient.book(simClient.traders[0], asset)
		if err != nil {
			log.Warn().Err(err).Str("asset", asset).Msg("failed to fetch final book")
			continue
		}
		log.Info().
			Str("asset", asset).
			Int("resting_bids", len(book.Bids)).
			Int("resting_asks", len(book.Asks)).
			Msg("final book state")
	}

	simClient.printPerformanceStats()
}
