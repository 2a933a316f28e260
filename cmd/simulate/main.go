package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/config"
	"github.com/hackgods/homeservice-dispatch/internal/db"
	"github.com/hackgods/homeservice-dispatch/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	AcceptRatio  float64
	ReadRatio    float64
	ClientLimit  int
	Days         int
	PostgresDSN  string
}

type booked struct {
	ID         uuid.UUID
	Therapists []uuid.UUID
}

type DataPool struct {
	Clients    []uuid.UUID
	Therapists []uuid.UUID
	Operators  []uuid.UUID
	Services   []uuid.UUID
	mu         sync.RWMutex
	booked     []booked // appointments created during the run
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.booked) == 0 {
		return booked{}, false
	}
	return dp.booked[rng.Intn(len(dp.booked))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	if len(latencies) > 0 {
		p50Idx := len(latencies) * 50 / 100
		if p50Idx >= len(latencies) {
			p50Idx = len(latencies) - 1
		}
		p50 = latencies[p50Idx]

		p95Idx := len(latencies) * 95 / 100
		if p95Idx >= len(latencies) {
			p95Idx = len(latencies) - 1
		}
		p95 = latencies[p95Idx]
	}

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking   OperationMetrics
	Accept    OperationMetrics
	ReadByID  OperationMetrics
	Conflicts OperationMetrics
	Drivers   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *zap.Logger
	metrics Metrics
	today   time.Time
}

func main() {
	cfg, baseCfg := loadConfig()

	log, err := logger.New(baseCfg.LogLevel, "console", "simulate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("accept", cfg.AcceptRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 2)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}

	log.Info("data pool loaded",
		zap.Int("clients", len(dataPool.Clients)),
		zap.Int("therapists", len(dataPool.Therapists)),
		zap.Int("operators", len(dataPool.Operators)),
		zap.Int("services", len(dataPool.Services)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:   log,
		today: time.Now().UTC().Truncate(24 * time.Hour),
	}

	// Run simulation
	sim.Run()

	// Print report
	sim.PrintReport()
}

func loadConfig() (SimConfig, config.Config) {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		AcceptRatio:  getFloat("SIM_ACCEPT_RATIO", 0.3),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		ClientLimit:  getInt("SIM_CLIENT_LIMIT", 2000),
		Days:         getInt("SIM_DAYS", 7),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.AcceptRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AcceptRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, baseCfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}
	var err error

	if dp.Clients, err = loadIDs(ctx, pool, `SELECT id FROM clients LIMIT $1`, cfg.ClientLimit); err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	if dp.Therapists, err = loadIDs(ctx, pool, `SELECT id FROM staff WHERE role = 'therapist' AND is_active`); err != nil {
		return nil, fmt.Errorf("load therapists: %w", err)
	}
	if dp.Operators, err = loadIDs(ctx, pool, `SELECT id FROM staff WHERE role = 'operator' AND is_active`); err != nil {
		return nil, fmt.Errorf("load operators: %w", err)
	}
	if dp.Services, err = loadIDs(ctx, pool, `SELECT id FROM services`); err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	switch {
	case len(dp.Clients) == 0:
		return nil, fmt.Errorf("no clients loaded")
	case len(dp.Therapists) == 0:
		return nil, fmt.Errorf("no therapists loaded")
	case len(dp.Operators) == 0:
		return nil, fmt.Errorf("no operators loaded")
	case len(dp.Services) == 0:
		return nil, fmt.Errorf("no services loaded")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Select operation based on ratios
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.AcceptRatio {
				s.doAccept(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doCheckConflicts(ctx, rng)
				case 2:
					s.doAvailableDrivers(ctx, rng)
				}
			}
		}
	}
}

func pick(rng *rand.Rand, ids []uuid.UUID) uuid.UUID {
	return ids[rng.Intn(len(ids))]
}

// window draws a start on the half hour; a late start runs past midnight.
func (s *Simulator) window(rng *rand.Rand) (date, start, end string) {
	d := s.today.AddDate(0, 0, rng.Intn(s.config.Days))
	startMin := (9*60 + rng.Intn(30)*30) % (24 * 60)
	endMin := (startMin + 60 + rng.Intn(3)*30) % (24 * 60)
	return d.Format(time.DateOnly), hhmm(startMin), hhmm(endMin)
}

func hhmm(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (s *Simulator) do(ctx context.Context, method, path string, actorID uuid.UUID, role string, body any) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", actorID.String())
	req.Header.Set("X-User-Role", role)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, nil
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	size := 1
	if rng.Intn(5) == 0 {
		size = 2
	}
	therapists := make([]string, 0, size)
	ids := make([]uuid.UUID, 0, size)
	for len(ids) < size {
		id := pick(rng, s.pool.Therapists)
		if size > 1 && len(ids) > 0 && ids[0] == id {
			continue
		}
		ids = append(ids, id)
		therapists = append(therapists, id.String())
	}
	date, startAt, endAt := s.window(rng)

	start := time.Now()
	status, body, err := s.do(ctx, http.MethodPost, "/appointments", pick(rng, s.pool.Operators), "operator", map[string]any{
		"client_id":     pick(rng, s.pool.Clients).String(),
		"therapist_ids": therapists,
		"service_ids":   []string{pick(rng, s.pool.Services).String()},
		"group_size":    size,
		"date":          date,
		"start_time":    startAt,
		"end_time":      endAt,
	})
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	conflict := err == nil && status == http.StatusConflict
	if success {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(body, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(booked{ID: appt.ID, Therapists: ids})
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doAccept(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodPost, "/appointments/"+appt.ID.String()+"/accept", pick(rng, appt.Therapists), "therapist", nil)
	latency := time.Since(start)

	s.metrics.Accept.Record(latency, err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, "/appointments/"+appt.ID.String(), pick(rng, s.pool.Operators), "operator", nil)
	latency := time.Since(start)

	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doCheckConflicts(ctx context.Context, rng *rand.Rand) {
	date, startAt, endAt := s.window(rng)
	path := fmt.Sprintf("/conflicts?staff_id=%s&date=%s&start=%s&end=%s",
		pick(rng, s.pool.Therapists), date, startAt, endAt)

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, path, pick(rng, s.pool.Operators), "operator", nil)
	latency := time.Since(start)

	s.metrics.Conflicts.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doAvailableDrivers(ctx context.Context, rng *rand.Rand) {
	date, _, _ := s.window(rng)

	start := time.Now()
	status, _, err := s.do(ctx, http.MethodGet, "/staff/available?role=driver&date="+date, pick(rng, s.pool.Operators), "operator", nil)
	latency := time.Since(start)

	s.metrics.Drivers.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Appointments booked: %d\n", len(s.pool.booked))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Conflict check", &s.metrics.Conflicts)
	printOperationReport("Available drivers", &s.metrics.Drivers)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
