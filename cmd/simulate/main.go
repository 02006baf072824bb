package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/api"
	"github.com/docsure/booking-service/internal/booking"
	"github.com/docsure/booking-service/internal/config"
	"github.com/docsure/booking-service/internal/db"
	"github.com/docsure/booking-service/internal/logging"
)

// The simulator picks open slots and fires many concurrent booking requests
// at each one. Exactly one request per slot may win; every other request
// must come back as slot_unavailable.

type SimConfig struct {
	APIBaseURL   string
	Slots        int
	Contenders   int
	PatientLimit int
	Cleanup      bool
	JWTSecret    string
	PostgresDSN  string
}

type targetSlot struct {
	DoctorID  uuid.UUID
	Specialty string
	Slot      booking.Slot
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []targetSlot
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
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// slotOutcome tracks which bookings won a single slot.
type slotOutcome struct {
	mu      sync.Mutex
	winners []uuid.UUID
}

func (o *slotOutcome) add(id uuid.UUID) {
	o.mu.Lock()
	o.winners = append(o.winners, id)
	o.mu.Unlock()
}

type Metrics struct {
	Booking OperationMetrics
	Delete  OperationMetrics
}

type Simulator struct {
	config   SimConfig
	pool     *DataPool
	client   *http.Client
	token    string
	logger   zerolog.Logger
	metrics  Metrics
	outcomes []*slotOutcome
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info", "json", "simulate")
		bootLog.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel, baseCfg.LogFormat, "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Int("slots", cfg.Slots).
		Int("contenders", cfg.Contenders).
		Bool("cleanup", cfg.Cleanup).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: "docsure-simulate"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	token, err := patientToken(cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign token")
	}

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		token:  token,
		logger: logger,
	}

	sim.Run(context.Background())
	doubles := sim.PrintReport()

	if cfg.Cleanup {
		sim.cleanup(context.Background())
	}

	if doubles > 0 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Slots:        getInt("SIM_SLOTS", 20),
		Contenders:   getInt("SIM_CONTENDERS", 25),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		Cleanup:      getEnv("SIM_CLEANUP", "true") == "true",
		JWTSecret:    base.JWTSecret,
		PostgresDSN:  base.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Slots <= 0 {
		return fmt.Errorf("SIM_SLOTS must be > 0")
	}
	if cfg.Contenders <= 1 {
		return fmt.Errorf("SIM_CONTENDERS must be > 1")
	}
	return nil
}

// patientToken signs a short-lived patient token. An empty secret means the
// API runs in dev mode and accepts anonymous requests.
func patientToken(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	claims := api.Claims{
		UserID: "simulator",
		Role:   api.RolePatient,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	// Load patients
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Load open slots, one specialty per doctor
	rows, err = pool.Query(ctx, `
		SELECT s.doctor_id, COALESCE(d.specialties[1], 'General Practice'), s.slot_date, s.start_time, s.end_time
		FROM available_slots s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE s.slot_date >= to_char(now(), 'YYYY-MM-DD')
		ORDER BY random()
		LIMIT $1
	`, cfg.Slots)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var t targetSlot
		if err := rows.Scan(&t.DoctorID, &t.Specialty, &t.Slot.Date, &t.Slot.Start, &t.Slot.End); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded")
	}

	return dataPool, nil
}

// Run races Contenders requests against every target slot at once.
func (s *Simulator) Run(ctx context.Context) {
	s.outcomes = make([]*slotOutcome, len(s.pool.Slots))
	for i := range s.outcomes {
		s.outcomes[i] = &slotOutcome{}
	}

	s.logger.Info().Msg("starting booking race")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range s.pool.Slots {
		for c := 0; c < s.config.Contenders; c++ {
			wg.Add(1)
			go func(slotIdx, contender int) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(slotIdx*s.config.Contenders+contender)))
				<-start
				s.doBooking(ctx, rng, slotIdx)
			}(i, c)
		}
	}

	close(start)
	wg.Wait()
	s.logger.Info().Msg("booking race complete")
}

func (s *Simulator) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, slotIdx int) {
	target := s.pool.Slots[slotIdx]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(api.CreateBookingRequest{
		DoctorID:         target.DoctorID.String(),
		PatientID:        patientID.String(),
		AppointmentTime:  target.Slot.Date + "T" + target.Slot.Start + ":00",
		Specialty:        target.Specialty,
		SlotInfo: &api.SlotInfoRequest{
			Date:  target.Slot.Date,
			Start: target.Slot.Start,
			End:   target.Slot.End,
		},
	})

	start := time.Now()
	req, err := s.newRequest(ctx, http.MethodPost, s.config.APIBaseURL+"/api/bookings", body)
	if err != nil {
		s.metrics.Booking.Record(time.Since(start), false, false)
		return
	}

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			var created struct {
				Booking api.BookingResponse `json:"booking"`
			}
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.Booking.ID != uuid.Nil {
				success = true
				s.outcomes[slotIdx].add(created.Booking.ID)
			}
		case http.StatusBadRequest:
			var apiErr api.ErrorResponse
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			conflict = apiErr.Error == "slot_unavailable"
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

// cleanup deletes every winning booking, which puts the slots back on the
// doctors' calendars.
func (s *Simulator) cleanup(ctx context.Context) {
	for _, o := range s.outcomes {
		for _, id := range o.winners {
			start := time.Now()
			req, err := s.newRequest(ctx, http.MethodDelete, s.config.APIBaseURL+"/api/bookings/"+id.String(), nil)
			if err != nil {
				s.metrics.Delete.Record(time.Since(start), false, false)
				continue
			}
			resp, err := s.client.Do(req)
			ok := err == nil && resp.StatusCode == http.StatusOK
			if err == nil {
				resp.Body.Close()
			}
			s.metrics.Delete.Record(time.Since(start), ok, false)
		}
	}
	printOperationReport("Cleanup deletes", &s.metrics.Delete)
}

// PrintReport prints per-operation stats and the per-slot race outcome and
// returns the number of slots that were booked more than once.
func (s *Simulator) PrintReport() int {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Slots: %d\n", len(s.pool.Slots))
	fmt.Printf("Contenders per slot: %d\n", s.config.Contenders)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)

	doubles, unbooked := 0, 0
	for i, o := range s.outcomes {
		t := s.pool.Slots[i]
		switch n := len(o.winners); {
		case n > 1:
			doubles++
			fmt.Printf("DOUBLE BOOKING: doctor=%s slot=%s won by %d requests\n", t.DoctorID, t.Slot.Key(), n)
		case n == 0:
			unbooked++
		}
	}

	fmt.Printf("Slots booked exactly once: %d\n", len(s.outcomes)-doubles-unbooked)
	fmt.Printf("Slots left unbooked: %d\n", unbooked)
	fmt.Printf("Double bookings: %d\n", doubles)
	return doubles
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
		fmt.Printf("  Slot unavailable: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
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

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
