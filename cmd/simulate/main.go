package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling/internal/db"
)

// simulate drives concurrent booking traffic against a running api-server
// and reports how the success/conflict split behaves under contention.
// Conflicts are the interesting number: overlapping requests for the same
// doctor must lose cleanly, never double-book.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	DoctorLimit  int
	PatientLimit int
	PostgresDSN  string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getenv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:     getdur("SIM_DURATION", 30*time.Second),
		Workers:      getint("SIM_WORKERS", 20),
		BookingRatio: 0.6,
		ConfirmRatio: 0.2,
		DoctorLimit:  getint("SIM_DOCTORS", 10),
		PatientLimit: getint("SIM_PATIENTS", 200),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Report(name string) {
	om.mu.Lock()
	defer om.mu.Unlock()

	fmt.Printf("%-10s total=%d success=%d conflict=%d error=%d",
		name, om.Total, om.Success, om.Conflict, om.Error)

	if len(om.latencies) == 0 {
		fmt.Println()
		return
	}

	sorted := make([]time.Duration, len(om.latencies))
	copy(sorted, om.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}

	p := func(q int) time.Duration {
		idx := len(sorted) * q / 100
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}

	fmt.Printf(" avg=%s p50=%s p95=%s max=%s\n",
		sum/time.Duration(len(sorted)), p(50), p(95), sorted[len(sorted)-1])
}

func main() {
	log.SetFlags(log.LstdFlags)
	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	data, err := loadPool(context.Background(), pool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d patients, %d doctors", len(data.Patients), len(data.Doctors))

	// A deliberately small slot pool concentrates contention on a few
	// doctor-day keys so the lock actually gets exercised.
	slots := candidateSlots(40)

	bookMetrics := &OperationMetrics{}
	confirmMetrics := &OperationMetrics{}
	readMetrics := &OperationMetrics{}

	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runCtx.Err() == nil {
				r := rand.Float64()
				switch {
				case r < cfg.BookingRatio:
					doBook(runCtx, client, cfg, data, slots, bookMetrics)
				case r < cfg.BookingRatio+cfg.ConfirmRatio:
					doConfirm(runCtx, client, cfg, data, confirmMetrics)
				default:
					doRead(runCtx, client, cfg, data, readMetrics)
				}
			}
		}()
	}
	wg.Wait()

	fmt.Println("--- simulation results ---")
	bookMetrics.Report("book")
	confirmMetrics.Report("confirm")
	readMetrics.Report("read")
}

func loadPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients WHERE active LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docRows, err := pool.Query(ctx, `
		SELECT id FROM doctors WHERE active AND accepting_patients LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, err
	}
	defer docRows.Close()
	for docRows.Next() {
		var id uuid.UUID
		if err := docRows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Doctors = append(dp.Doctors, id)
	}
	if err := docRows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 || len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no patients or doctors seeded, run cmd/seed first")
	}
	return dp, nil
}

// candidateSlots builds valid grid instants: weekdays only, inside working
// hours, at least a day ahead.
func candidateSlots(n int) []time.Time {
	var slots []time.Time
	day := time.Now().UTC().AddDate(0, 0, 1)
	for len(slots) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			for hour := 8; hour < 18 && len(slots) < n; hour++ {
				for _, minute := range []int{0, 30} {
					slots = append(slots, time.Date(
						day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC))
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return slots
}

func doBook(ctx context.Context, client *http.Client, cfg SimConfig, data *DataPool, slots []time.Time, m *OperationMetrics) {
	body, _ := json.Marshal(map[string]any{
		"patient_id": data.Patients[rand.Intn(len(data.Patients))].String(),
		"doctor_id":  data.Doctors[rand.Intn(len(data.Doctors))].String(),
		"starts_at":  slots[rand.Intn(len(slots))].Format(time.RFC3339),
		"reason":     "Simulated annual checkup booking",
	})

	start := time.Now()
	resp, err := post(ctx, client, cfg.APIBaseURL+"/appointments", body)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, 0)
		return
	}
	defer drain(resp)

	m.Record(latency, resp.StatusCode)

	if resp.StatusCode == http.StatusCreated {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			data.AddAppointment(created.ID)
		}
	}
}

func doConfirm(ctx context.Context, client *http.Client, cfg SimConfig, data *DataPool, m *OperationMetrics) {
	id, ok := data.RandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	resp, err := post(ctx, client, fmt.Sprintf("%s/appointments/%s/confirm", cfg.APIBaseURL, id), nil)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, 0)
		return
	}
	defer drain(resp)
	m.Record(latency, resp.StatusCode)
}

func doRead(ctx context.Context, client *http.Client, cfg SimConfig, data *DataPool, m *OperationMetrics) {
	id, ok := data.RandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/appointments/%s", cfg.APIBaseURL, id), nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, 0)
		return
	}
	defer drain(resp)
	m.Record(latency, resp.StatusCode)
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
