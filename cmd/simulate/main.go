// simulate drives concurrent booking traffic at a running api-server and
// then audits the ledger: many workers race to claim the same handful of
// slots, exactly one create per slot may win, and the database must hold at
// most one live appointment per (doctor, date, time) afterwards.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-engine/internal/db"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

type simConfig struct {
	APIBaseURL  string
	Workers     int
	Requests    int
	SlotCount   int
	PostgresDSN string
}

func loadSimConfig() simConfig {
	cfg := simConfig{
		APIBaseURL:  getenv("SIM_API_URL", "http://127.0.0.1:8080"),
		Workers:     getenvInt("SIM_WORKERS", 16),
		Requests:    getenvInt("SIM_REQUESTS", 500),
		SlotCount:   getenvInt("SIM_SLOTS", 8),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

type counters struct {
	created   atomic.Int64
	conflicts atomic.Int64
	errors    atomic.Int64
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

	doctorID, patientIDs, err := loadDirectory(context.Background(), pool)
	if err != nil {
		log.Fatalf("load directory: %v", err)
	}

	// All workers fight over the same few slots tomorrow morning.
	date := slot.DateOf(time.Now().UTC().AddDate(0, 0, 1))
	slots := make([]slot.Time, cfg.SlotCount)
	for i := range slots {
		slots[i] = slot.Time(9*60 + 30*i)
	}

	log.Printf("simulating %d requests across %d workers on %d slots (doctor %s)",
		cfg.Requests, cfg.Workers, len(slots), doctorID)

	var c counters
	var wg sync.WaitGroup
	work := make(chan int)

	client := &http.Client{Timeout: 10 * time.Second}

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				t := slots[rand.Intn(len(slots))]
				patientID := patientIDs[rand.Intn(len(patientIDs))]
				book(client, cfg.APIBaseURL, &c, patientID, doctorID, date, t)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < cfg.Requests; i++ {
		work <- i
	}
	close(work)
	wg.Wait()
	elapsed := time.Since(start)

	log.Printf("done in %s: created=%d conflicts=%d errors=%d",
		elapsed, c.created.Load(), c.conflicts.Load(), c.errors.Load())

	if err := auditLedger(context.Background(), pool); err != nil {
		log.Fatalf("ledger audit: %v", err)
	}
	log.Println("ledger audit passed: no slot holds more than one live appointment")
}

func loadDirectory(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, []uuid.UUID, error) {
	var doctorID uuid.UUID
	if err := pool.QueryRow(ctx, `SELECT id FROM doctors LIMIT 1`).Scan(&doctorID); err != nil {
		return uuid.Nil, nil, fmt.Errorf("pick doctor: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 100`)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("pick patients: %w", err)
	}
	defer rows.Close()

	var patientIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.Nil, nil, err
		}
		patientIDs = append(patientIDs, id)
	}
	if len(patientIDs) == 0 {
		return uuid.Nil, nil, fmt.Errorf("no patients seeded")
	}

	return doctorID, patientIDs, rows.Err()
}

func book(client *http.Client, baseURL string, c *counters, patientID, doctorID uuid.UUID, date time.Time, t slot.Time) {
	body, _ := json.Marshal(map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"date":       slot.FormatDate(date),
		"time":       t.String(),
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		c.errors.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", patientID.String())
	req.Header.Set("X-Actor-Role", "patient")

	resp, err := client.Do(req)
	if err != nil {
		c.errors.Add(1)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		c.created.Add(1)
	case http.StatusBadRequest, http.StatusConflict:
		c.conflicts.Add(1)
	default:
		c.errors.Add(1)
	}
}

func auditLedger(ctx context.Context, pool *pgxpool.Pool) error {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT doctor_id, date, slot_time
			FROM appointments
			WHERE status <> 'Cancelled' AND deleted_at IS NULL
			GROUP BY doctor_id, date, slot_time
			HAVING count(*) > 1
		) d
	`).Scan(&violations)
	if err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("%d slots hold more than one live appointment", violations)
	}
	return nil
}
