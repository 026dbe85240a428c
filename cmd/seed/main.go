package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling/internal/db"
	"github.com/clinicore/scheduling/internal/logging"
)

func main() {
	log := logging.New(os.Getenv("APP_ENV"))
	log.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 100); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	log.Info("doctors seeded")

	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	log.Info("patients seeded")

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		feeCents := int64(gofakeit.Number(50, 300)) * 100
		// a handful of doctors are inactive or closed to new patients
		active := gofakeit.Number(0, 19) != 0
		accepting := gofakeit.Number(0, 9) != 0

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (
				id, name, specialty, active, accepting_patients,
				consultation_fee_cents, consultation_fee_currency,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, 'USD', now(), now())
		`, id, name, spec, active, accepting, feeCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			active := gofakeit.Number(0, 49) != 0

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, active)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	return nil
}
