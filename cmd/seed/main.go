package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthlink/appointment-lifecycle/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

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

	clinicianIDs, err := seedClinicians(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, clinicianIDs, patientIDs, 500); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinicians", count)

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
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinicians seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedAppointments creates confirmed appointments spread around now, the state
// booking hands them over in. Roughly a fifth are already past their window so
// the no-show sweep has something to flag.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, clinicianIDs, patientIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		clinicianID := clinicianIDs[gofakeit.Number(0, len(clinicianIDs)-1)]

		start := time.Now().Add(time.Duration(gofakeit.Number(-120, 480)) * time.Minute)
		apptType := "online"
		if gofakeit.Bool() {
			apptType = "on_site"
		}

		var endTime *time.Time
		if gofakeit.Bool() {
			e := start.Add(time.Duration(gofakeit.Number(20, 60)) * time.Minute)
			endTime = &e
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, clinician_id, clinic_id, start_time, end_time, appointment_type, status, is_emergency, reason, notes, created_at, updated_at)
			VALUES ($1, $2, $3, NULL, $4, $5, $6, 'confirmed', $7, $8, '', now(), now())
		`, id, patientID, clinicianID, start, endTime, apptType, gofakeit.Number(0, 19) == 0, gofakeit.Sentence(6))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}
