package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/booking"
	"github.com/docsure/booking-service/internal/config"
	"github.com/docsure/booking-service/internal/db"
	"github.com/docsure/booking-service/internal/logging"
)

const (
	doctorCount  = 50
	patientCount = 500
	slotDays     = 7
)

var specialties = []string{
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

var relationships = []string{"spouse", "son", "daughter", "mother", "father", "sibling"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info", "json", "seed")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: "docsure-seed"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := booking.NewPgRepository(pool)
	firstDay := time.Now().In(cfg.Location()).AddDate(0, 0, 1)

	if err := seedDoctors(context.Background(), pool, repo, logger, doctorCount, firstDay); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, repo, logger, patientCount); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, repo *booking.PgRepository, logger zerolog.Logger, count int, firstDay time.Time) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		addr := gofakeit.Address()

		specs := []string{specialties[gofakeit.Number(0, len(specialties)-1)]}
		if gofakeit.Bool() {
			second := specialties[gofakeit.Number(0, len(specialties)-1)]
			if second != specs[0] {
				specs = append(specs, second)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, phone, bio, education, experience, specialties,
			                     clinic_address, clinic_lat, clinic_lng, rating, review_count, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		`, id, "Dr. "+gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), gofakeit.Sentence(12),
			gofakeit.Company()+" Medical School", fmt.Sprintf("%d years", gofakeit.Number(2, 30)), specs,
			addr.Address, addr.Latitude, addr.Longitude,
			gofakeit.Float64Range(3, 5), gofakeit.Number(0, 400))
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	slots := weekSlots(firstDay, slotDays)
	for _, id := range ids {
		if _, err := repo.PublishSlots(ctx, id, slots); err != nil {
			return err
		}
	}

	logger.Info().Int("doctors", len(ids)).Int("slots_each", len(slots)).Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, repo *booking.PgRepository, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, end-offset)
		for i := offset; i < end; i++ {
			id := uuid.New()

			// a few patients have no email so the skip path gets exercised
			var email *string
			if gofakeit.Number(1, 10) > 1 {
				e := gofakeit.Email()
				email = &e
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, location, insurance_provider, policy_number, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			`, id, gofakeit.Name(), email, gofakeit.Phone(), gofakeit.City(),
				gofakeit.Company()+" Health", gofakeit.Regex(`[A-Z]{3}-[0-9]{8}`))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		for _, id := range ids {
			if err := repo.ReplaceFamilyMembers(ctx, id, fakeFamily(gofakeit.Number(0, 3))); err != nil {
				return err
			}
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func fakeFamily(n int) []booking.FamilyMember {
	members := make([]booking.FamilyMember, 0, n)
	for i := 0; i < n; i++ {
		dob := gofakeit.DateRange(time.Now().AddDate(-80, 0, 0), time.Now().AddDate(-1, 0, 0))
		members = append(members, booking.FamilyMember{
			ID:           uuid.New(),
			Name:         gofakeit.FirstName() + " " + gofakeit.LastName(),
			Relationship: relationships[gofakeit.Number(0, len(relationships)-1)],
			DateOfBirth:  time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC),
		})
	}
	return members
}

// weekSlots returns hourly clinic slots from 09:00 to 17:00, lunch hour
// excluded, for days consecutive days starting at first.
func weekSlots(first time.Time, days int) []booking.Slot {
	var slots []booking.Slot
	for d := 0; d < days; d++ {
		day := first.AddDate(0, 0, d)
		if day.Weekday() == time.Sunday {
			continue
		}
		for hour := 9; hour < 17; hour++ {
			if hour == 13 {
				continue
			}
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
			slots = append(slots, booking.SlotFromTime(start, booking.SlotDuration))
		}
	}
	return slots
}
