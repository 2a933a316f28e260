package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/db"
	"github.com/hackgods/homeservice-dispatch/internal/logger"
)

var specializations = []string{
	"Swedish",
	"Deep Tissue",
	"Shiatsu",
	"Thai",
	"Reflexology",
	"Hot Stone",
	"Sports",
	"Prenatal",
}

var serviceMenu = []struct {
	name    string
	minutes int
	price   float64
}{
	{"Relaxation Massage 60", 60, 55},
	{"Relaxation Massage 90", 90, 75},
	{"Deep Tissue 90", 90, 85},
	{"Hot Stone 120", 120, 110},
	{"Foot Reflexology 45", 45, 40},
	{"Couples Package 120", 120, 190},
}

var materials = []struct {
	name, category, unit string
	stock                int
}{
	{"Massage Oil", "oil", "bottle", 40},
	{"Aromatherapy Oil", "oil", "bottle", 25},
	{"Hot Stone Set", "equipment", "set", 8},
	{"Portable Table", "equipment", "unit", 10},
	{"Towel", "linen", "piece", 200},
	{"Disposable Sheet", "consumable", "piece", 500},
}

func main() {
	therapists := flag.Int("therapists", 40, "therapists to create")
	drivers := flag.Int("drivers", 12, "drivers to create")
	operators := flag.Int("operators", 3, "operators to create")
	clients := flag.Int("clients", 2000, "clients to create")
	days := flag.Int("days", 14, "days of availability slots from today")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("LOG_LEVEL"), "console", "seed")
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 4)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if *migrate {
		if err := db.Migrate(ctx, pool, log); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	s := &seeder{pool: pool, log: log}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"therapists", func(ctx context.Context) error { return s.staff(ctx, "therapist", *therapists) }},
		{"drivers", func(ctx context.Context) error { return s.staff(ctx, "driver", *drivers) }},
		{"operators", func(ctx context.Context) error { return s.staff(ctx, "operator", *operators) }},
		{"clients", func(ctx context.Context) error { return s.clients(ctx, *clients) }},
		{"services", s.services},
		{"inventory", s.inventory},
		{"slots", func(ctx context.Context) error { return s.slots(ctx, *days) }},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			log.Fatal("seed failed", zap.String("step", step.name), zap.Error(err))
		}
	}

	log.Info("seed complete")
}

type seeder struct {
	pool  *pgxpool.Pool
	log   *zap.Logger
	staffIDs []uuid.UUID
}

func (s *seeder) staff(ctx context.Context, role string, count int) error {
	s.log.Info("seeding staff", zap.String("role", role), zap.Int("count", count))

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			var specialty *string
			if role == "therapist" {
				v := specializations[gofakeit.Number(0, len(specializations)-1)]
				specialty = &v
			}
			// drivers start with a staggered FIFO position
			var lastAvailable *time.Time
			if role == "driver" && i%3 != 0 {
				t := time.Now().Add(-time.Duration(gofakeit.Number(1, 600)) * time.Minute)
				lastAvailable = &t
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO staff (id, name, role, specialization, is_active, last_available_at)
				VALUES ($1, $2, $3, $4, TRUE, $5)
			`, id, gofakeit.Name(), role, specialty, lastAvailable); err != nil {
				return err
			}
			if role != "operator" {
				s.staffIDs = append(s.staffIDs, id)
			}
		}
		return nil
	})
}

func (s *seeder) clients(ctx context.Context, count int) error {
	s.log.Info("seeding clients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO clients (id, name, phone, address)
				VALUES ($1, $2, $3, $4)
			`, uuid.New(), gofakeit.Name(), gofakeit.Phone(), gofakeit.Address().Address)
		}
		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		s.log.Debug("clients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}

func (s *seeder) services(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, svc := range serviceMenu {
			if _, err := tx.Exec(ctx, `
				INSERT INTO services (id, name, duration_minutes, price)
				VALUES ($1, $2, $3, $4)
			`, uuid.New(), svc.name, svc.minutes, svc.price); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *seeder) inventory(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, m := range materials {
			id := uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO inventory_items (id, name, category, current_stock, unit)
				VALUES ($1, $2, $3, $4, $5)
			`, id, m.name, m.category, m.stock, m.unit); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO inventory_usage_logs (item_id, action, quantity, stock_after)
				VALUES ($1, 'restock', $2, $2)
			`, id, m.stock); err != nil {
				return err
			}
		}
		return nil
	})
}

// slots gives every therapist and driver a shift per day. Roughly one in
// five shifts runs overnight, 20:00 to 04:00.
func (s *seeder) slots(ctx context.Context, days int) error {
	s.log.Info("seeding availability slots", zap.Int("staff", len(s.staffIDs)), zap.Int("days", days))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	batch := &pgx.Batch{}
	for _, id := range s.staffIDs {
		for d := 0; d < days; d++ {
			start, end := "09:00", "18:00"
			if gofakeit.Number(1, 5) == 1 {
				start, end = "20:00", "04:00"
			}
			batch.Queue(`
				INSERT INTO availability_slots (id, staff_id, date, start_time, end_time, is_available)
				VALUES ($1, $2, $3, $4::time, $5::time, TRUE)
			`, uuid.New(), id, today.AddDate(0, 0, d), start, end)
		}
	}
	return s.pool.SendBatch(ctx, batch).Close()
}
