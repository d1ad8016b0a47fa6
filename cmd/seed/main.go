package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bloomcare/midwife-scheduling/internal/db"
	"github.com/bloomcare/midwife-scheduling/internal/logging"
	"github.com/bloomcare/midwife-scheduling/internal/notification"
	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

const schema = `
CREATE TABLE IF NOT EXISTS visits (
	seq             BIGSERIAL,
	id              UUID PRIMARY KEY,
	patient_id      UUID NOT NULL,
	provider_id     UUID NOT NULL,
	visit_type      TEXT NOT NULL,
	status          TEXT NOT NULL,
	scheduled_at    TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	timezone        TEXT NOT NULL DEFAULT 'UTC',
	location        JSONB,
	notes           TEXT NOT NULL DEFAULT '',
	attachments     JSONB,
	price_cents     BIGINT NOT NULL DEFAULT 0,
	currency        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	cancelled_at    TIMESTAMPTZ,
	cancel_reason   TEXT NOT NULL DEFAULT '',
	cancelled_by    UUID,
	rescheduled_from UUID,
	reminders       JSONB,
	metadata        JSONB
);
CREATE INDEX IF NOT EXISTS visits_provider_status_idx ON visits (provider_id, status);
CREATE INDEX IF NOT EXISTS visits_scheduled_at_idx ON visits (scheduled_at);

CREATE TABLE IF NOT EXISTS availability_slots (
	id               UUID PRIMARY KEY,
	provider_id      UUID NOT NULL,
	start_time       TIMESTAMPTZ NOT NULL,
	end_time         TIMESTAMPTZ NOT NULL,
	is_available     BOOLEAN NOT NULL DEFAULT TRUE,
	visit_types      TEXT[] NOT NULL,
	max_bookings     INT NOT NULL DEFAULT 1,
	current_bookings INT NOT NULL DEFAULT 0,
	timezone         TEXT NOT NULL DEFAULT 'UTC'
);
CREATE INDEX IF NOT EXISTS availability_provider_idx ON availability_slots (provider_id, start_time);
`

func main() {
	logger := logging.New(os.Getenv("APP_ENV"))
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := ensureSchema(context.Background(), pool); err != nil {
		logger.Fatal("apply schema", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	store := visit.NewPgStore(pool, visit.SystemClock)
	svc := visit.NewService(visit.ServiceOptions{
		Store:    store,
		Avail:    store,
		Notifier: notification.NewLogNotifier(zap.NewNop()),
		Logger:   logger,
	})

	midwives := seedAvailability(context.Background(), svc, logger, 8)
	seedVisits(context.Background(), svc, logger, midwives)

	logger.Info("seed complete")
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// seedAvailability declares two daily windows for each midwife over the next
// two weeks: a morning remote/clinic block and an afternoon block that also
// takes home visits.
func seedAvailability(ctx context.Context, svc *visit.Service, logger *zap.Logger, count int) []uuid.UUID {
	midwives := make([]uuid.UUID, count)
	for i := range midwives {
		midwives[i] = uuid.New()
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	slots := 0
	for _, id := range midwives {
		for day := 1; day <= 14; day++ {
			date := today.AddDate(0, 0, day)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}

			morning := &visit.AvailabilitySlot{
				ProviderID:  id,
				StartTime:   date.Add(9 * time.Hour),
				EndTime:     date.Add(12 * time.Hour),
				IsAvailable: true,
				VisitTypes:  []visit.Type{visit.TypeRemote, visit.TypeClinic},
				MaxBookings: 4,
				Timezone:    "UTC",
			}
			afternoon := &visit.AvailabilitySlot{
				ProviderID:  id,
				StartTime:   date.Add(13 * time.Hour),
				EndTime:     date.Add(17 * time.Hour),
				IsAvailable: true,
				VisitTypes:  []visit.Type{visit.TypeRemote, visit.TypeClinic, visit.TypeHome},
				MaxBookings: 4,
				Timezone:    "UTC",
			}
			for _, s := range []*visit.AvailabilitySlot{morning, afternoon} {
				if _, err := svc.AddAvailabilitySlot(ctx, s); err != nil {
					logger.Fatal("seed slot", zap.Error(err))
				}
				slots++
			}
		}
	}

	logger.Info("seeded availability", zap.Int("midwives", count), zap.Int("slots", slots))
	return midwives
}

// seedVisits books a handful of visits through the service so conflict
// checks and reminder generation run exactly as they would in production.
func seedVisits(ctx context.Context, svc *visit.Service, logger *zap.Logger, midwives []uuid.UUID) {
	types := []visit.Type{visit.TypeRemote, visit.TypeClinic}
	today := time.Now().UTC().Truncate(24 * time.Hour)

	booked := 0
	for _, id := range midwives {
		for attempt := 0; attempt < 6; attempt++ {
			day := gofakeit.Number(1, 14)
			hour := gofakeit.Number(9, 11)
			start := today.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)

			_, err := svc.CreateVisit(ctx, visit.CreateVisitInput{
				PatientID:       uuid.New(),
				ProviderID:      id,
				Type:            types[gofakeit.Number(0, len(types)-1)],
				ScheduledAt:     start,
				DurationMinutes: 45,
				Notes:           gofakeit.Sentence(8),
				PriceCents:      int64(gofakeit.Number(40, 120)) * 100,
				Currency:        "EUR",
				Channels:        []visit.Channel{visit.ChannelEmail, visit.ChannelSMS},
			})
			var conflictErr *visit.ConflictError
			if errors.As(err, &conflictErr) {
				// Weekend day or colliding pick, just move on.
				continue
			}
			if err != nil {
				logger.Fatal("seed visit", zap.Error(err))
			}
			booked++
		}
	}

	logger.Info("seeded visits", zap.Int("booked", booked))
}
