package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NordicHPC/sonar/internal/aggregate"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertUsageTotal(runAt time.Time, row UsageTotal) error {
	_, err := r.db.Exec(context.Background(),
		`INSERT INTO usage_totals (run_at, app, username, cpu_load, reserved_cores, unmapped)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		runAt, row.App, row.User, row.CPULoad, row.Reserved, row.Unmapped)
	return err
}

func (r *Repository) UpsertDailyLoad(row DailyLoad) error {
	_, err := r.db.Exec(context.Background(),
		`INSERT INTO daily_load (date, app, cpu_load)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (date, app) DO UPDATE SET cpu_load = EXCLUDED.cpu_load`,
		row.Date, row.App, row.Load)
	return err
}

// StoreRun persists one accumulator for the dashboard database: the
// per-(app,user) usage totals of both namespaces and the per-day
// per-application load table.
func (r *Repository) StoreRun(acc *aggregate.Accumulator) error {
	runAt := time.Now().UTC()

	store := func(u aggregate.Usage, unmapped bool) error {
		for k, load := range u.CPULoad {
			row := UsageTotal{
				App:      k.App,
				User:     k.User,
				CPULoad:  load,
				Reserved: u.CPUReserved[k],
				Unmapped: unmapped,
			}
			if err := r.InsertUsageTotal(runAt, row); err != nil {
				return fmt.Errorf("failed to store usage total for %s/%s: %w", k.App, k.User, err)
			}
		}
		return nil
	}
	if err := store(acc.Mapped, false); err != nil {
		return err
	}
	if err := store(acc.Unmapped, true); err != nil {
		return err
	}

	dates := make([]string, 0, len(acc.DailyLoad))
	for date := range acc.DailyLoad {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return fmt.Errorf("failed to parse daily load date %q: %w", date, err)
		}
		for app, load := range acc.DailyLoad[date] {
			if err := r.UpsertDailyLoad(DailyLoad{Date: d, App: app, Load: load}); err != nil {
				return fmt.Errorf("failed to store daily load for %s on %s: %w", app, date, err)
			}
		}
	}

	return nil
}
