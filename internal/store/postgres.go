package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
)

// PostgresStore persists jobs and courier locations. Conditional updates run
// inside a row-locking transaction so concurrent acceptance attempts resolve
// at the data layer, not via application locks.
type PostgresStore struct {
	db *sql.DB

	jobWatcher    JobWatcher
	sampleWatcher SampleWatcher
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) WatchJobs(w JobWatcher)       { p.jobWatcher = w }
func (p *PostgresStore) WatchSamples(w SampleWatcher) { p.sampleWatcher = w }

const jobColumns = `id, requester_id, courier_id, category, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	price, distance_km, eta_minutes, status, created_at, accepted_at, collected_at, in_progress_at, completed_at, cancelled_at`

func (p *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`)
		VALUES($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		job.ID, job.RequesterID, job.CourierID, string(job.Category),
		job.Pickup.Lat, job.Pickup.Lng, job.Dropoff.Lat, job.Dropoff.Lng,
		job.Price, job.DistanceKm, job.EtaMinutes, string(job.Status),
		job.CreatedAt, job.AcceptedAt, job.CollectedAt, job.InProgressAt, job.CompletedAt, job.CancelledAt)
	if err != nil {
		return err
	}
	if p.jobWatcher != nil {
		p.jobWatcher(*job)
	}
	return nil
}

func (p *PostgresStore) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	return scanJob(row)
}

func (p *PostgresStore) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=$1 ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateJobIf(ctx context.Context, id string, cond Cond, mutate func(*models.Job)) (models.Job, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Job{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if err != nil {
		return models.Job{}, err
	}
	if job.Status != cond.Status || (cond.CourierEmpty && job.CourierID != "") {
		return models.Job{}, ErrConflict
	}

	mutate(&job)
	_, err = tx.ExecContext(ctx, `UPDATE jobs SET courier_id=NULLIF($1,''), distance_km=$2, eta_minutes=$3, status=$4,
		accepted_at=$5, collected_at=$6, in_progress_at=$7, completed_at=$8, cancelled_at=$9 WHERE id=$10`,
		job.CourierID, job.DistanceKm, job.EtaMinutes, string(job.Status),
		job.AcceptedAt, job.CollectedAt, job.InProgressAt, job.CompletedAt, job.CancelledAt, id)
	if err != nil {
		return models.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Job{}, err
	}
	if p.jobWatcher != nil {
		p.jobWatcher(job)
	}
	return job, nil
}

func (p *PostgresStore) UpsertSample(ctx context.Context, sample models.LocationSample) (bool, error) {
	// Out-of-order samples lose at the row level: the update only applies
	// when the incoming capture time is newer.
	res, err := p.db.ExecContext(ctx, `INSERT INTO courier_locations(courier_id, lat, lng, accuracy_m, captured_at)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (courier_id) DO UPDATE
		SET lat=EXCLUDED.lat, lng=EXCLUDED.lng, accuracy_m=EXCLUDED.accuracy_m, captured_at=EXCLUDED.captured_at
		WHERE EXCLUDED.captured_at > courier_locations.captured_at`,
		sample.CourierID, sample.Lat, sample.Lng, sample.AccuracyM, sample.CapturedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if p.sampleWatcher != nil {
		p.sampleWatcher(sample)
	}
	return true, nil
}

func (p *PostgresStore) GetSample(ctx context.Context, courierID string) (models.LocationSample, error) {
	var s models.LocationSample
	err := p.db.QueryRowContext(ctx, `SELECT courier_id, lat, lng, accuracy_m, captured_at FROM courier_locations WHERE courier_id=$1`,
		courierID).Scan(&s.CourierID, &s.Lat, &s.Lng, &s.AccuracyM, &s.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LocationSample{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.LocationSample{}, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		job       models.Job
		courierID sql.NullString
		category  string
		status    string
		created   time.Time
	)
	err := row.Scan(&job.ID, &job.RequesterID, &courierID, &category,
		&job.Pickup.Lat, &job.Pickup.Lng, &job.Dropoff.Lat, &job.Dropoff.Lng,
		&job.Price, &job.DistanceKm, &job.EtaMinutes, &status,
		&created, &job.AcceptedAt, &job.CollectedAt, &job.InProgressAt, &job.CompletedAt, &job.CancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Job{}, err
	}
	job.CourierID = courierID.String
	job.Category = models.Category(category)
	job.Status = models.JobStatus(status)
	job.CreatedAt = created
	return job, nil
}
