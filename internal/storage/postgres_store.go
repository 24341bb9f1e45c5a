package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/ride-booking/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const insertRide = `INSERT INTO rides (
	origin_address, destination_address,
	origin_latitude, origin_longitude, destination_latitude, destination_longitude,
	ride_time, fare_price, payment_status, driver_id, user_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING ride_id, created_at`

func (p *PostgresStore) Insert(ctx context.Context, d models.RideRecordDraft) (models.RideRecord, error) {
	if err := ValidateDraft(d); err != nil {
		return models.RideRecord{}, err
	}
	r := models.RideRecord{RideRecordDraft: d}
	err := p.db.QueryRowContext(ctx, insertRide,
		d.OriginAddress, d.DestinationAddress,
		d.Origin.Latitude, d.Origin.Longitude, d.Destination.Latitude, d.Destination.Longitude,
		d.RideTimeMinutes, d.FarePriceCents, string(d.PaymentStatus), d.DriverID, d.UserID,
	).Scan(&r.RideID, &r.CreatedAt)
	if err != nil {
		return models.RideRecord{}, classify("insert ride", err)
	}
	return r, nil
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, first_name, last_name, profile_image_url, car_image_url, car_seats, rating FROM drivers ORDER BY id`)
	if err != nil {
		return nil, classify("list drivers", err)
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		var (
			d                 models.Driver
			profile, carImage sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.FirstName, &d.LastName, &profile, &carImage, &d.CarSeats, &d.Rating); err != nil {
			return nil, classify("scan driver", err)
		}
		if profile.Valid {
			d.ProfileImageURL = &profile.String
		}
		if carImage.Valid {
			d.CarImageURL = &carImage.String
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate drivers", err)
	}
	return out, nil
}

// classify maps integrity violations (SQLSTATE class 23, e.g. an unknown
// driver_id) to Validation and everything else to Unavailable.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		se := &StoreError{Kind: Validation, Err: fmt.Errorf("%s: %w", op, err)}
		if pqErr.Column != "" {
			se.Fields = []string{pqErr.Column}
		}
		return se
	}
	return &StoreError{Kind: Unavailable, Err: fmt.Errorf("%s: %w", op, err)}
}
