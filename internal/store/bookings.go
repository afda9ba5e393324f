package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const bookingColumns = `id, name, email, phone, preferred_at, message, created_at`

type CreateBookingParams struct {
	Name        string
	Email       string
	Phone       string
	PreferredAt *time.Time
	Message     string
}

// CreateBooking stores an appointment request. Name and email are required.
func CreateBooking(ctx context.Context, db sqlx.ExtContext, p CreateBookingParams) (*models.Booking, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	p.Message = strings.TrimSpace(p.Message)

	if err := checkVar("name", p.Name, "required,max=200"); err != nil {
		return nil, err
	}
	if err := checkVar("email", p.Email, "required,email,max=254"); err != nil {
		return nil, err
	}
	if err := checkVar("phone", p.Phone, "omitempty,min=6,max=20"); err != nil {
		return nil, err
	}

	booking := &models.Booking{}
	err := sqlx.GetContext(ctx, db, booking,
		`INSERT INTO bookings (name, email, phone, preferred_at, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING `+bookingColumns,
		p.Name, p.Email, p.Phone, p.PreferredAt, p.Message)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	return booking, nil
}

func GetBooking(ctx context.Context, db sqlx.QueryerContext, id int64) (*models.Booking, error) {
	booking := &models.Booking{}

	if err := sqlx.GetContext(ctx, db, booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	return booking, nil
}

// BookingLog binds booking writes to a database handle.
type BookingLog struct {
	db *sqlx.DB
}

func NewBookingLog(db *sqlx.DB) *BookingLog {
	return &BookingLog{db: db}
}

func (b *BookingLog) CreateBooking(ctx context.Context, p CreateBookingParams) (*models.Booking, error) {
	return CreateBooking(ctx, b.db, p)
}
