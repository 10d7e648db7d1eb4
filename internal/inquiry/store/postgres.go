package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"gatekeeper/internal/datagateway"
	"gatekeeper/internal/inquiry"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Postgres stores inquiries in the inquiries table. Every statement runs
// through the data gateway so transient connection failures are retried.
type Postgres struct {
	db      *sql.DB
	gateway *datagateway.Gateway
}

func NewPostgres(db *sql.DB, gateway *datagateway.Gateway) *Postgres {
	if gateway == nil {
		gateway = datagateway.New()
	}
	return &Postgres{db: db, gateway: gateway}
}

const uniqueViolation = "23505"

func (s *Postgres) Create(ctx context.Context, inq inquiry.Inquiry) error {
	err := s.gateway.Exec(ctx, "inquiries.create", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO inquiries (id, name, email, phone, company, vehicle_id, message, status, source_ip, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, inq.ID, inq.Name, inq.Email, inq.Phone, inq.Company, inq.VehicleID, inq.Message,
			string(inq.Status), inq.SourceIP, inq.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert inquiry: %w", err)
		}
		return nil
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return dErrors.Wrap(err, dErrors.CodeConflict, "inquiry already exists")
	}
	return err
}

func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*inquiry.Inquiry, error) {
	inq, err := datagateway.Run(ctx, s.gateway, "inquiries.get", func(ctx context.Context) (*inquiry.Inquiry, error) {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, name, email, phone, company, vehicle_id, message, status, source_ip, created_at
			FROM inquiries WHERE id = $1
		`, id)
		return scanInquiry(row)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "inquiry not found")
	}
	return inq, err
}

func (s *Postgres) List(ctx context.Context, f inquiry.Filter) (inquiry.Page, error) {
	return datagateway.Run(ctx, s.gateway, "inquiries.list", func(ctx context.Context) (inquiry.Page, error) {
		page := inquiry.Page{Items: []inquiry.Inquiry{}}
		status := string(f.Status)

		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM inquiries WHERE $1 = '' OR status = $1
		`, status).Scan(&page.Total); err != nil {
			return inquiry.Page{}, fmt.Errorf("count inquiries: %w", err)
		}

		limit := f.Limit
		if limit <= 0 {
			limit = page.Total
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, email, phone, company, vehicle_id, message, status, source_ip, created_at
			FROM inquiries
			WHERE $1 = '' OR status = $1
			ORDER BY created_at DESC, id
			LIMIT $2 OFFSET $3
		`, status, limit, f.Offset)
		if err != nil {
			return inquiry.Page{}, fmt.Errorf("list inquiries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			inq, err := scanInquiry(rows)
			if err != nil {
				return inquiry.Page{}, err
			}
			page.Items = append(page.Items, *inq)
		}
		return page, rows.Err()
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInquiry(row scanner) (*inquiry.Inquiry, error) {
	var (
		inq    inquiry.Inquiry
		status string
	)
	if err := row.Scan(&inq.ID, &inq.Name, &inq.Email, &inq.Phone, &inq.Company, &inq.VehicleID,
		&inq.Message, &status, &inq.SourceIP, &inq.CreatedAt); err != nil {
		return nil, err
	}
	inq.Status = inquiry.Status(status)
	inq.CreatedAt = inq.CreatedAt.UTC()
	return &inq, nil
}

var _ inquiry.Store = (*Postgres)(nil)
