// Package dataset persists uploaded datasets in PostgreSQL and reads their
// rows back in upload order.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/postgres"
)

// ErrDuplicate is returned by Create when a dataset with the same
// fingerprint already exists.
var ErrDuplicate = errors.New("dataset already stored")

// Dataset is the metadata row of an upload.
type Dataset struct {
	ID          string    `json:"dataset_id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	RowCount    int       `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository struct {
	db *postgres.Client
}

func NewRepository(db *postgres.Client) *Repository {
	return &Repository{db: db}
}

// Create inserts ds and its rows in one transaction. Row ordinals are the
// slice indexes. ds.ID and ds.CreatedAt are filled in.
func (r *Repository) Create(ctx context.Context, ds *Dataset, rows []record.Row) error {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	ds.RowCount = len(rows)
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO datasets (id, name, fingerprint, row_count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (fingerprint) DO NOTHING
			RETURNING created_at`,
			ds.ID, ds.Name, ds.Fingerprint, ds.RowCount,
		).Scan(&ds.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("inserting dataset: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("dataset_rows",
			"dataset_id", "ordinal",
			record.ColumnNumber, record.ColumnContactKey, record.ColumnDate, record.ColumnProduct,
		))
		if err != nil {
			return fmt.Errorf("preparing row copy: %w", err)
		}
		for i, row := range rows {
			if _, err := stmt.ExecContext(ctx, ds.ID, i,
				row[record.ColumnNumber], row[record.ColumnContactKey],
				row[record.ColumnDate], row[record.ColumnProduct],
			); err != nil {
				stmt.Close()
				return fmt.Errorf("copying row %d: %w", i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing row copy: %w", err)
		}
		return stmt.Close()
	})
}

// FindByFingerprint returns the dataset with fingerprint fp, or nil.
func (r *Repository) FindByFingerprint(ctx context.Context, fp string) (*Dataset, error) {
	ds, err := r.scanOne(ctx, `SELECT id, name, fingerprint, row_count, created_at FROM datasets WHERE fingerprint=$1`, fp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by fingerprint: %w", err)
	}
	return ds, nil
}

// Get returns the dataset metadata or ErrDatasetNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*Dataset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound(id)
	}
	ds, err := r.scanOne(ctx, `SELECT id, name, fingerprint, row_count, created_at FROM datasets WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying dataset %s: %w", id, err)
	}
	return ds, nil
}

// Rows returns the dataset's rows ordered by ordinal. A dataset with no
// stored rows reports ErrDatasetNotFound.
func (r *Repository) Rows(ctx context.Context, id string) ([]record.Row, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound(id)
	}
	rs, err := r.db.DB.QueryContext(ctx,
		`SELECT numero_sorte, chave_contato, data, produto
		FROM dataset_rows WHERE dataset_id=$1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("querying rows of %s: %w", id, err)
	}
	defer rs.Close()

	var rows []record.Row
	for rs.Next() {
		var number, key, date, product string
		if err := rs.Scan(&number, &key, &date, &product); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rows = append(rows, record.Row{
			record.ColumnNumber:     number,
			record.ColumnContactKey: key,
			record.ColumnDate:       date,
			record.ColumnProduct:    product,
		})
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows of %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, notFound(id)
	}
	return rows, nil
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (*Dataset, error) {
	var ds Dataset
	err := r.db.DB.QueryRowContext(ctx, query, arg).
		Scan(&ds.ID, &ds.Name, &ds.Fingerprint, &ds.RowCount, &ds.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func notFound(id string) error {
	return apperrors.Newf(apperrors.ErrDatasetNotFound, http.StatusNotFound, "dataset %s", id)
}
