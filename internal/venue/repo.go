package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// ErrNotFound indicates the venue does not exist.
var ErrNotFound = errors.New("venue not found")

// Venue is an event location as stored in locais.
type Venue struct {
	ID          int64     `json:"id"`
	Name        string    `json:"nome"`
	Address     *string   `json:"endereco"`
	City        *string   `json:"cidade"`
	Capacity    *int      `json:"capacidade"`
	Description *string   `json:"descricao"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repo persists venues in Postgres.
type Repo struct {
	DB db.DBTX
}

const venueColumns = `id, nome, endereco, cidade, capacidade, descricao, created_at, updated_at`

func (r *Repo) List(ctx context.Context, search string, limit, offset int) ([]Venue, int, error) {
	where := ``
	args := []any{}
	if search != "" {
		where = `WHERE nome ILIKE $1 OR cidade ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM locais `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count venues: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM locais %s ORDER BY nome ASC LIMIT $%d OFFSET $%d`,
		venueColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	venues := []Venue{}
	for rows.Next() {
		var v Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.Capacity, &v.Description,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	return venues, total, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id int64) (Venue, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+venueColumns+` FROM locais WHERE id = $1`, id)
	return scanVenue(row)
}

func (r *Repo) Create(ctx context.Context, v Venue) (Venue, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO locais (nome, endereco, cidade, capacidade, descricao)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+venueColumns,
		v.Name, v.Address, v.City, v.Capacity, v.Description)
	return scanVenue(row)
}

func (r *Repo) Update(ctx context.Context, v Venue) (Venue, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE locais
		SET nome = $2, endereco = $3, cidade = $4, capacidade = $5, descricao = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+venueColumns,
		v.ID, v.Name, v.Address, v.City, v.Capacity, v.Description)
	return scanVenue(row)
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM locais WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete venue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVenue(row pgx.Row) (Venue, error) {
	var v Venue
	err := row.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.Capacity, &v.Description,
		&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Venue{}, ErrNotFound
	}
	if err != nil {
		return Venue{}, fmt.Errorf("scan venue: %w", err)
	}
	return v, nil
}
