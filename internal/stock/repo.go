package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// ErrProductNotFound indicates the referenced product does not exist.
var ErrProductNotFound = errors.New("product not found")

// Movement kinds recorded in the ledger.
const (
	KindOut    = "saida"
	KindReturn = "devolucao"
	KindAdjust = "ajuste"
)

// Movement is one row of the stock ledger.
type Movement struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"id_produto"`
	ReservationID *int64    `json:"id_reserva"`
	Kind          string    `json:"tipo"`
	Quantity      int       `json:"quantidade"`
	Notes         *string   `json:"observacoes"`
	CreatedAt     time.Time `json:"created_at"`
}

// Repo persists stock movements and answers availability queries.
type Repo struct {
	DB db.DBTX
}

const movementColumns = `id, id_produto, id_reserva, tipo, quantidade, observacoes, created_at`

// Insert appends a movement to the ledger.
func (r *Repo) Insert(ctx context.Context, m Movement) (Movement, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO movimentacoes_estoque (id_produto, id_reserva, tipo, quantidade, observacoes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+movementColumns,
		m.ProductID, m.ReservationID, m.Kind, m.Quantity, m.Notes)
	var out Movement
	err := row.Scan(&out.ID, &out.ProductID, &out.ReservationID, &out.Kind,
		&out.Quantity, &out.Notes, &out.CreatedAt)
	if err != nil {
		return Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	return out, nil
}

// ListByProduct returns the most recent movements for a product.
func (r *Repo) ListByProduct(ctx context.Context, productID int64, limit, offset int) ([]Movement, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM movimentacoes_estoque WHERE id_produto = $1`, productID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+movementColumns+`
		FROM movimentacoes_estoque
		WHERE id_produto = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ReservationID, &m.Kind,
			&m.Quantity, &m.Notes, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

// OwnedQty returns the total owned quantity for a product.
func (r *Repo) OwnedQty(ctx context.Context, productID int64) (int, error) {
	var owned int
	err := r.DB.QueryRow(ctx,
		`SELECT quantidade_total FROM produtos WHERE id = $1 AND ativo = TRUE`, productID).Scan(&owned)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("owned quantity: %w", err)
	}
	return owned, nil
}

// ReservedQty sums confirmed reservation lines for a product whose rental
// window overlaps [start, end].
func (r *Repo) ReservedQty(ctx context.Context, productID int64, start, end time.Time) (int, error) {
	var reserved int
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantidade), 0)
		FROM reservas
		WHERE id_produto = $1
		  AND status = 'CONFIRMED'
		  AND data_inicio <= $3
		  AND data_fim >= $2`, productID, start, end).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("reserved quantity: %w", err)
	}
	return reserved, nil
}
