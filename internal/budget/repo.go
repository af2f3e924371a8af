package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
	"github.com/PILOTO-ORG/cunha-sub000/internal/pricing"
)

// ErrNotFound indicates the budget group does not exist.
var ErrNotFound = errors.New("budget not found")

// Budget lifecycle statuses. A budget and its reservation are the same rows;
// confirming a budget is what turns it into an effective reservation.
const (
	StatusDraft     = "DRAFT"
	StatusSent      = "SENT"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

const dateLayout = "2006-01-02"

// Line is one stored row of a budget group: one product with its priced
// fields, plus the group-level fields duplicated onto every row.
type Line struct {
	ID         int64     `json:"id_item"`
	GroupID    int64     `json:"id_reserva"`
	ClientID   int64     `json:"id_cliente"`
	VenueID    int64     `json:"id_local"`
	ProductID  int64     `json:"id_produto"`
	Quantity   int       `json:"quantidade"`
	Start      time.Time `json:"data_inicio"`
	End        time.Time `json:"data_fim"`
	Status     string    `json:"status"`
	Freight    float64   `json:"frete"`
	Discount   float64   `json:"desconto"`
	DepositPct float64   `json:"percentual_caucao"`
	Days       int       `json:"dias_locacao"`
	UnitPrice  float64   `json:"valor_unitario"`
	LineTotal  float64   `json:"valor_total"`
	Notes      string    `json:"observacoes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Flat converts a stored line to the shape the aggregator consumes.
func (l Line) Flat() pricing.FlatLine {
	return pricing.FlatLine{
		LineID:       l.ID,
		GroupID:      l.GroupID,
		ClientID:     l.ClientID,
		VenueID:      l.VenueID,
		ProductID:    l.ProductID,
		Quantity:     l.Quantity,
		Start:        l.Start.Format(dateLayout),
		End:          l.End.Format(dateLayout),
		Status:       l.Status,
		Freight:      l.Freight,
		Discount:     l.Discount,
		Observations: l.Notes,
	}
}

// Repo persists budget groups as flat rows in the reservas table.
type Repo struct {
	DB db.DBTX
}

const lineColumns = `id, id_reserva, id_cliente, id_local, id_produto, quantidade,
	data_inicio, data_fim, status, frete, desconto, percentual_caucao,
	dias_locacao, valor_unitario, valor_total, observacoes, created_at, updated_at`

// NextGroupID reserves a fresh group id.
func (r *Repo) NextGroupID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRow(ctx, `SELECT nextval('reservas_grupo_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next group id: %w", err)
	}
	return id, nil
}

// InsertLines stores every row of a group.
func (r *Repo) InsertLines(ctx context.Context, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		row := r.DB.QueryRow(ctx, `
			INSERT INTO reservas (id_reserva, id_cliente, id_local, id_produto, quantidade,
				data_inicio, data_fim, status, frete, desconto, percentual_caucao,
				dias_locacao, valor_unitario, valor_total, observacoes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING `+lineColumns,
			l.GroupID, l.ClientID, l.VenueID, l.ProductID, l.Quantity,
			l.Start, l.End, l.Status, l.Freight, l.Discount, l.DepositPct,
			l.Days, l.UnitPrice, l.LineTotal, l.Notes)
		stored, err := scanLine(row)
		if err != nil {
			return nil, fmt.Errorf("insert budget line: %w", err)
		}
		out = append(out, stored)
	}
	return out, nil
}

// LinesByGroup returns every row of a group in insertion order.
func (r *Repo) LinesByGroup(ctx context.Context, groupID int64) ([]Line, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+lineColumns+` FROM reservas WHERE id_reserva = $1 ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("load budget lines: %w", err)
	}
	defer rows.Close()
	return scanLines(rows)
}

// ListFilter narrows the flat-line listing.
type ListFilter struct {
	Status   string
	ClientID int64
	// MaxLines bounds how many rows feed the aggregation pass.
	MaxLines int
}

// Lines returns recent flat rows, newest groups first by insertion.
func (r *Repo) Lines(ctx context.Context, f ListFilter) ([]Line, error) {
	query := `SELECT ` + lineColumns + ` FROM reservas`
	args := []any{}
	where := ``
	if f.Status != "" {
		args = append(args, f.Status)
		where = fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	if f.ClientID > 0 {
		args = append(args, f.ClientID)
		if where == "" {
			where = fmt.Sprintf(` WHERE id_cliente = $%d`, len(args))
		} else {
			where += fmt.Sprintf(` AND id_cliente = $%d`, len(args))
		}
	}
	limit := f.MaxLines
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += where + fmt.Sprintf(` ORDER BY id_reserva DESC, id ASC LIMIT $%d`, len(args))

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budget lines: %w", err)
	}
	defer rows.Close()
	return scanLines(rows)
}

// GroupStatus returns the status shared by a group's rows.
func (r *Repo) GroupStatus(ctx context.Context, groupID int64) (string, error) {
	var status string
	err := r.DB.QueryRow(ctx,
		`SELECT status FROM reservas WHERE id_reserva = $1 LIMIT 1`, groupID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("group status: %w", err)
	}
	return status, nil
}

// UpdateGroupStatus moves every row of a group from one of the allowed
// statuses to the target. It reports how many rows changed.
func (r *Repo) UpdateGroupStatus(ctx context.Context, groupID int64, allowedFrom []string, to string) (int64, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE reservas
		SET status = $3, updated_at = NOW()
		WHERE id_reserva = $1 AND status = ANY($2)`, groupID, allowedFrom, to)
	if err != nil {
		return 0, fmt.Errorf("update group status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.GroupID, &l.ClientID, &l.VenueID, &l.ProductID, &l.Quantity,
			&l.Start, &l.End, &l.Status, &l.Freight, &l.Discount, &l.DepositPct,
			&l.Days, &l.UnitPrice, &l.LineTotal, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanLine(row pgx.Row) (Line, error) {
	var l Line
	err := row.Scan(&l.ID, &l.GroupID, &l.ClientID, &l.VenueID, &l.ProductID, &l.Quantity,
		&l.Start, &l.End, &l.Status, &l.Freight, &l.Discount, &l.DepositPct,
		&l.Days, &l.UnitPrice, &l.LineTotal, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, ErrNotFound
	}
	return l, err
}
