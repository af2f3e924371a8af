package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// MonthlyRevenue is rental revenue grouped by calendar month.
type MonthlyRevenue struct {
	Month   string  `json:"mes"`
	Revenue float64 `json:"receita"`
	Budgets int     `json:"orcamentos"`
}

// StatusCount is the number of budget groups per status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"total"`
}

// TopProduct is a product ranked by confirmed rented quantity.
type TopProduct struct {
	ProductID int64   `json:"id_produto"`
	Name      string  `json:"nome"`
	Quantity  int     `json:"quantidade"`
	Revenue   float64 `json:"receita"`
}

// Querier defines the database access required for analytics operations.
type Querier interface {
	RevenueMonthly(ctx context.Context, from, to time.Time) ([]MonthlyRevenue, error)
	StatusCounts(ctx context.Context) ([]StatusCount, error)
	TopProducts(ctx context.Context, limit, offset int) ([]TopProduct, error)
}

// Repo answers analytics queries straight from the reservas flat rows.
type Repo struct {
	DB db.DBTX
}

// RevenueMonthly sums confirmed group totals per month. Freight and discount
// are group-level, so they are counted once per group, not once per row.
func (r *Repo) RevenueMonthly(ctx context.Context, from, to time.Time) ([]MonthlyRevenue, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT to_char(g.data_inicio, 'YYYY-MM') AS mes,
		       SUM(g.total + g.frete - g.desconto) AS receita,
		       COUNT(*) AS orcamentos
		FROM (
			SELECT id_reserva,
			       MIN(data_inicio) AS data_inicio,
			       SUM(valor_total) AS total,
			       MIN(frete) AS frete,
			       MIN(desconto) AS desconto
			FROM reservas
			WHERE status = 'CONFIRMED' AND data_inicio >= $1 AND data_inicio < $2
			GROUP BY id_reserva
		) g
		GROUP BY mes
		ORDER BY mes`, from, to)
	if err != nil {
		return nil, fmt.Errorf("revenue monthly: %w", err)
	}
	defer rows.Close()

	out := []MonthlyRevenue{}
	for rows.Next() {
		var m MonthlyRevenue
		if err := rows.Scan(&m.Month, &m.Revenue, &m.Budgets); err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// StatusCounts counts distinct budget groups per status.
func (r *Repo) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT status, COUNT(DISTINCT id_reserva)
		FROM reservas
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	out := []StatusCount{}
	for rows.Next() {
		var s StatusCount
		if err := rows.Scan(&s.Status, &s.Count); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TopProducts ranks products by confirmed rented quantity.
func (r *Repo) TopProducts(ctx context.Context, limit, offset int) ([]TopProduct, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.nome, SUM(r.quantidade) AS quantidade, SUM(r.valor_total) AS receita
		FROM reservas r
		JOIN produtos p ON p.id = r.id_produto
		WHERE r.status = 'CONFIRMED'
		GROUP BY p.id, p.nome
		ORDER BY quantidade DESC, p.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	out := []TopProduct{}
	for rows.Next() {
		var t TopProduct
		if err := rows.Scan(&t.ProductID, &t.Name, &t.Quantity, &t.Revenue); err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Service provides cached access to rental analytics.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Revenue returns monthly revenue between the provided bounds, from inclusive
// and to exclusive.
func (s *Service) Revenue(ctx context.Context, from, to time.Time) ([]MonthlyRevenue, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "revenue", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if rows, ok := getCached[[]MonthlyRevenue](ctx, s, key); ok {
		return rows, nil
	}
	rows, err := s.Q.RevenueMonthly(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// Statuses returns how many budget groups sit in each status.
func (s *Service) Statuses(ctx context.Context) ([]StatusCount, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "status")
	if rows, ok := getCached[[]StatusCount](ctx, s, key); ok {
		return rows, nil
	}
	rows, err := s.Q.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// TopProducts returns paginated top-rented products ordered by quantity.
func (s *Service) TopProducts(ctx context.Context, limit, offset int) ([]TopProduct, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	key := cacheKey("an", "top", limit, offset)
	if rows, ok := getCached[[]TopProduct](ctx, s, key); ok {
		return rows, nil
	}
	rows, err := s.Q.TopProducts(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func getCached[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var zero T
	if s.R == nil || s.TTL <= 0 {
		return zero, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return zero, false
	}
	var rows T
	if err := json.Unmarshal(data, &rows); err != nil {
		return zero, false
	}
	return rows, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
