package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// ErrNotFound indicates the requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a rentable catalog item. Monetary columns are nullable: a
// product without a daily price rents for zero, it is not an error.
type Product struct {
	ID               int64      `json:"id"`
	Name             string     `json:"nome"`
	DailyPrice       *float64   `json:"valor_diaria"`
	ReplacementValue *float64   `json:"valor_danificacao"`
	OwnedQty         int        `json:"quantidade_total"`
	Description      *string    `json:"descricao,omitempty"`
	Active           bool       `json:"ativo"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Repo persists products.
type Repo struct {
	DB db.DBTX
}

const productColumns = `id, nome, valor_diaria, valor_danificacao, quantidade_total, descricao, ativo, created_at, updated_at`

// List returns active products matching the optional search term, newest
// first, with the total count for pagination.
func (r Repo) List(ctx context.Context, search string, limit, offset int) ([]Product, int, error) {
	where := `WHERE ativo`
	args := []any{}
	if term := strings.TrimSpace(search); term != "" {
		where += ` AND nome ILIKE '%' || $1 || '%'`
		args = append(args, term)
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM produtos `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM produtos %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// All returns every active product. Used to build the pricing lookup.
func (r Repo) All(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM produtos WHERE ativo ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Get returns a product by id, including inactive ones.
func (r Repo) Get(ctx context.Context, id int64) (Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM produtos WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// Create inserts a product and returns it with generated fields.
func (r Repo) Create(ctx context.Context, p Product) (Product, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO produtos (nome, valor_diaria, valor_danificacao, quantidade_total, descricao, ativo)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING `+productColumns,
		p.Name, p.DailyPrice, p.ReplacementValue, p.OwnedQty, p.Description)
	created, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// Update overwrites the mutable fields of a product.
func (r Repo) Update(ctx context.Context, p Product) (Product, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE produtos
		SET nome = $2, valor_diaria = $3, valor_danificacao = $4, quantidade_total = $5, descricao = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.DailyPrice, p.ReplacementValue, p.OwnedQty, p.Description)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// Deactivate soft-deletes a product so historical quotes keep resolving it.
func (r Repo) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, `UPDATE produtos SET ativo = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	products := make([]Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.DailyPrice, &p.ReplacementValue, &p.OwnedQty, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
