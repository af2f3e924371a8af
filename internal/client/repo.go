package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// ErrNotFound indicates the client does not exist.
var ErrNotFound = errors.New("client not found")

// ErrDuplicateDocument indicates another client already uses the document.
var ErrDuplicateDocument = errors.New("document already registered")

// Client is a customer record as stored in clientes.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"nome"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"telefone"`
	Document  *string   `json:"documento"`
	Address   *string   `json:"endereco"`
	City      *string   `json:"cidade"`
	ZipCode   *string   `json:"cep"`
	Notes     *string   `json:"observacoes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repo persists clients in Postgres.
type Repo struct {
	DB db.DBTX
}

const clientColumns = `id, nome, email, telefone, documento, endereco, cidade, cep, observacoes, created_at, updated_at`

func (r *Repo) List(ctx context.Context, search string, limit, offset int) ([]Client, int, error) {
	where := ``
	args := []any{}
	if search != "" {
		where = `WHERE nome ILIKE $1 OR documento ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM clientes ` + where
	if err := r.DB.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM clientes %s ORDER BY nome ASC LIMIT $%d OFFSET $%d`,
		clientColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients, err := scanClients(rows)
	if err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}

func (r *Repo) All(ctx context.Context) ([]Client, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+clientColumns+` FROM clientes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

func (r *Repo) Get(ctx context.Context, id int64) (Client, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE id = $1`, id)
	return scanClient(row)
}

func (r *Repo) Create(ctx context.Context, c Client) (Client, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO clientes (nome, email, telefone, documento, endereco, cidade, cep, observacoes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+clientColumns,
		c.Name, c.Email, c.Phone, c.Document, c.Address, c.City, c.ZipCode, c.Notes)
	created, err := scanClient(row)
	if err != nil {
		return Client{}, mapWriteError(err)
	}
	return created, nil
}

func (r *Repo) Update(ctx context.Context, c Client) (Client, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE clientes
		SET nome = $2, email = $3, telefone = $4, documento = $5,
		    endereco = $6, cidade = $7, cep = $8, observacoes = $9,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+clientColumns,
		c.ID, c.Name, c.Email, c.Phone, c.Document, c.Address, c.City, c.ZipCode, c.Notes)
	updated, err := scanClient(row)
	if err != nil {
		return Client{}, mapWriteError(err)
	}
	return updated, nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM clientes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicateDocument
	}
	return err
}

func scanClients(rows pgx.Rows) ([]Client, error) {
	clients := []Client{}
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Document, &c.Address,
			&c.City, &c.ZipCode, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Document, &c.Address,
		&c.City, &c.ZipCode, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("scan client: %w", err)
	}
	return c, nil
}
