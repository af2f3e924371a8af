package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// ErrAccountNotFound indicates no account matches the lookup.
var ErrAccountNotFound = errors.New("account not found")

// ErrEmailTaken indicates the email already belongs to another account.
var ErrEmailTaken = errors.New("email already registered")

// Account is an operator login stored in usuarios.
type Account struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repo persists accounts.
type Repo struct {
	DB db.DBTX
}

const accountColumns = `id, nome, email, senha_hash, criado_em, atualizado_em`

// Create inserts a new account and returns the stored row.
func (r *Repo) Create(ctx context.Context, name, email, passwordHash string) (Account, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO usuarios (nome, email, senha_hash)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns,
		name, email, passwordHash,
	)
	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetByEmail fetches an account by its normalized email.
func (r *Repo) GetByEmail(ctx context.Context, email string) (Account, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM usuarios
		WHERE email = $1`,
		email,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account by email: %w", err)
	}
	return account, nil
}

// GetByID fetches an account by its identifier.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM usuarios
		WHERE id = $1`,
		id,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get account by id: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
