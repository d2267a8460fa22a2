package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores products in the produtos table.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository accepts a *pgxpool.Pool or any compatible querier.
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const productColumns = `id, nome, COALESCE(descricao, ''), COALESCE(categoria, ''), preco::text, COALESCE(unidade, ''), ativo, COALESCE(imagem_url, ''), created_at, updated_at`

func (r *PostgresRepository) ListActive(ctx context.Context) ([]Product, error) {
	return r.List(ctx, ListFilter{OnlyActive: true})
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.OnlyActive {
		where = append(where, "ativo = TRUE")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("LOWER(categoria) = LOWER($%d)", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("nome ILIKE $%d", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM produtos`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY nome ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate products: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM produtos WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	row := r.db.QueryRow(ctx, `
		INSERT INTO produtos (id, nome, descricao, categoria, preco, unidade, ativo, imagem_url)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		RETURNING `+productColumns,
		id, in.Name, in.Description, in.Category, in.Price.String(), in.Unit, in.active(), in.ImageURL,
	)
	p, err := scanProduct(row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `
		UPDATE produtos
		SET nome = $2, descricao = $3, categoria = $4, preco = $5::numeric, unidade = $6, ativo = $7,
		    imagem_url = COALESCE(NULLIF($8, ''), imagem_url), updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns,
		id, in.Name, in.Description, in.Category, in.Price.String(), in.Unit, in.active(), in.ImageURL,
	)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE produtos SET ativo = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("catalog: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *PostgresRepository) SetImageURL(ctx context.Context, id, url string) error {
	tag, err := r.db.Exec(ctx, `UPDATE produtos SET imagem_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("catalog: set image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &price, &p.Unit, &p.Active, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("catalog: scan product: %w", err)
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: parse price %q: %w", price, err)
	}
	p.Price = parsed
	return p, nil
}
