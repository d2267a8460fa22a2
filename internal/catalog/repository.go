package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines product storage.
type Repository interface {
	ListActive(ctx context.Context) ([]Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, in ProductInput) (*Product, error)
	Update(ctx context.Context, id string, in ProductInput) (*Product, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetImageURL(ctx context.Context, id, url string) error
}

// InMemoryRepository keeps products in a map; used by tests and the simulator.
type InMemoryRepository struct {
	mu       sync.RWMutex
	products map[string]*Product
}

func NewInMemoryRepository(seed ...Product) *InMemoryRepository {
	repo := &InMemoryRepository{products: make(map[string]*Product)}
	for i := range seed {
		p := seed[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		repo.products[p.ID] = &p
	}
	return repo
}

func (r *InMemoryRepository) ListActive(ctx context.Context) ([]Product, error) {
	return r.List(ctx, ListFilter{OnlyActive: true})
}

func (r *InMemoryRepository) List(_ context.Context, filter ListFilter) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.OnlyActive && !p.Active {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(filter.Category, p.Category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Product{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) Create(_ context.Context, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		Unit:        in.Unit,
		Active:      in.active(),
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.mu.Lock()
	r.products[p.ID] = p
	r.mu.Unlock()
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) Update(_ context.Context, id string, in ProductInput) (*Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Category = in.Category
	p.Price = in.Price
	p.Unit = in.Unit
	p.Active = in.active()
	if in.ImageURL != "" {
		p.ImageURL = in.ImageURL
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Active = active
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) SetImageURL(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.ImageURL = url
	p.UpdatedAt = time.Now().UTC()
	return nil
}
