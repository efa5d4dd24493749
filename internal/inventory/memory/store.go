package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dejobratic/fulfillment/internal/inventory"
)

// Store keeps products in memory. Useful for local development and tests.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]inventory.Product
}

// NewStore constructs an empty in-memory product store.
func NewStore() *Store {
	return &Store{nextID: 1, products: make(map[int64]inventory.Product)}
}

// Seed inserts a product with a fixed identifier, replacing any existing entry.
func (s *Store) Seed(product inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	if product.ID >= s.nextID {
		s.nextID = product.ID + 1
	}
}

func (s *Store) GetByID(_ context.Context, id int64) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[id]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	copy := product
	return &copy, nil
}

func (s *Store) Create(_ context.Context, product inventory.Product) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.ID = s.nextID
	s.nextID++
	product.CreatedAt = time.Now().UTC()
	s.products[product.ID] = product

	copy := product
	return &copy, nil
}

func (s *Store) Patch(_ context.Context, id int64, patch inventory.Patch) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}

	if patch.SKU != nil {
		product.SKU = *patch.SKU
	}
	if patch.Name != nil {
		product.Name = *patch.Name
	}
	if patch.PriceCents != nil {
		product.PriceCents = *patch.PriceCents
	}
	if patch.Stock != nil {
		product.Stock = *patch.Stock
	}

	s.products[id] = product
	copy := product
	return &copy, nil
}

func (s *Store) List(_ context.Context, filter inventory.ListFilter) ([]inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []inventory.Product
	search := strings.ToLower(filter.Search)
	for _, product := range s.products {
		if search != "" &&
			!strings.Contains(strings.ToLower(product.Name), search) &&
			!strings.Contains(strings.ToLower(product.SKU), search) {
			continue
		}
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []inventory.Product{}, nil
	}

	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}

	slice := make([]inventory.Product, end-start)
	copy(slice, result[start:end])

	return slice, nil
}

func (s *Store) DecrementIfAvailable(_ context.Context, id int64, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if product.Stock < qty {
		return &inventory.InsufficientStockError{ProductID: id}
	}

	product.Stock -= qty
	s.products[id] = product
	return nil
}

func (s *Store) Increment(_ context.Context, id int64, qty int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}

	product.Stock += qty
	s.products[id] = product
	return nil
}
