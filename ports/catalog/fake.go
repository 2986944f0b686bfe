package catalog

import (
	"context"
	"fmt"
	"sync"
)

// FakeService serves scripted products. Search pages are 1-based slices per
// query; ProductByID resolves from the product table.
type FakeService struct {
	mu       sync.Mutex
	products map[int64]Product
	results  map[string][]Product

	// SearchErr and LookupErr, when set, fail the respective calls.
	SearchErr error
	LookupErr error
}

// NewFakeService returns an empty scripted catalog.
func NewFakeService() *FakeService {
	return &FakeService{
		products: make(map[int64]Product),
		results:  make(map[string][]Product),
	}
}

// AddProduct registers p for ProductByID lookups.
func (f *FakeService) AddProduct(p Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

// ScriptSearch sets the paged results for query and registers each product.
func (f *FakeService) ScriptSearch(query string, pages ...Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[query] = pages
	for _, p := range pages {
		f.products[p.ID] = p
	}
}

func (f *FakeService) Search(_ context.Context, query string, page int) (*Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	pages := f.results[query]
	if page < 1 || page > len(pages) {
		return nil, ErrNoResults
	}
	p := pages[page-1]
	return &p, nil
}

func (f *FakeService) ProductByID(_ context.Context, id int64) (*Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LookupErr != nil {
		return nil, f.LookupErr
	}
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNoResults)
	}
	return &p, nil
}

var _ Service = (*FakeService)(nil)
