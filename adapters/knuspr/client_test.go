package knuspr

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/posixpascal/knusperity/ports/catalog"
)

func newServer(t *testing.T, productHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/services/frontend-service/search-metadata", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("search") == "milk" {
			fmt.Fprint(w, `{"productIds":[1,2]}`)
			return
		}
		fmt.Fprint(w, `{"productIds":[]}`)
	})
	mux.HandleFunc("/api/v2/products/1", func(w http.ResponseWriter, _ *http.Request) {
		if productHits != nil {
			productHits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": 1, "name": "Oat Milk", "textualAmount": "1 l",
			"price": {"amount": 1.99, "currency": "€"},
			"images": ["https://img.example/1.jpg"],
			"nutritionalValues": {"energyKCal": 46}
		}`)
	})
	mux.HandleFunc("/api/v2/products/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: baseURL})
	require.NoError(t, err)
	return c
}

func TestSearchResolvesPagedProduct(t *testing.T) {
	srv := newServer(t, nil)
	c := newTestClient(t, srv.URL)

	p, err := c.Search(t.Context(), "milk", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)
	require.Equal(t, "Oat Milk", p.Name)
	require.Equal(t, "1,99 €", p.Price.String())
	require.Equal(t, "https://img.example/1.jpg", p.ImagePath)
	require.NotEmpty(t, p.Link, "link falls back to a constructed product URL")

	_, err = c.Search(t.Context(), "milk", 3)
	require.ErrorIs(t, err, catalog.ErrNoResults)
	_, err = c.Search(t.Context(), "milk", 0)
	require.ErrorIs(t, err, catalog.ErrNoResults)

	_, err = c.Search(t.Context(), "nothing", 1)
	require.ErrorIs(t, err, catalog.ErrNoResults)
}

func TestProductByIDCaches(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	c := newTestClient(t, srv.URL)

	for i := 0; i < 5; i++ {
		p, err := c.ProductByID(t.Context(), 1)
		require.NoError(t, err)
		require.Equal(t, "Oat Milk", p.Name)
	}
	require.Equal(t, int32(1), hits.Load(), "repeat lookups are served from cache")
}

func TestProductByIDNotFound(t *testing.T) {
	srv := newServer(t, nil)
	c := newTestClient(t, srv.URL)

	_, err := c.ProductByID(t.Context(), 999)
	require.ErrorIs(t, err, catalog.ErrNoResults)
}

func TestConcurrentLookupsShareOneCall(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	gate := make(chan struct{})
	mux.HandleFunc("/api/v2/products/1", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-gate
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":1,"name":"Oat Milk","price":{"amount":1.99,"currency":"€"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ProductByID(t.Context(), 1)
			require.NoError(t, err)
		}()
	}
	// let every goroutine join the in-flight call before releasing it
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, int32(1), hits.Load(), "in-flight lookups are deduplicated")
}
