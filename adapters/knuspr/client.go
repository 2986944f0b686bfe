// Package knuspr implements the catalog port against the storefront's
// frontend JSON API.
package knuspr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/posixpascal/knusperity/core/cache"
	"github.com/posixpascal/knusperity/ports/catalog"
)

// Options configures the storefront client.
type Options struct {
	// BaseURL is the storefront root, e.g. https://www.knuspr.de.
	BaseURL string
	Logger  *slog.Logger

	// CacheSize bounds the product and search-id caches; CacheTTL expires
	// entries. Zero values get small defaults.
	CacheSize int
	CacheTTL  time.Duration

	Timeout time.Duration
}

// Client is a catalog.Service backed by the storefront API. Lookups are
// cached and deduplicated: concurrent requests for the same product share
// one API call.
type Client struct {
	http     *resty.Client
	log      *slog.Logger
	products *cache.LRU[int64, catalog.Product]
	searches *cache.LRU[string, []int64]
	group    singleflight.Group
}

// NewClient creates a storefront client.
func NewClient(opt Options) (*Client, error) {
	if opt.BaseURL == "" {
		return nil, fmt.Errorf("knuspr: base url is required")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.CacheSize <= 0 {
		opt.CacheSize = 512
	}
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = 15 * time.Minute
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(opt.BaseURL).
		SetTimeout(opt.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     http,
		log:      opt.Logger.With(slog.String("component", "knuspr")),
		products: cache.NewLRU[int64, catalog.Product](opt.CacheSize, opt.CacheTTL),
		searches: cache.NewLRU[string, []int64](opt.CacheSize, opt.CacheTTL),
	}, nil
}

// searchMetaResponse is the search-metadata endpoint payload.
type searchMetaResponse struct {
	ProductIDs []int64 `json:"productIds"`
}

// productResponse is the product detail payload.
type productResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	TextualAmount string `json:"textualAmount"`
	Link          string `json:"link"`
	Price         struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
	Images    []string `json:"images"`
	Nutrition struct {
		EnergyKCal    float64 `json:"energyKCal"`
		Protein       float64 `json:"protein"`
		Fats          float64 `json:"fats"`
		Sugars        float64 `json:"sugars"`
		Carbohydrates float64 `json:"carbohydrates"`
	} `json:"nutritionalValues"`
}

// Search resolves one product per page: the page-th id of the query's
// search-metadata result.
func (c *Client) Search(ctx context.Context, query string, page int) (*catalog.Product, error) {
	ids, err := c.searchIDs(ctx, query)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > len(ids) {
		return nil, catalog.ErrNoResults
	}
	return c.ProductByID(ctx, ids[page-1])
}

func (c *Client) searchIDs(ctx context.Context, query string) ([]int64, error) {
	if ids, ok := c.searches.Get(query); ok {
		return ids, nil
	}

	v, err, _ := c.group.Do("search:"+query, func() (any, error) {
		var meta searchMetaResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("search", query).
			SetResult(&meta).
			Get("/services/frontend-service/search-metadata")
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("search %q: storefront returned %s", query, resp.Status())
		}
		c.searches.Put(query, meta.ProductIDs)
		return meta.ProductIDs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]int64), nil
}

// ProductByID resolves one product, served from cache when possible.
func (c *Client) ProductByID(ctx context.Context, id int64) (*catalog.Product, error) {
	if p, ok := c.products.Get(id); ok {
		return &p, nil
	}

	v, err, shared := c.group.Do("product:"+strconv.FormatInt(id, 10), func() (any, error) {
		var dto productResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&dto).
			Get(fmt.Sprintf("/api/v2/products/%d", id))
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", id, err)
		}
		if resp.StatusCode() == 404 {
			return nil, fmt.Errorf("product %d: %w", id, catalog.ErrNoResults)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("product %d: storefront returned %s", id, resp.Status())
		}
		p := dto.toProduct(c.http.BaseURL)
		c.products.Put(id, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("product lookup deduplicated", slog.Int64("id", id))
	}
	p := v.(catalog.Product)
	return &p, nil
}

func (r productResponse) toProduct(base string) catalog.Product {
	link := r.Link
	if link == "" {
		link = fmt.Sprintf("%s/p/%d", base, r.ID)
	}
	var image string
	if len(r.Images) > 0 {
		image = r.Images[0]
	}
	return catalog.Product{
		ID:            r.ID,
		Name:          r.Name,
		TextualAmount: r.TextualAmount,
		Price:         catalog.Price{Amount: r.Price.Amount, Currency: r.Price.Currency},
		ImagePath:     image,
		Link:          link,
		Nutrition: catalog.Nutrition{
			EnergyKCal:    r.Nutrition.EnergyKCal,
			Protein:       r.Nutrition.Protein,
			Fats:          r.Nutrition.Fats,
			Sugars:        r.Nutrition.Sugars,
			Carbohydrates: r.Nutrition.Carbohydrates,
		},
	}
}

var _ catalog.Service = (*Client)(nil)
