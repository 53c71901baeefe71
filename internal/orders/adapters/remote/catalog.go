package remote

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// Catalog reads product snapshots from the catalog service.
type Catalog struct {
	client client
}

func NewCatalog(baseURL, serviceToken string, timeout time.Duration) *Catalog {
	return &Catalog{client: newClient(baseURL, serviceToken, timeout)}
}

type productResponse struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
}

func (c *Catalog) Lookup(ctx context.Context, productID string) (*ports.Product, error) {
	var resp productResponse
	if err := c.client.getJSON(ctx, "/products/"+escape(productID), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ports.ErrProductNotFound
		}
		return nil, err
	}
	return &ports.Product{
		ID:             resp.ID,
		Title:          resp.Title,
		UnitPriceCents: resp.Price.Shift(2).Round(0).IntPart(),
		ImageRef:       resp.ImageURL,
	}, nil
}
