package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Datasets lists every registered dataset.
func (c *Client) Datasets(ctx context.Context) ([]model.Dataset, error) {
	raw, err := c.send(ctx, request{method: http.MethodGet, path: "datasets"})
	if err != nil {
		return nil, err
	}
	out, err := decodeList[model.Dataset](raw, "datasets", "items")
	if err != nil {
		return nil, fmt.Errorf("%w: decode datasets: %w", ErrServer, err)
	}
	return out, nil
}

// Dataset returns one dataset by id.
func (c *Client) Dataset(ctx context.Context, id string) (*model.Dataset, error) {
	var ds model.Dataset
	if err := c.do(ctx, request{method: http.MethodGet, path: "datasets/" + url.PathEscape(id)}, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}
