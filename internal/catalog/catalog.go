package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"shopfront/internal/api"
	"shopfront/internal/models"
)

// Client is the product-browsing surface of the storefront, reduced to its
// API calls. Everything flows through the shared HTTP boundary, so catalog
// requests get the same failure handling as the rest of the app.
type Client struct {
	api *api.Client
}

func New(client *api.Client) *Client {
	return &Client{api: client}
}

type Page struct {
	Total    int64            `json:"total"`
	Products []models.Product `json:"products"`
}

func (c *Client) List(ctx context.Context, page, size int) (*Page, error) {
	var out Page
	path := fmt.Sprintf("/products?page=%d&size=%d", page, size)
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id uint) (*models.Product, error) {
	var out models.Product
	path := fmt.Sprintf("/products/%d", id)
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Search(ctx context.Context, query string, page, size int) (*Page, error) {
	var out Page
	path := fmt.Sprintf("/products/search?q=%s&page=%d&size=%d", url.QueryEscape(query), page, size)
	if err := c.api.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
