package devserver

import (
	"fmt"

	"github.com/elastic/go-elasticsearch/v9"

	"shopfront/internal/config"
)

// NewESClient connects to elasticsearch when ES_URL is configured and
// returns nil otherwise; search then falls back to the database.
func NewESClient(cfg *config.Config) (*elasticsearch.Client, error) {
	if cfg.ES_URL == "" {
		return nil, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ES_URL},
		Username:  cfg.ES_USER,
		Password:  cfg.ES_PASSWORD,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return client, nil
}
