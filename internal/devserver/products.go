package devserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type ProductHandler struct {
	DB    *gorm.DB
	ES    *elasticsearch.Client
	Index string
}

func pageBounds(c echo.Context) (from, size int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ = strconv.Atoi(c.QueryParam("size"))
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	return (page - 1) * size, size
}

func (h *ProductHandler) List(c echo.Context) error {
	from, size := pageBounds(c)

	var total int64
	if err := h.DB.Model(&Product{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var products []Product
	if err := h.DB.Order("id asc").Offset(from).Limit(size).Find(&products).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "products": products})
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var product Product
	if err := h.DB.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Create(c echo.Context) error {
	var product Product
	if err := c.Bind(&product); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if product.Name == "" || product.Price <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name and positive price are required")
	}
	if err := h.DB.Create(&product).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, product)
}

// Search uses elasticsearch when a client is configured and degrades to a
// LIKE query otherwise, so the stand-in works without the full stack.
func (h *ProductHandler) Search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter q is required")
	}
	from, size := pageBounds(c)

	if h.ES != nil {
		total, products, err := h.searchES(c, q, from, size)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, echo.Map{"total": total, "products": products})
	}

	pattern := "%" + q + "%"
	var total int64
	if err := h.DB.Model(&Product{}).Where("name LIKE ? OR description LIKE ?", pattern, pattern).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var products []Product
	if err := h.DB.Where("name LIKE ? OR description LIKE ?", pattern, pattern).Order("id asc").Offset(from).Limit(size).Find(&products).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "products": products})
}

func (h *ProductHandler) searchES(c echo.Context, query string, from, size int) (int64, []Product, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^2", "description"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := h.ES.Search(
		h.ES.Search.WithContext(c.Request().Context()),
		h.ES.Search.WithIndex(h.Index),
		h.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, errors.New("search error: " + res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	products := make([]Product, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		products[i] = hit.Source
	}
	return r.Hits.Total.Value, products, nil
}
