package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"shopfront/internal/models"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer *Producer
}

func (h *CartHandler) items(uid uint) ([]CartEntry, error) {
	var entries []CartEntry
	err := h.DB.Where("user_id = ?", uid).Order("id asc").Find(&entries).Error
	return entries, err
}

func (h *CartHandler) respondCart(c echo.Context, uid uint) error {
	entries, err := h.items(uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	lines := make([]models.CartLineItem, len(entries))
	for i := range entries {
		lines[i] = entries[i].toLine()
	}
	return c.JSON(http.StatusOK, echo.Map{"items": lines})
}

func (h *CartHandler) GetCart(c echo.Context) error {
	return h.respondCart(c, userID(c))
}

func (h *CartHandler) AddItem(c echo.Context) error {
	uid := userID(c)

	var req models.CartLineItem
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.ProductID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product_id is required")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var entry CartEntry
	tx := h.DB.Where("user_id = ? AND product_id = ? AND variant_sku = ?", uid, req.ProductID, req.VariantSKU).First(&entry)
	switch {
	case tx.Error == nil:
		entry.Quantity += req.Quantity
		if err := h.DB.Save(&entry).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		entry = CartEntry{
			UserID:     uid,
			ProductID:  req.ProductID,
			VariantSKU: req.VariantSKU,
			Quantity:   req.Quantity,
			UnitPrice:  req.UnitPrice,
			Name:       req.Name,
			Image:      req.Image,
			Size:       req.Size,
			Color:      req.Color,
		}
		if err := h.DB.Create(&entry).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, tx.Error.Error())
	}

	h.Producer.Publish(c.Request().Context(), "cart_events", eventKey(uid), map[string]any{
		"type":      "cart_item_added",
		"userID":    uid,
		"productID": req.ProductID,
		"sku":       req.VariantSKU,
		"quantity":  entry.Quantity,
	})

	return h.respondCart(c, uid)
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	uid := userID(c)

	entry, err := h.entryAt(c, uid)
	if err != nil {
		return err
	}

	var req struct {
		Quantity uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Quantity < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be more than zero")
	}

	entry.Quantity = req.Quantity
	if err := h.DB.Save(entry).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Producer.Publish(c.Request().Context(), "cart_events", eventKey(uid), map[string]any{
		"type":     "cart_item_updated",
		"userID":   uid,
		"entryID":  entry.ID,
		"quantity": entry.Quantity,
	})

	return h.respondCart(c, uid)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	uid := userID(c)

	entry, err := h.entryAt(c, uid)
	if err != nil {
		return err
	}
	if err := h.DB.Delete(entry).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Producer.Publish(c.Request().Context(), "cart_events", eventKey(uid), map[string]any{
		"type":    "cart_item_removed",
		"userID":  uid,
		"entryID": entry.ID,
	})

	return h.respondCart(c, uid)
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	uid := userID(c)

	if err := h.DB.Where("user_id = ?", uid).Delete(&CartEntry{}).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.Producer.Publish(c.Request().Context(), "cart_events", eventKey(uid), map[string]any{
		"type":   "cart_cleared",
		"userID": uid,
	})

	return h.respondCart(c, uid)
}

func (h *CartHandler) Validate(c echo.Context) error {
	uid := userID(c)

	entries, err := h.items(uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	errs := []string{}
	for _, entry := range entries {
		var product Product
		if err := h.DB.First(&product, "id = ?", entry.ProductID).Error; err != nil {
			errs = append(errs, fmt.Sprintf("%s is no longer available", entry.Name))
			continue
		}
		if product.Count < entry.Quantity {
			errs = append(errs, fmt.Sprintf("only %d of %s in stock", product.Count, entry.Name))
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"valid":  len(errs) == 0,
		"errors": errs,
	})
}

// entryAt resolves a positional index into the stored row. Indices are not
// stable identifiers, so resolution happens against the current ordering
// on every call.
func (h *CartHandler) entryAt(c echo.Context, uid uint) (*CartEntry, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	entries, err := h.items(uid)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if index >= len(entries) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "cart item not found")
	}
	return &entries[index], nil
}
