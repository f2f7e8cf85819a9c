package devserver

import (
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"shopfront/internal/config"
	"shopfront/internal/logging"
)

type Deps struct {
	DB             *gorm.DB
	JWTSecret      []byte
	AuthHandler    *AuthHandler
	CartHandler    *CartHandler
	ProductHandler *ProductHandler
}

// NewDeps wires the stand-in's handlers the way the client expects the
// real backend to behave. Producer and ES may be nil.
func NewDeps(db *gorm.DB, jwtSecret, refreshSecret []byte, producer *Producer, es *elasticsearch.Client) *Deps {
	return &Deps{
		DB:             db,
		JWTSecret:      jwtSecret,
		AuthHandler:    &AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: producer},
		CartHandler:    &CartHandler{DB: db, Producer: producer},
		ProductHandler: &ProductHandler{DB: db, ES: es, Index: "product"},
	}
}

// NewEcho builds the echo application: recovery, request ids, CORS with
// credentials (the refresh cookie travels cross-origin), optional rate
// limiting, and the documented routes.
func NewEcho(cfg *config.Config, deps *Deps, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowCredentials: true,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.IntoContext(req.Context(), log)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	})
	if cfg.RATE_LIMIT_RPS > 0 {
		e.Use(RateLimit(cfg.RATE_LIMIT_RPS, cfg.RATE_LIMIT_BURST))
	}

	Register(e, deps)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout)
	auth.GET("/me", d.AuthHandler.Me, BearerAuth(d.JWTSecret))

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.List)
	products.GET("/search", d.ProductHandler.Search)
	products.GET("/:id", d.ProductHandler.Get)
	products.POST("", d.ProductHandler.Create, BearerAuth(d.JWTSecret))

	cart := v1.Group("/cart", BearerAuth(d.JWTSecret))
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("/items", d.CartHandler.AddItem)
	cart.PATCH("/items/:index", d.CartHandler.UpdateItem)
	cart.DELETE("/items/:index", d.CartHandler.RemoveItem)
	cart.DELETE("", d.CartHandler.ClearCart)
	cart.GET("/validate", d.CartHandler.Validate)
}
