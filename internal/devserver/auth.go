package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"shopfront/internal/hash"
	"shopfront/internal/logging"
	"shopfront/pkg/tokens"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	refreshCookie   = "refreshToken"
)

type AuthHandler struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
	Producer      *Producer
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	var existing User
	if err := h.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		l.Warn("register_failed", "status", 409, "reason", "user_exists")
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("register_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	user := User{
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         "user",
		Status:       "active",
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		l.Error("register_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.Producer.Publish(ctx, "user_events", eventKey(user.ID), map[string]any{
		"type":   "user_registered",
		"userID": user.ID,
		"email":  user.Email,
	})

	l.Info("register_success", "status", 200, "userID", user.ID)
	return c.JSON(http.StatusOK, user.toAPI())
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		l.Warn("login_failed", "status", 401, "reason", "unknown_email")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "bad_password", "userID", user.ID)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessToken, err := tokens.NewAccessToken(strconv.FormatUint(uint64(user.ID), 10), user.Role, user.Email, time.Now().Add(accessTokenTTL), h.JWTSecret)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if err := h.issueRefreshCookie(c, user.ID); err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.Producer.Publish(ctx, "user_events", eventKey(user.ID), map[string]any{
		"type":   "user_login",
		"userID": user.ID,
	})

	l.Info("login_success", "status", 200, "userID", user.ID, "role", user.Role)
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": accessToken,
		"user":        user.toAPI(),
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	cookie, err := c.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	claims, err := tokens.RefreshClaimsFromToken(cookie.Value, h.RefreshSecret)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "invalid_token")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	var stored RefreshToken
	if err := h.DB.Where("token = ?", cookie.Value).First(&stored).Error; err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "unknown_token")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token not found")
	}
	if stored.Revoked || time.Now().After(stored.ExpiresAt) {
		l.Warn("refresh_failed", "status", 401, "reason", "expired_or_revoked")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token expired or revoked")
	}

	var user User
	if err := h.DB.First(&user, "id = ?", claims.Subject).Error; err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "unknown_user")
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
	}

	// Rotate: the presented token is spent whether or not issuing the new
	// one succeeds.
	if err := h.DB.Model(&stored).Update("revoked", true).Error; err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	accessToken, err := tokens.NewAccessToken(strconv.FormatUint(uint64(user.ID), 10), user.Role, user.Email, time.Now().Add(accessTokenTTL), h.JWTSecret)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if err := h.issueRefreshCookie(c, user.ID); err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("refresh_success", "status", 200, "userID", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"accessToken": accessToken})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if cookie, err := c.Cookie(refreshCookie); err == nil && cookie.Value != "" {
		if err := h.DB.Model(&RefreshToken{}).Where("token = ?", cookie.Value).Update("revoked", true).Error; err != nil {
			l.Warn("logout_revoke_failed", "error", err)
		}
	}
	c.SetCookie(deleteCookie(refreshCookie, "/"))

	l.Info("logout_success", "status", 200)
	return c.NoContent(http.StatusOK)
}

func (h *AuthHandler) Me(c echo.Context) error {
	var user User
	if err := h.DB.First(&user, "id = ?", userID(c)).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
	}
	return c.JSON(http.StatusOK, user.toAPI())
}

func (h *AuthHandler) issueRefreshCookie(c echo.Context, id uint) error {
	exp := time.Now().Add(refreshTokenTTL)
	refreshToken, err := tokens.NewRefreshToken(strconv.FormatUint(uint64(id), 10), exp, h.RefreshSecret)
	if err != nil {
		return err
	}
	if err := h.DB.Create(&RefreshToken{Token: refreshToken, UserID: id, ExpiresAt: exp}).Error; err != nil {
		return err
	}
	c.SetCookie(createCookie(refreshCookie, refreshToken, "/", exp))
	return nil
}

func createCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func deleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
