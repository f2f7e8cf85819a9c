package devserver

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"shopfront/internal/api"
	"shopfront/internal/cart"
	"shopfront/internal/config"
	"shopfront/internal/hash"
	"shopfront/internal/localstore"
	"shopfront/internal/logging"
	"shopfront/internal/models"
	"shopfront/internal/notify"
	"shopfront/internal/session"
	"shopfront/pkg/tokens"
)

// clientStack is the full client wiring, exactly as cmd/shopfront builds
// it, pointed at an in-process stand-in server.
type clientStack struct {
	Store    *localstore.Store
	API      *api.Client
	Session  *session.Manager
	Cart     *cart.Reconciler
	Recorder *notify.Recorder
}

func newClientStack(t *testing.T, baseURL string) *clientStack {
	t.Helper()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)

	log := logging.New("error")
	rec := &notify.Recorder{}

	client := api.New(baseURL+"/api/v1", store, rec, log)
	sess := session.New(client, store, rec, nil, log, time.Hour, time.Hour)
	t.Cleanup(func() { sess.Logout(context.Background()) })

	return &clientStack{
		Store:    store,
		API:      client,
		Session:  sess,
		Cart:     cart.New(sess, client, store, rec, nil, log),
		Recorder: rec,
	}
}

func newStandIn(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dev.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &RefreshToken{}, &Product{}, &CartEntry{}))

	deps := NewDeps(db, []byte("jwt-secret"), []byte("refresh-secret"), nil, nil)
	srv := httptest.NewServer(NewEcho(&config.Config{}, deps, logging.New("error")))
	t.Cleanup(srv.Close)
	return srv, db
}

func createUser(t *testing.T, db *gorm.DB, email, password, role string) {
	t.Helper()
	h, err := hash.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, db.Create(&User{Email: email, PasswordHash: h, Role: role, Status: "active"}).Error)
}

func TestGuestCartMergesOnLogin(t *testing.T) {
	srv, db := newStandIn(t)
	createUser(t, db, "shopper@shop.test", "password", models.RoleUser)

	stack := newClientStack(t, srv.URL)
	ctx := context.Background()

	item := models.CartLineItem{ProductID: 1, VariantSKU: "A-M-BLK", Quantity: 1, UnitPrice: 19.99, Name: "Tee"}
	require.NoError(t, stack.Cart.AddItem(ctx, item))
	require.Len(t, stack.Store.GuestCart(), 1)

	user, err := stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)
	assert.Equal(t, "shopper@shop.test", user.Email)

	// The login transition merged the guest cart into the server cart and
	// cleared the local copy.
	items := stack.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "A-M-BLK", items[0].VariantSKU)
	assert.Empty(t, stack.Store.GuestCart())
	assert.Contains(t, stack.Recorder.All(), "your cart has been synced")

	var count int64
	db.Model(&CartEntry{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestMergeAccumulatesIntoExistingServerCart(t *testing.T) {
	srv, db := newStandIn(t)
	createUser(t, db, "shopper@shop.test", "password", models.RoleUser)

	stack := newClientStack(t, srv.URL)
	ctx := context.Background()

	// First session leaves one unit on the server.
	_, err := stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)
	require.NoError(t, stack.Cart.AddItem(ctx, models.CartLineItem{ProductID: 1, VariantSKU: "A-M-BLK", Quantity: 1, UnitPrice: 19.99, Name: "Tee"}))
	stack.Session.Logout(ctx)
	require.False(t, stack.Session.IsAuthenticated())

	// Anonymous again: same variant goes into the guest cart.
	require.NoError(t, stack.Cart.AddItem(ctx, models.CartLineItem{ProductID: 1, VariantSKU: "A-M-BLK", Quantity: 2, UnitPrice: 19.99, Name: "Tee"}))

	_, err = stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)

	items := stack.Cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, uint(3), items[0].Quantity)
}

func TestRestoreOnStartupWithLiveToken(t *testing.T) {
	srv, db := newStandIn(t)
	createUser(t, db, "shopper@shop.test", "password", models.RoleUser)

	stack := newClientStack(t, srv.URL)
	ctx := context.Background()

	_, err := stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)

	// A fresh manager over the same store and transport: the next launch.
	restored := session.New(stack.API, stack.Store, stack.Recorder, nil, logging.New("error"), time.Hour, time.Hour)
	user := restored.RestoreOnStartup(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "shopper@shop.test", user.Email)
}

func TestRestoreOnStartupWithExpiredToken(t *testing.T) {
	srv, db := newStandIn(t)
	createUser(t, db, "shopper@shop.test", "password", models.RoleUser)

	stack := newClientStack(t, srv.URL)
	ctx := context.Background()

	_, err := stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)

	// Overwrite the persisted token with an already-expired one; the
	// refresh cookie in the transport's jar is still valid.
	var user User
	require.NoError(t, db.First(&user, "email = ?", "shopper@shop.test").Error)
	expired, err := tokens.NewAccessToken(strconv.FormatUint(uint64(user.ID), 10), user.Role, user.Email, time.Now().Add(-time.Minute), []byte("jwt-secret"))
	require.NoError(t, err)
	require.NoError(t, stack.Store.SetAccessToken(expired))

	restored := session.New(stack.API, stack.Store, stack.Recorder, nil, logging.New("error"), time.Hour, time.Hour)
	got := restored.RestoreOnStartup(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "shopper@shop.test", got.Email)
	assert.NotEqual(t, expired, stack.Store.AccessToken())
}

func TestExpiredAccessTokenIsRefreshedMidFlight(t *testing.T) {
	srv, db := newStandIn(t)
	createUser(t, db, "shopper@shop.test", "password", models.RoleUser)

	stack := newClientStack(t, srv.URL)
	ctx := context.Background()

	_, err := stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)

	// Simulate access-token expiry between requests: the boundary must
	// refresh and replay transparently.
	var user User
	require.NoError(t, db.First(&user, "email = ?", "shopper@shop.test").Error)
	expired, err := tokens.NewAccessToken(strconv.FormatUint(uint64(user.ID), 10), user.Role, user.Email, time.Now().Add(-time.Minute), []byte("jwt-secret"))
	require.NoError(t, err)
	require.NoError(t, stack.Store.SetAccessToken(expired))

	require.NoError(t, stack.Cart.AddItem(ctx, models.CartLineItem{ProductID: 1, VariantSKU: "A", Quantity: 1}))
	require.Len(t, stack.Cart.Items(), 1)
	assert.True(t, stack.Session.IsAuthenticated())
	assert.Empty(t, stack.Recorder.All())
}

func TestGuestCartSurvivesForcedLogout(t *testing.T) {
	srv, db := newStandIn(t)
	createUser(t, db, "shopper@shop.test", "password", models.RoleUser)

	stack := newClientStack(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, stack.Cart.AddItem(ctx, models.CartLineItem{ProductID: 7, VariantSKU: "G", Quantity: 2, Name: "Guest thing"}))

	_, err := stack.Session.Login(ctx, "shopper@shop.test", "password")
	require.NoError(t, err)
	stack.Session.Logout(ctx)

	// The merged items stayed on the server; a new guest cart starts empty.
	assert.Empty(t, stack.Cart.Items())
	assert.Empty(t, stack.Store.GuestCart())
	var count int64
	db.Model(&CartEntry{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
