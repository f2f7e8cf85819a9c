package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shopfront/internal/api"
	"shopfront/internal/models"
	"shopfront/internal/notify"
	"shopfront/pkg/tokens"
)

// Navigator is what the manager uses to force the user back to the login
// view after a security-sensitive logout.
type Navigator interface {
	ToLogin()
}

type NavigatorFunc func()

func (f NavigatorFunc) ToLogin() { f() }

// Manager owns the single process-wide authentication state: the current
// user, the stored access token and the background refresh loop that keeps
// both alive. All mutation goes through one mutex; subscribers are invoked
// synchronously after every authentication transition.
type Manager struct {
	api      *api.Client
	tokens   api.TokenStore
	notifier notify.Notifier
	nav      Navigator
	log      *slog.Logger

	refreshPeriod       time.Duration
	inactivityThreshold time.Duration

	mu              sync.Mutex
	user            *models.User
	lastInteraction time.Time
	loopCancel      context.CancelFunc
	subs            []func()
}

func New(client *api.Client, store api.TokenStore, notifier notify.Notifier, nav Navigator, log *slog.Logger, refreshPeriod, inactivityThreshold time.Duration) *Manager {
	m := &Manager{
		api:                 client,
		tokens:              store,
		notifier:            notifier,
		nav:                 nav,
		log:                 log,
		refreshPeriod:       refreshPeriod,
		inactivityThreshold: inactivityThreshold,
	}
	// Any forced logout wins: the boundary's double-401 path, the
	// refresh-endpoint 401 and the inactivity timeout all funnel into the
	// same idempotent local clear.
	client.SetAuthExpiredHandler(m.clearLocal)
	return m
}

// Subscribe registers a synchronous callback fired after every
// authentication state change. Callbacks must not block.
func (m *Manager) Subscribe(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *Manager) notifySubs() {
	m.mu.Lock()
	subs := make([]func(), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// CurrentUser returns a copy; session state is read-only to the rest of
// the application.
func (m *Manager) CurrentUser() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// RecordActivity is wired to global input listeners (click, keypress,
// scroll — deliberately not pointer movement).
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	m.lastInteraction = time.Now()
	m.mu.Unlock()
}

func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, error) {
	l := m.log.With("svc", "session.login", "email", email)

	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		l.Warn("login_failed", "error", err)
		return nil, err
	}
	if err := m.tokens.SetAccessToken(resp.AccessToken); err != nil {
		l.Error("login_failed", "reason", "cannot persist token", "error", err)
		return nil, err
	}

	m.mu.Lock()
	user := resp.User
	m.user = &user
	m.lastInteraction = time.Now()
	m.mu.Unlock()

	m.armRefreshLoop()
	m.notifySubs()
	l.Info("login_success", "role", user.Role)
	return m.CurrentUser(), nil
}

// Logout revokes the session remotely on a best-effort basis and always
// clears local state, even when the revoke call fails.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Logout(ctx); err != nil {
		m.log.Warn("logout_remote_failed", "svc", "session.logout", "error", err)
	}
	m.clearLocal()
}

// Refresh exchanges the transport-held credential for a new access token.
// An auth-level rejection clears the session; a transient network failure
// leaves it in place so the next tick or request can try again.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.api.Refresh(ctx); err != nil {
		if errors.Is(err, api.ErrAuth) {
			m.clearLocal()
		}
		return err
	}
	return nil
}

// RestoreOnStartup rebuilds the session from the persisted token. Every
// failure path ends in a valid empty session, never an error: not
// logged-in is a terminal state, not a fault.
func (m *Manager) RestoreOnStartup(ctx context.Context) *models.User {
	l := m.log.With("svc", "session.restore")

	token := m.tokens.AccessToken()
	if token == "" {
		return nil
	}

	if tokens.Expired(token, time.Now()) {
		if err := m.Refresh(ctx); err != nil {
			l.Info("restore_refresh_failed", "error", err)
			m.clearLocal()
			return nil
		}
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		l.Info("restore_me_failed", "error", err)
		m.clearLocal()
		return nil
	}

	m.mu.Lock()
	m.user = user
	m.lastInteraction = time.Now()
	m.mu.Unlock()

	m.armRefreshLoop()
	m.notifySubs()
	l.Info("restore_success", "role", user.Role)
	return m.CurrentUser()
}

// clearLocal is the guaranteed half of every logout path: drop the user,
// drop the token, stop the loop. Safe to call from any goroutine, any
// number of times.
func (m *Manager) clearLocal() {
	m.mu.Lock()
	wasAuthenticated := m.user != nil
	m.user = nil
	if m.loopCancel != nil {
		m.loopCancel()
		m.loopCancel = nil
	}
	m.mu.Unlock()

	if err := m.tokens.ClearAccessToken(); err != nil {
		m.log.Warn("token_clear_failed", "error", err)
	}
	if wasAuthenticated {
		m.notifySubs()
	}
}

// armRefreshLoop starts the background loop, cancelling any prior instance
// first so at most one is ever running.
func (m *Manager) armRefreshLoop() {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.loopCancel = cancel
	m.mu.Unlock()

	go m.refreshLoop(ctx)
}

func (m *Manager) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(m.refreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	user := m.user
	idle := time.Since(m.lastInteraction)
	m.mu.Unlock()

	if user == nil {
		return
	}

	if idle > m.inactivityThreshold {
		if user.IsAdmin() {
			// A privileged session must not be silently extended.
			m.log.Info("admin_idle_logout", "svc", "session.loop", "idle", idle.String())
			m.Logout(ctx)
			if m.nav != nil {
				m.nav.ToLogin()
			}
		} else {
			// Shoppers keep browsing anonymously, no remote call, no
			// interruption.
			m.log.Info("idle_session_clear", "svc", "session.loop", "idle", idle.String())
			m.clearLocal()
		}
		return
	}

	if err := m.Refresh(ctx); err != nil {
		// Non-fatal: the boundary's failure handling covers any
		// subsequent request.
		m.log.Warn("silent_refresh_failed", "svc", "session.loop", "error", err)
	}
}
