// Package auth manages the cookie + crumb credential the quote endpoints
// require. A credential is obtained through the direct cookie/crumb path or,
// when that fails (EU consent wall), through the consent form flow. Refreshes
// are deduplicated: any number of concurrent callers share one network
// refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

// ErrUnavailable is returned when neither issuance path produced a credential.
var ErrUnavailable = errors.New("auth: credentials unavailable")

// Credential is the session cookie header plus the crumb token bound to it.
type Credential struct {
	Cookie   string
	Crumb    string
	IssuedAt time.Time
}

// Valid reports whether both parts are present.
func (c Credential) Valid() bool {
	return c.Cookie != "" && c.Crumb != ""
}

// Observer is notified after every issuance attempt.
type Observer interface {
	AuthRefresh(path string, err error)
}

// Config configures a Manager.
type Config struct {
	Endpoints          yahoo.Endpoints
	HTTPClient         *http.Client  // proxy/timeout settings; a private cookie jar is attached per refresh
	UserAgent          string        // default: yahoo.DefaultUserAgent
	TTL                time.Duration // proactive refresh age, default 1h
	MinRefreshInterval time.Duration // default 60s; TTL is never shorter
	RefreshTimeout     time.Duration // bound on one refresh, default 30s
	Logger             *zap.Logger
	Observer           Observer
	Now                func() time.Time
}

// Manager owns the current credential.
type Manager struct {
	endpoints      yahoo.Endpoints
	base           *http.Client
	userAgent      string
	ttl            time.Duration
	refreshTimeout time.Duration
	log            *zap.Logger
	observer       Observer
	now            func() time.Time

	mu   sync.RWMutex
	cred *Credential

	sf singleflight.Group
}

const flightKey = "refresh"

// NewManager creates a Manager. No network traffic happens until the first
// GetOrRefresh.
func NewManager(cfg Config) *Manager {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = yahoo.DefaultUserAgent
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = 60 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.TTL < cfg.MinRefreshInterval {
		cfg.TTL = cfg.MinRefreshInterval
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		endpoints:      cfg.Endpoints.WithDefaults(),
		base:           cfg.HTTPClient,
		userAgent:      cfg.UserAgent,
		ttl:            cfg.TTL,
		refreshTimeout: cfg.RefreshTimeout,
		log:            cfg.Logger,
		observer:       cfg.Observer,
		now:            cfg.Now,
	}
}

// Current returns the cached credential without refreshing.
func (m *Manager) Current() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return Credential{}, false
	}
	return *m.cred, true
}

// Invalidate drops the cached credential; the next call refreshes.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
}

// GetOrRefresh returns the cached credential while it is younger than the TTL,
// otherwise refreshes. Concurrent callers share one refresh.
func (m *Manager) GetOrRefresh(ctx context.Context) (Credential, error) {
	if c, ok := m.fresh(); ok {
		return c, nil
	}
	return m.await(ctx, func(rctx context.Context) (Credential, error) {
		// A flight that started after another one finished sees its result here.
		if c, ok := m.fresh(); ok {
			return c, nil
		}
		return m.Refresh(rctx)
	})
}

// ForceRefresh replaces stale, the credential a request was just rejected
// with. If another caller already replaced it the newer credential is
// returned without network traffic.
func (m *Manager) ForceRefresh(ctx context.Context, stale Credential) (Credential, error) {
	if c, ok := m.newerThan(stale); ok {
		return c, nil
	}
	return m.await(ctx, func(rctx context.Context) (Credential, error) {
		if c, ok := m.newerThan(stale); ok {
			return c, nil
		}
		return m.Refresh(rctx)
	})
}

func (m *Manager) fresh() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return Credential{}, false
	}
	// ttl is clamped to at least MinRefreshInterval in NewManager.
	if m.now().Sub(m.cred.IssuedAt) < m.ttl {
		return *m.cred, true
	}
	return Credential{}, false
}

func (m *Manager) newerThan(stale Credential) (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return Credential{}, false
	}
	if m.cred.IssuedAt.After(stale.IssuedAt) {
		return *m.cred, true
	}
	return Credential{}, false
}

// await joins (or starts) the single in-flight refresh. The refresh itself
// runs detached from the caller's cancellation so one impatient caller cannot
// fail the others; the caller still returns as soon as its ctx is done.
func (m *Manager) await(ctx context.Context, fn func(context.Context) (Credential, error)) (Credential, error) {
	ch := m.sf.DoChan(flightKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return fn(rctx)
	})
	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// Refresh performs one issuance attempt, direct path first then the consent
// flow, and installs the result. It is not deduplicated; use GetOrRefresh or
// ForceRefresh from request paths.
func (m *Manager) Refresh(ctx context.Context) (Credential, error) {
	start := m.now()

	cred, errDirect := m.direct(ctx)
	m.notify("direct", errDirect)
	if errDirect == nil {
		m.install(cred)
		m.log.Info("credential refreshed",
			zap.String("path", "direct"),
			zap.Duration("took", m.now().Sub(start)))
		return cred, nil
	}
	m.log.Warn("direct credential path failed, trying consent flow", zap.Error(errDirect))

	cred, errConsent := m.consent(ctx)
	m.notify("consent", errConsent)
	if errConsent == nil {
		m.install(cred)
		m.log.Info("credential refreshed",
			zap.String("path", "consent"),
			zap.Duration("took", m.now().Sub(start)))
		return cred, nil
	}

	m.log.Error("credential refresh failed",
		zap.NamedError("direct", errDirect),
		zap.NamedError("consent", errConsent))
	return Credential{}, fmt.Errorf("%w: direct: %v; consent: %v", ErrUnavailable, errDirect, errConsent)
}

func (m *Manager) install(c Credential) {
	m.mu.Lock()
	m.cred = &c
	m.mu.Unlock()
}

func (m *Manager) notify(path string, err error) {
	if m.observer != nil {
		m.observer.AuthRefresh(path, err)
	}
}

// session returns a client sharing the base transport with a fresh jar.
func (m *Manager) session() (*http.Client, http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}
	c := *m.base
	c.Jar = jar
	return &c, jar, nil
}

func (m *Manager) direct(ctx context.Context) (Credential, error) {
	client, jar, err := m.session()
	if err != nil {
		return Credential{}, err
	}

	// The bootstrap host answers 404 but still sets the session cookie.
	if _, _, err := m.get(ctx, client, m.endpoints.Cookie); err != nil {
		return Credential{}, fmt.Errorf("cookie bootstrap: %w", err)
	}
	crumbURL, err := m.endpoints.URL(yahoo.RouteCrumb, "")
	if err != nil {
		return Credential{}, err
	}
	cookie := cookieHeader(jar, crumbURL)
	if cookie == "" {
		return Credential{}, errors.New("no session cookie issued")
	}
	crumb, err := m.crumb(ctx, client, crumbURL)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Cookie: cookieHeader(jar, crumbURL), Crumb: crumb, IssuedAt: m.now()}, nil
}

var (
	csrfRe    = regexp.MustCompile(`name="csrfToken"\s+value="([^"]+)"`)
	sessionRe = regexp.MustCompile(`name="sessionId"\s+value="([^"]+)"`)
)

func (m *Manager) consent(ctx context.Context) (Credential, error) {
	client, jar, err := m.session()
	if err != nil {
		return Credential{}, err
	}

	status, body, err := m.get(ctx, client, m.endpoints.Consent)
	if err != nil {
		return Credential{}, fmt.Errorf("consent page: %w", err)
	}
	if status != http.StatusOK {
		return Credential{}, fmt.Errorf("consent page: HTTP %d", status)
	}
	csrf := firstMatch(csrfRe, body)
	sessionID := firstMatch(sessionRe, body)
	if csrf == "" || sessionID == "" {
		return Credential{}, errors.New("consent page: csrfToken or sessionId missing")
	}

	form := url.Values{
		"agree":           {"agree", "agree"},
		"consentUUID":     {"default"},
		"sessionId":       {sessionID},
		"csrfToken":       {csrf},
		"originalDoneUrl": {"https://finance.yahoo.com/"},
		"namespace":       {"yahoo"},
	}
	collectURL := m.endpoints.CollectConsent + "?sessionId=" + url.QueryEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, collectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("consent submit: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Credential{}, fmt.Errorf("consent submit: HTTP %d", resp.StatusCode)
	}

	copyURL := m.endpoints.CopyConsent + "?sessionId=" + url.QueryEscape(sessionID)
	if _, _, err := m.get(ctx, client, copyURL); err != nil {
		return Credential{}, fmt.Errorf("copy consent: %w", err)
	}

	crumbURL, err := m.endpoints.URL(yahoo.RouteCrumbFallback, "")
	if err != nil {
		return Credential{}, err
	}
	if cookieHeader(jar, crumbURL) == "" {
		return Credential{}, errors.New("consent flow issued no session cookie")
	}
	crumb, err := m.crumb(ctx, client, crumbURL)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Cookie: cookieHeader(jar, crumbURL), Crumb: crumb, IssuedAt: m.now()}, nil
}

func (m *Manager) crumb(ctx context.Context, client *http.Client, crumbURL string) (string, error) {
	status, body, err := m.get(ctx, client, crumbURL)
	if err != nil {
		return "", fmt.Errorf("crumb: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("crumb: HTTP %d", status)
	}
	crumb := strings.TrimSpace(body)
	if !validCrumb(crumb) {
		return "", fmt.Errorf("crumb: unusable value %q", truncate(crumb, 40))
	}
	return crumb, nil
}

func (m *Manager) get(ctx context.Context, client *http.Client, rawURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", m.userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(b), nil
}

func validCrumb(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n<>{}") {
		return false
	}
	return true
}

func cookieHeader(jar http.CookieJar, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	cookies := jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
