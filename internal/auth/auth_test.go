package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

type fakeUpstream struct {
	directCookie  bool
	consentOK     bool
	crumbBody     string
	crumbDelay    time.Duration
	crumbRequests atomic.Int32
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		if f.directCookie {
			http.SetCookie(w, &http.Cookie{Name: "A3", Value: "direct", Path: "/"})
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/consent", func(w http.ResponseWriter, r *http.Request) {
		if !f.consentOK {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<form><input type="hidden" name="csrfToken" value="tok123">` +
			`<input type="hidden" name="sessionId" value="sess-9"></form>`))
	})
	mux.HandleFunc("/v2/collectConsent", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("csrfToken") != "tok123" || r.URL.Query().Get("sessionId") != "sess-9" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "A1", Value: "consent", Path: "/"})
	})
	mux.HandleFunc("/copyConsent", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		f.crumbRequests.Add(1)
		if f.crumbDelay > 0 {
			time.Sleep(f.crumbDelay)
		}
		if len(r.Cookies()) == 0 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(f.crumbBody))
	})
	return mux
}

func newTestManager(t *testing.T, f *fakeUpstream, now func() time.Time) *Manager {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewManager(Config{
		Endpoints:  yahoo.SingleHost(srv.URL),
		HTTPClient: srv.Client(),
		Now:        now,
	})
}

func TestGetOrRefresh_DirectPath(t *testing.T) {
	f := &fakeUpstream{directCookie: true, crumbBody: "crumbA"}
	m := newTestManager(t, f, nil)

	cred, err := m.GetOrRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "crumbA", cred.Crumb)
	assert.Equal(t, "A3=direct", cred.Cookie)
	assert.True(t, cred.Valid())

	// Cached: no second network refresh.
	_, err = m.GetOrRefresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.crumbRequests.Load())
}

func TestGetOrRefresh_ConsentFallback(t *testing.T) {
	f := &fakeUpstream{directCookie: false, consentOK: true, crumbBody: "crumbB"}
	m := newTestManager(t, f, nil)

	cred, err := m.GetOrRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "crumbB", cred.Crumb)
	assert.Contains(t, cred.Cookie, "A1=consent")
}

func TestGetOrRefresh_BothPathsFail(t *testing.T) {
	f := &fakeUpstream{}
	m := newTestManager(t, f, nil)

	_, err := m.GetOrRefresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	_, ok := m.Current()
	assert.False(t, ok, "failed refresh must not install a credential")
}

func TestGetOrRefresh_RejectsHTMLCrumb(t *testing.T) {
	f := &fakeUpstream{directCookie: true, crumbBody: "<html>blocked</html>"}
	m := newTestManager(t, f, nil)

	_, err := m.GetOrRefresh(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGetOrRefresh_ConcurrentColdCallersShareOneRefresh(t *testing.T) {
	f := &fakeUpstream{directCookie: true, crumbBody: "crumbC", crumbDelay: 50 * time.Millisecond}
	m := newTestManager(t, f, nil)

	var wg sync.WaitGroup
	creds := make([]Credential, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds[i], errs[i] = m.GetOrRefresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range creds {
		require.NoError(t, errs[i])
		assert.Equal(t, "crumbC", creds[i].Crumb)
	}
	assert.EqualValues(t, 1, f.crumbRequests.Load())
}

func TestGetOrRefresh_TTLExpiry(t *testing.T) {
	var clock atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return base.Add(time.Duration(clock.Load())) }

	f := &fakeUpstream{directCookie: true, crumbBody: "crumbD"}
	m := newTestManager(t, f, now)

	_, err := m.GetOrRefresh(context.Background())
	require.NoError(t, err)

	clock.Store(int64(30 * time.Minute))
	_, err = m.GetOrRefresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.crumbRequests.Load())

	clock.Store(int64(61 * time.Minute))
	_, err = m.GetOrRefresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.crumbRequests.Load())
}

func TestForceRefresh(t *testing.T) {
	var clock atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return base.Add(time.Duration(clock.Load())) }

	f := &fakeUpstream{directCookie: true, crumbBody: "crumbE"}
	m := newTestManager(t, f, now)

	first, err := m.GetOrRefresh(context.Background())
	require.NoError(t, err)

	clock.Store(int64(time.Second))
	second, err := m.ForceRefresh(context.Background(), first)
	require.NoError(t, err)
	assert.True(t, second.IssuedAt.After(first.IssuedAt))
	assert.EqualValues(t, 2, f.crumbRequests.Load())

	// A caller still holding the first credential gets the replacement for free.
	third, err := m.ForceRefresh(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, second, third)
	assert.EqualValues(t, 2, f.crumbRequests.Load())
}

func TestGetOrRefresh_CallerCancellation(t *testing.T) {
	f := &fakeUpstream{directCookie: true, crumbBody: "crumbF", crumbDelay: 100 * time.Millisecond}
	m := newTestManager(t, f, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.GetOrRefresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached refresh still completes and installs the credential.
	require.Eventually(t, func() bool {
		_, ok := m.Current()
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestValidCrumb(t *testing.T) {
	assert.True(t, validCrumb("abc.DEF/12"))
	assert.False(t, validCrumb(""))
	assert.False(t, validCrumb("has space"))
	assert.False(t, validCrumb("<html>"))
	assert.False(t, validCrumb(`{"finance":null}`))
}
