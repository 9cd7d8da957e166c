package checker

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uptimizer/internal/models"
)

func testSettings() models.Settings {
	return models.Settings{CheckIntervalSeconds: 30, CheckTimeoutSeconds: 10}
}

func intPtr(v int) *int { return &v }

func TestProbeClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code    int
		want    models.Status
		details string
	}{
		{200, models.StatusUp, ""},
		{204, models.StatusUp, ""},
		{399, models.StatusUp, ""},
		{400, models.StatusDown, "HTTP 400"},
		{404, models.StatusDown, "HTTP 404"},
		{500, models.StatusDown, "HTTP 500"},
		{503, models.StatusDown, "HTTP 503"},
	}
	p := NewProber(zap.NewNop())
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.code), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			}))
			defer ts.Close()

			res := p.Probe(models.Endpoint{ID: "e1", URL: ts.URL}, testSettings())
			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, tc.details, res.Details)
			require.NotNil(t, res.StatusCode)
			assert.Equal(t, tc.code, *res.StatusCode)
			require.NotNil(t, res.ResponseTimeMS, "completed exchange must report elapsed time")
		})
	}
}

func TestProbeFollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()
	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	p := NewProber(zap.NewNop())
	res := p.Probe(models.Endpoint{ID: "e1", URL: redirecting.URL}, testSettings())
	assert.Equal(t, models.StatusUp, res.Status)
}

func TestProbeRedirectLoop(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL, http.StatusFound)
	}))
	defer ts.Close()

	p := NewProber(zap.NewNop())
	res := p.Probe(models.Endpoint{ID: "e1", URL: ts.URL}, testSettings())
	assert.Equal(t, models.StatusDown, res.Status)
	assert.Equal(t, "Too many redirects", res.Details)
	assert.Nil(t, res.ResponseTimeMS)
}

func TestProbeMissingURL(t *testing.T) {
	p := NewProber(zap.NewNop())
	res := p.Probe(models.Endpoint{ID: "e1"}, testSettings())
	assert.Equal(t, models.StatusError, res.Status)
	assert.Equal(t, "Missing URL", res.Details)
	assert.Nil(t, res.StatusCode)
}

func TestProbeConnectionRefused(t *testing.T) {
	// Reserve a port, then close it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	p := NewProber(zap.NewNop())
	res := p.Probe(models.Endpoint{ID: "e1", URL: "http://" + addr}, testSettings())
	assert.Equal(t, models.StatusDown, res.Status)
	assert.Equal(t, "Connection error", res.Details)
	assert.Nil(t, res.ResponseTimeMS, "elapsed time is meaningless on error paths")
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		ts.Close()
	}()

	p := NewProber(zap.NewNop())
	ep := models.Endpoint{ID: "e1", URL: ts.URL, TimeoutSeconds: intPtr(1)}
	res := p.Probe(ep, testSettings())
	assert.Equal(t, models.StatusDown, res.Status)
	assert.Equal(t, "Timeout >1s", res.Details)
	assert.Nil(t, res.ResponseTimeMS)
}

func TestProbeTimeoutResolution(t *testing.T) {
	global := models.Settings{CheckIntervalSeconds: 30, CheckTimeoutSeconds: 10}

	assert.Equal(t, 10, models.Endpoint{}.EffectiveTimeout(global.CheckTimeoutSeconds))
	assert.Equal(t, 3, models.Endpoint{TimeoutSeconds: intPtr(3)}.EffectiveTimeout(global.CheckTimeoutSeconds))
	// Overrides below the floor are clamped, not rejected.
	assert.Equal(t, 1, models.Endpoint{TimeoutSeconds: intPtr(0)}.EffectiveTimeout(global.CheckTimeoutSeconds))

	assert.Equal(t, 30, models.Endpoint{}.EffectiveInterval(global.CheckIntervalSeconds))
	assert.Equal(t, 5, models.Endpoint{IntervalSeconds: intPtr(2)}.EffectiveInterval(global.CheckIntervalSeconds))
}
