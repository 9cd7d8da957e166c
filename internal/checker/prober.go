package checker

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"uptimizer/internal/models"
)

const (
	probeUserAgent  = "Uptimizer/1.0"
	maxRedirects    = 10
	maxErrorDetails = 200
)

var errTooManyRedirects = errors.New("stopped after too many redirects")

// Prober executes one HTTP health check against one endpoint with a
// bounded timeout and classifies the outcome.
type Prober struct {
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewProber creates a Prober. All probes share one transport for
// connection reuse; the timeout is per-probe via the client.
func NewProber(logger *zap.Logger) *Prober {
	return &Prober{
		transport: &http.Transport{},
		logger:    logger,
	}
}

// Probe issues a GET against the endpoint's URL, following redirects,
// and classifies the result. Target-health failures come back as
// DOWN results, never as errors; only an internal malfunction of the
// checker itself yields ERROR.
func (p *Prober) Probe(ep models.Endpoint, settings models.Settings) (result models.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("probe panicked",
				zap.String("endpoint_id", ep.ID),
				zap.Any("panic", r))
			result = models.CheckResult{Status: models.StatusError, Details: "Check error"}
		}
	}()

	if ep.URL == "" {
		return models.CheckResult{Status: models.StatusError, Details: "Missing URL"}
	}

	timeout := ep.EffectiveTimeout(settings.CheckTimeoutSeconds)
	client := &http.Client{
		Transport: p.transport,
		Timeout:   time.Duration(timeout) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	req, err := http.NewRequest(http.MethodGet, ep.URL, nil)
	if err != nil {
		return models.CheckResult{Status: models.StatusDown, Details: truncateDetails(err.Error())}
	}
	req.Header.Set("User-Agent", probeUserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return models.CheckResult{Status: models.StatusDown, Details: classifyProbeError(err, timeout)}
	}
	elapsed := time.Since(start)
	resp.Body.Close()

	// Elapsed time is only meaningful on a completed HTTP exchange.
	ms := int64(math.Round(float64(elapsed) / float64(time.Millisecond)))
	code := resp.StatusCode
	if code >= 200 && code < 400 {
		return models.CheckResult{Status: models.StatusUp, StatusCode: &code, ResponseTimeMS: &ms}
	}
	return models.CheckResult{
		Status:         models.StatusDown,
		StatusCode:     &code,
		ResponseTimeMS: &ms,
		Details:        fmt.Sprintf("HTTP %d", code),
	}
}

// classifyProbeError maps a transport error to a detail string. Order
// matters: a timeout also surfaces as a net.Error, so it is checked
// first.
func classifyProbeError(err error, timeoutSeconds int) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Sprintf("Timeout >%ds", timeoutSeconds)
	}
	if errors.Is(err, errTooManyRedirects) {
		return "Too many redirects"
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return "Connection error"
	}
	msg := err.Error()
	if ue := new(url.Error); errors.As(err, &ue) {
		msg = ue.Err.Error()
	}
	return truncateDetails(msg)
}

func truncateDetails(msg string) string {
	if len(msg) > maxErrorDetails {
		return msg[:maxErrorDetails] + "..."
	}
	return msg
}
