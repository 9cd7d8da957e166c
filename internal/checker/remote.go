package checker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"uptimizer/internal/models"
)

// ErrLinkConfig marks a linked client with incomplete link parameters;
// no network call is attempted for it.
var ErrLinkConfig = errors.New("missing remote URL, token, or client ID")

// RemoteFetcher retrieves a linked client's live statuses from the
// peer instance that owns them.
type RemoteFetcher struct {
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewRemoteFetcher creates a RemoteFetcher sharing one transport.
func NewRemoteFetcher(logger *zap.Logger) *RemoteFetcher {
	return &RemoteFetcher{
		transport: &http.Transport{},
		logger:    logger,
	}
}

// Fetch calls the peer's status-export endpoint with the client's API
// token as a bearer credential. It returns either the full fetched
// statuses map or a single error standing for the whole client's
// fetch, never a partial mix.
func (f *RemoteFetcher) Fetch(remoteURL, token, clientID string, timeoutSeconds int) (map[string]models.LiveStatus, error) {
	if remoteURL == "" || token == "" || clientID == "" {
		return nil, ErrLinkConfig
	}
	if timeoutSeconds < models.MinRemoteTimeout {
		timeoutSeconds = models.MinRemoteTimeout
	}

	endpoint := fmt.Sprintf("%s/api/v1/clients/%s/status", strings.TrimRight(remoteURL, "/"), clientID)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", probeUserAgent)

	client := &http.Client{
		Transport: f.transport,
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyFetchError(err, timeoutSeconds)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New("Connection error")
	}

	if resp.StatusCode != http.StatusOK {
		var peerErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &peerErr) == nil && peerErr.Error != "" {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, peerErr.Error)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// The peer's schema is not trusted blindly: the body must carry a
	// map-typed "statuses" field.
	var payload struct {
		Statuses json.RawMessage `json:"statuses"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.New("Invalid JSON response")
	}
	if len(payload.Statuses) == 0 {
		return nil, errors.New("invalid remote data format")
	}
	var statuses map[string]models.LiveStatus
	if err := json.Unmarshal(payload.Statuses, &statuses); err != nil || statuses == nil {
		return nil, errors.New("invalid remote data format")
	}
	return statuses, nil
}

func classifyFetchError(err error, timeoutSeconds int) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("Timeout >%ds", timeoutSeconds)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return errors.New("Connection error")
	}
	return errors.New(truncateDetails(err.Error()))
}
