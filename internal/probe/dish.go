package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// DishStats is the satellite dish telemetry returned by the in-namespace RPC
// endpoint.
type DishStats struct {
	Online              bool    `json:"online"`
	Obstructed          bool    `json:"obstructed"`
	ObstructionFraction float64 `json:"obstruction_fraction"`
	LatencyMs           float64 `json:"dish_latency_ms"`
	ObstructionETASec   float64 `json:"predicted_obstruction_eta_s"`
}

// DishClient is a thin HTTP client reused across polls against the dish RPC
// endpoint inside the satellite uplink's namespace, matching the "persistent
// client, never recreated" shape used by ModemClient.
type DishClient struct {
	httpClient *http.Client
	baseURL    string
	minPeriod  time.Duration

	mu      sync.Mutex
	lastAt  time.Time
	lastVal DishStats
}

// NewDishClient builds a persistent dish RPC client against baseURL.
func NewDishClient(baseURL string, minPeriod time.Duration) *DishClient {
	if minPeriod <= 0 {
		minPeriod = time.Second
	}
	return &DishClient{
		httpClient: &http.Client{Timeout: 2 * time.Second},
		baseURL:    baseURL,
		minPeriod:  minPeriod,
	}
}

// Query returns the last-known dish stats, refreshing via HTTP GET only if
// minPeriod has elapsed. Like ModemClient.Query, failures return the prior
// value unchanged rather than flagging the uplink unreachable.
func (c *DishClient) Query(ctx context.Context) DishStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastAt.IsZero() && time.Since(c.lastAt) < c.minPeriod {
		return c.lastVal
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	c.lastAt = time.Now()
	if err != nil {
		return c.lastVal
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.lastVal
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.lastVal
	}

	var stats DishStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return c.lastVal
	}
	c.lastVal = stats
	return c.lastVal
}
