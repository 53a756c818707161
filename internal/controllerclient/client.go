// Package controllerclient is a thin HTTP client used only for the one-way,
// fire-and-forget return-route-switch advisory the Route Actuator sends on a
// verified switch (spec.md §4.6), adapted from the teacher's internal/api
// client.
package controllerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client posts switch notifications to a Controller.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// SwitchNotification describes a verified route switch, sent for the
// Controller's own advisory bookkeeping (e.g. which path to prefer for
// return traffic).
type SwitchNotification struct {
	ActiveUplink string `json:"active_uplink"`
	Kind         string `json:"kind"`
	SwitchedAt   int64  `json:"switched_at_unix_ms"`
}

// NotifySwitch posts a SwitchNotification. Callers should invoke this in a
// goroutine with a bounded context — it must never block the Arbiter.
func (c *Client) NotifySwitch(ctx context.Context, n SwitchNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/route-switch", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("route-switch notify failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("route-switch notify failed: %s", res.Status)
	}
	return nil
}

// FireAndForget runs NotifySwitch in its own goroutine with a short timeout,
// logging nothing itself — a failed notification is reported only through
// onErr, when it is non-nil.
func (c *Client) FireAndForget(n SwitchNotification, onErr func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.NotifySwitch(ctx, n); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}
