package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/loykin/gsmon/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Collector POSTs envelopes as JSON to the configured endpoints. Each publish
// runs in its own goroutine; posts may overlap and arrive out of order.
type Collector struct {
	DataURL    string
	EventsURL  string
	AuthHeader string
	AuthValue  string
	Client     *http.Client
	Logger     *slog.Logger

	wg sync.WaitGroup
}

func NewCollector(dataURL, eventsURL string) *Collector {
	return &Collector{
		DataURL:   dataURL,
		EventsURL: eventsURL,
		Client:    &http.Client{Timeout: defaultTimeout},
	}
}

// WithAuth sets a header sent with every request.
func (c *Collector) WithAuth(header, value string) *Collector {
	c.AuthHeader, c.AuthValue = header, value
	return c
}

func (c *Collector) PublishData(ctx context.Context, d Data) {
	c.post(ctx, "data", c.DataURL, d)
}

func (c *Collector) PublishEvent(ctx context.Context, e Event) {
	c.post(ctx, "events", c.EventsURL, e)
}

// Wait blocks until all in-flight posts finished.
func (c *Collector) Wait() { c.wg.Wait() }

func (c *Collector) post(ctx context.Context, kind, url string, v any) {
	if url == "" {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		c.logger().Warn("telemetry encode failed", "kind", kind, "error", err)
		return
	}
	// The post outlives the tick that produced it.
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.send(ctx, url, body)
		metrics.IncPublish(kind, err == nil)
		if err != nil {
			c.logger().Debug("telemetry post failed", "kind", kind, "url", url, "error", err)
		}
	}()
}

func (c *Collector) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AuthHeader != "" {
		req.Header.Set(c.AuthHeader, c.AuthValue)
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector status %d", resp.StatusCode)
	}
	return nil
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
