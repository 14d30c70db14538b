// Package capabilities reads the layer list of a WMS server from its
// GetCapabilities document.
package capabilities

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxDocumentSize bounds the capabilities document read from the server.
const maxDocumentSize = 16 << 20

// Layer is a requestable WMS layer.
type Layer struct {
	Parameter string `json:"parameter"`
	QueryName string `json:"queryName"`
	Queryable bool   `json:"queryable"`
	LayerName string `json:"layerName"`
}

// Client fetches capabilities documents, optionally through a proxy that
// takes the target in its url query parameter.
type Client struct {
	httpClient      *http.Client
	proxyURL        string
	capabilitiesURL string
	logger          *slog.Logger
}

// NewClient creates a capabilities client. proxyURL may be empty.
func NewClient(proxyURL, capabilitiesURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		proxyURL:        proxyURL,
		capabilitiesURL: capabilitiesURL,
		logger:          logger,
	}
}

// Configured reports whether a capabilities URL is set.
func (c *Client) Configured() bool {
	return c.capabilitiesURL != ""
}

func (c *Client) requestURL() string {
	if c.proxyURL == "" {
		return c.capabilitiesURL
	}
	sep := "?"
	if strings.Contains(c.proxyURL, "?") {
		sep = "&"
	}
	return c.proxyURL + sep + url.Values{"url": {c.capabilitiesURL}}.Encode()
}

// Fetch downloads and parses the capabilities document.
func (c *Client) Fetch(ctx context.Context) ([]Layer, error) {
	if !c.Configured() {
		return nil, errors.New("capabilities url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capabilities request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("capabilities error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read capabilities: %w", err)
	}
	layers, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("capabilities fetched", "layers", len(layers))
	return layers, nil
}

// WMS capabilities wire types. The root element differs between versions
// (WMS_Capabilities, WMT_MS_Capabilities) so it is not matched.

type wmsCapabilities struct {
	Layers []wmsLayer `xml:"Capability>Layer"`
}

type wmsLayer struct {
	Queryable string     `xml:"queryable,attr"`
	Name      string     `xml:"Name"`
	Title     string     `xml:"Title"`
	Layers    []wmsLayer `xml:"Layer"`
}

// Parse extracts the named layers of a capabilities document in document
// order. LayerName is the name of the nearest named ancestor, or the layer's
// own name when it has none.
func Parse(data []byte) ([]Layer, error) {
	var doc wmsCapabilities
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	var out []Layer
	for _, l := range doc.Layers {
		out = collect(out, l, "")
	}
	return out, nil
}

func collect(out []Layer, l wmsLayer, parent string) []Layer {
	name := strings.TrimSpace(l.Name)
	group := parent
	if name != "" {
		layerName := parent
		if layerName == "" {
			layerName = name
		}
		title := strings.TrimSpace(l.Title)
		if title == "" {
			title = name
		}
		out = append(out, Layer{
			Parameter: title,
			QueryName: name,
			Queryable: l.Queryable == "1" || strings.EqualFold(l.Queryable, "true"),
			LayerName: layerName,
		})
		if group == "" {
			group = name
		}
	}
	for _, child := range l.Layers {
		out = collect(out, child, group)
	}
	return out
}
