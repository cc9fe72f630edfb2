package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// DefaultClientTimeout bounds a single request when the caller's context
// carries no deadline.
const DefaultClientTimeout = 30 * time.Second

// Client is an Authority reached over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultClientTimeout},
	}
}

// Submit posts the submission and decodes one result per patch. Any
// transport or server failure is returned as an error: the caller cannot
// know whether the patches were applied.
func (c *Client) Submit(ctx context.Context, treeID string, patches, inverses []domain.Patch, isRedo bool) ([]ports.Result, error) {
	body, err := json.Marshal(SubmitRequest{Patches: patches, Inverses: inverses, IsRedo: isRedo})
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	endpoint := fmt.Sprintf("%s/trees/%s/submit", c.BaseURL, url.PathEscape(treeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp SubmitResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("submit %s: %w", treeID, err)
	}
	if len(resp.Results) != len(patches) {
		return nil, fmt.Errorf("submit %s: %d results for %d patches", treeID, len(resp.Results), len(patches))
	}
	return resp.Results, nil
}

// Tree fetches the current snapshot of treeID.
func (c *Client) Tree(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	endpoint := fmt.Sprintf("%s/trees/%s", c.BaseURL, url.PathEscape(treeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var snap domain.TreeSnapshot
	if err := c.do(req, &snap); err != nil {
		return nil, fmt.Errorf("get tree %s: %w", treeID, err)
	}
	return &snap, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrTreeNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ ports.Authority = (*Client)(nil)
