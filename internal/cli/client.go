package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Terasay/viau-sub000/internal/catalog"
	"github.com/Terasay/viau-sub000/internal/research"
	"github.com/Terasay/viau-sub000/internal/visibility"
)

// APIError is a non-2xx answer from the research API.
type APIError struct {
	Status    int    `json:"-"`
	Message   string `json:"error"`
	Kind      string `json:"kind"`
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsAPIError reports whether err came back from the server rather than the
// network.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Client struct {
	BaseURL    string
	AdminToken string
	HTTP       *http.Client
}

func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: strings.TrimSpace(adminToken),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Categories(ctx context.Context) ([]catalog.Summary, error) {
	var out struct {
		Categories []catalog.Summary `json:"categories"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/categories", nil, &out)
	return out.Categories, err
}

func (c *Client) Technology(ctx context.Context, techID string) (research.TechnologyView, error) {
	var out research.TechnologyView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/technologies/"+url.PathEscape(techID), nil, &out)
	return out, err
}

func (c *Client) Tree(ctx context.Context, nationID, category string, reveal bool) (visibility.Tree, error) {
	path := fmt.Sprintf("/v1/nations/%s/tree/%s", url.PathEscape(nationID), url.PathEscape(category))
	if reveal {
		path += "?reveal=1"
	}
	var out visibility.Tree
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Preview(ctx context.Context, category string, researched []string, reveal bool) (visibility.Tree, error) {
	if researched == nil {
		researched = []string{}
	}
	var out visibility.Tree
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/categories/"+url.PathEscape(category)+"/preview", map[string]any{
		"researched": researched,
		"reveal":     reveal,
	}, &out)
	return out, err
}

func (c *Client) Research(ctx context.Context, nationID, techID string) (research.CommitResult, error) {
	var out research.CommitResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/nations/"+url.PathEscape(nationID)+"/research", map[string]any{
		"tech_id": techID,
	}, &out)
	return out, err
}

func (c *Client) Progress(ctx context.Context, nationID string) ([]research.Record, error) {
	var out struct {
		Progress []research.Record `json:"progress"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/nations/"+url.PathEscape(nationID)+"/progress", nil, &out)
	return out.Progress, err
}

func (c *Client) Nation(ctx context.Context, nationID string) (research.Nation, error) {
	var out research.Nation
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/nations/"+url.PathEscape(nationID), nil, &out)
	return out, err
}

func (c *Client) CreateNation(ctx context.Context, name string, points int64) (research.Nation, error) {
	var out research.Nation
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/nations", map[string]any{
		"name":            name,
		"research_points": points,
	}, &out)
	return out, err
}

func (c *Client) GrantPoints(ctx context.Context, nationID string, amount int64) (int64, error) {
	var out struct {
		ResearchPoints int64 `json:"research_points"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/nations/"+url.PathEscape(nationID)+"/points", map[string]any{
		"amount": amount,
	}, &out)
	return out.ResearchPoints, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
