// Package remote is the HTTP client for the documents REST API.
// It has no cache awareness; every call goes to the network.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const DefaultBaseURL = "http://localhost:4000/api"

// API is the remote store contract consumed by docsync.
type API interface {
	Folders(ctx context.Context) ([]Folder, error)
	DocumentsByFolder(ctx context.Context, folderID string) ([]Document, error)
	CreateFolder(ctx context.Context, name string) (Folder, error)
	DeleteFolder(ctx context.Context, id string) error

	Document(ctx context.Context, id string) (Document, error)
	CreateDocument(ctx context.Context, doc NewDocument) (Document, error)
	UpdateDocument(ctx context.Context, id, content string) (Document, error)
	DeleteDocument(ctx context.Context, id string) error

	Search(ctx context.Context, query string) ([]SearchResult, error)

	History(ctx context.Context) ([]HistoryEntry, error)
	AddHistory(ctx context.Context, id, title string) error
}

type Config struct {
	BaseURL    string        // "" => DefaultBaseURL
	HTTPClient *http.Client  // nil => new client with Timeout
	Timeout    time.Duration // 0 => 30s; ignored when HTTPClient is set
	UserAgent  string
}

type Client struct {
	base *url.URL
	hc   *http.Client
	ua   string
}

var _ API = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q: scheme must be http or https", raw)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: u, hc: hc, ua: cfg.UserAgent}, nil
}

func (c *Client) Folders(ctx context.Context) ([]Folder, error) {
	var out []Folder
	err := c.do(ctx, "list folders", http.MethodGet, "/folders", nil, nil, &out)
	return out, err
}

func (c *Client) DocumentsByFolder(ctx context.Context, folderID string) ([]Document, error) {
	var out []Document
	err := c.do(ctx, "list documents", http.MethodGet, "/folders/"+url.PathEscape(folderID), nil, nil, &out)
	return out, err
}

func (c *Client) CreateFolder(ctx context.Context, name string) (Folder, error) {
	var out Folder
	err := c.do(ctx, "create folder", http.MethodPost, "/folders", nil, map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	var st statusResponse
	return c.do(ctx, "delete folder", http.MethodDelete, "/folders/"+url.PathEscape(id), nil, nil, &st)
}

func (c *Client) Document(ctx context.Context, id string) (Document, error) {
	var out Document
	err := c.do(ctx, "get document", http.MethodGet, "/documents/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateDocument(ctx context.Context, doc NewDocument) (Document, error) {
	var out Document
	err := c.do(ctx, "create document", http.MethodPost, "/documents", nil, doc, &out)
	return out, err
}

func (c *Client) UpdateDocument(ctx context.Context, id, content string) (Document, error) {
	var out Document
	err := c.do(ctx, "update document", http.MethodPatch, "/documents/"+url.PathEscape(id), nil,
		map[string]string{"content": content}, &out)
	return out, err
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	var st statusResponse
	return c.do(ctx, "delete document", http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil, &st)
}

func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var out []SearchResult
	err := c.do(ctx, "search", http.MethodGet, "/search", url.Values{"query": {query}}, nil, &out)
	return out, err
}

func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := c.do(ctx, "list history", http.MethodGet, "/history", nil, nil, &out)
	return out, err
}

func (c *Client) AddHistory(ctx context.Context, id, title string) error {
	var st statusResponse
	return c.do(ctx, "add history", http.MethodPost, "/history", nil,
		map[string]string{"id": id, "title": title}, &st)
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	u := *c.base
	u.Path += path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Message: genericMessage, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, StatusCode: res.StatusCode, Message: genericMessage, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := genericMessage
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		return &Error{Kind: kindForStatus(res.StatusCode), Op: op, StatusCode: res.StatusCode, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindNetwork, Op: op, StatusCode: res.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
