// Package trello is a small client for the board REST API calls the relay
// makes: create a card, scan the target list, attach a label and upload
// attachments.
//
// Credentials and the target list are fixed at construction. Every call
// takes a context and is bounded by the client timeout.
package trello

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
)

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 1 << 10

// Client talks to one board list with one set of credentials.
type Client struct {
	baseURL    string
	key        string
	token      string
	listID     string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A zero Timeout on the
// given client is replaced with the configured one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		if copied.Timeout == 0 {
			copied.Timeout = c.httpClient.Timeout
		}
		c.httpClient = &copied
	}
}

// NewClient builds a Client from the trello config block.
//
// The transport is wrapped by New Relic so every call shows up as an
// external segment of the request transaction when APM is enabled.
func NewClient(cfg config.TrelloConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTrelloTimeout
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultTrelloBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     cfg.APIKey,
		token:   cfg.APIToken,
		listID:  cfg.ListID,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListID is the list new cards are created in.
func (c *Client) ListID() string {
	return c.listID
}

// Timeout is the bound applied to every call.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// CreateCard creates a card at the top of the target list.
//
// A 2xx response whose body is not a card yields an error wrapping
// ErrMalformedResponse; the card may still exist on the board.
func (c *Client) CreateCard(ctx context.Context, params CardParams) (*Card, error) {
	fields := []formField{
		{"idList", c.listID},
		{"name", params.Name},
		{"desc", params.Desc},
		{"pos", "top"},
	}

	var card Card
	if err := c.postMultipart(ctx, "/cards", fields, nil, &card); err != nil {
		return nil, err
	}

	return &card, nil
}

// ListCards returns the open cards of the target list.
func (c *Client) ListCards(ctx context.Context) ([]Card, error) {
	var cards []Card
	if err := c.get(ctx, "/lists/"+url.PathEscape(c.listID)+"/cards", &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetList fetches the target list.
func (c *Client) GetList(ctx context.Context) (*List, error) {
	var list List
	if err := c.get(ctx, "/lists/"+url.PathEscape(c.listID), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// AddLabel attaches an existing label to a card.
func (c *Client) AddLabel(ctx context.Context, cardID, labelID string) error {
	fields := []formField{{"value", labelID}}
	return c.postMultipart(ctx, "/cards/"+url.PathEscape(cardID)+"/idLabels", fields, nil, nil)
}

// AddAttachment uploads a file to a card.
func (c *Client) AddAttachment(ctx context.Context, cardID string, a Attachment) (*AttachmentInfo, error) {
	var fields []formField
	if a.SetCover {
		fields = append(fields, formField{"setCover", "true"})
	}
	if a.Name != "" {
		fields = append(fields, formField{"name", a.Name})
	}
	if a.ContentType != "" {
		fields = append(fields, formField{"mimeType", a.ContentType})
	}

	var info AttachmentInfo
	if err := c.postMultipart(ctx, "/cards/"+url.PathEscape(cardID)+"/attachments", fields, &a, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type formField struct {
	name  string
	value string
}

// postMultipart sends key, token, fields and an optional file part as
// multipart/form-data. out may be nil when the body is not needed.
func (c *Client) postMultipart(ctx context.Context, path string, fields []formField, file *Attachment, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	all := append([]formField{{"key", c.key}, {"token", c.token}}, fields...)
	for _, f := range all {
		if err := w.WriteField(f.name, f.value); err != nil {
			return errors.Wrapf(err, "write field %s", f.name)
		}
	}

	if file != nil {
		if err := writeFilePart(w, file); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, path, out)
}

func writeFilePart(w *multipart.Writer, a *Attachment) error {
	src, err := os.Open(a.Path)
	if err != nil {
		return errors.Wrapf(err, "open attachment %s", a.Filename)
	}
	defer src.Close()

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, a.Filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return errors.Wrap(err, "create file part")
	}

	if _, err := io.Copy(part, src); err != nil {
		return errors.Wrapf(err, "copy attachment %s", a.Filename)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	query := url.Values{}
	query.Set("key", c.key)
	query.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, path, out)
}

// do executes req. Any status >= 400 is an *APIError; credentials never
// appear in returned errors because only the path is reported.
func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, which carries the query credentials.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return errors.Wrapf(err, "trello: %s %s", req.Method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method: req.Method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("trello: %s %s: %w: %v", req.Method, path, ErrMalformedResponse, err)
	}
	return nil
}

// StatusCode extracts the HTTP status from an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
