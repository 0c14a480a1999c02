package trello

import (
	"errors"
	"fmt"
)

// Card is the subset of the board API's card object the relay reads.
type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Desc     string   `json:"desc"`
	IDList   string   `json:"idList"`
	IDBoard  string   `json:"idBoard"`
	IDLabels []string `json:"idLabels"`
	Pos      float64  `json:"pos"`
	Closed   bool     `json:"closed"`
	URL      string   `json:"url"`
	ShortURL string   `json:"shortUrl"`
}

// List is the subset of the list object used by health checks.
type List struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

// AttachmentInfo is the board API's answer to an attachment upload.
type AttachmentInfo struct {
	ID       string `json:"id"`
	Bytes    *int64 `json:"bytes"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Pos      int    `json:"pos"`
}

// CardParams are the fields sent when creating a card. The card always goes
// to the client's list, at the top.
type CardParams struct {
	Name string
	Desc string
}

// Attachment is one file to upload to a card.
type Attachment struct {
	// Path is read when the request is built.
	Path        string
	Filename    string
	ContentType string
	// Name is an optional display name.
	Name     string
	SetCover bool
}

// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// APIError is returned for responses with a 4xx or 5xx status.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trello: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}
