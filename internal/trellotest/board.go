// Package trellotest provides an in-memory board API that behaves like the
// parts of the real one the relay uses. Tests run it with NewServer;
// cmd/minitrello serves it standalone for manual end-to-end checks.
//
// Routes (all under /1, key and token required):
//
//	POST /1/cards                   create a card
//	POST /1/cards/:id/idLabels      append a label id
//	POST /1/cards/:id/attachments   store an attachment record
//	GET  /1/lists/:id               list metadata
//	GET  /1/lists/:id/cards         cards of a list, by position
//
// GET /__get_state dumps lists and attachments as JSON.
package trellotest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Fixed credentials matching the formats the board enforces.
const (
	TestKey    = "0123456789abcdef0123456789abcdef"
	TestToken  = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	TestListID = "5f0c1d2e3a4b5c6d7e8f9012"
)

// Route names accepted by Board.Fail and Board.Calls.
const (
	RouteCreateCard    = "create_card"
	RouteAddLabel      = "add_label"
	RouteAddAttachment = "add_attachment"
	RouteListCards     = "list_cards"
	RouteGetList       = "get_list"
)

var (
	keyRegex   = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	tokenRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	idRegex    = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// Card is a stored card.
type Card struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Desc              string    `json:"desc"`
	IDList            string    `json:"idList"`
	IDBoard           string    `json:"idBoard"`
	IDLabels          []string  `json:"idLabels"`
	IDAttachmentCover string    `json:"idAttachmentCover"`
	Pos               float64   `json:"pos"`
	Closed            bool      `json:"closed"`
	DateLastActivity  time.Time `json:"dateLastActivity"`
	URL               string    `json:"url"`
	ShortURL          string    `json:"shortUrl"`
}

// Attachment is a stored attachment record.
type Attachment struct {
	ID       string    `json:"id"`
	Bytes    *int64    `json:"bytes"`
	Date     time.Time `json:"date"`
	IsUpload bool      `json:"isUpload"`
	MimeType string    `json:"mimeType"`
	Name     string    `json:"name"`
	Pos      int       `json:"pos"`

	// Not part of real responses.
	Checksum string `json:"-"`
	FileName string `json:"-"`
	IsCover  bool   `json:"-"`
}

// State is the dump served by GET /__get_state.
type State struct {
	Lists       map[string][]Card       `json:"lists"`
	Attachments map[string][]Attachment `json:"attachments"`
}

// Board is the in-memory board. It is safe for concurrent use.
type Board struct {
	mu          sync.Mutex
	lists       map[string][]*Card
	attachments map[string][]Attachment
	calls       map[string]int
	failures    map[string]int
	omitCardID  bool

	echo *echo.Echo
}

// NewBoard creates an empty board with its routes registered.
func NewBoard() *Board {
	b := &Board{
		lists:       map[string][]*Card{},
		attachments: map[string][]Attachment{},
		calls:       map[string]int{},
		failures:    map[string]int{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api := e.Group("/1", b.requireCredentials)
	api.POST("/cards", b.counted(RouteCreateCard, b.createCard))
	api.POST("/cards/:id/idLabels", b.counted(RouteAddLabel, b.addLabel))
	api.POST("/cards/:id/attachments", b.counted(RouteAddAttachment, b.addAttachment))
	api.GET("/lists/:id", b.counted(RouteGetList, b.getList))
	api.GET("/lists/:id/cards", b.counted(RouteListCards, b.listCards))

	e.GET("/__get_state", b.getState)

	b.echo = e
	return b
}

// Handler returns the board's HTTP handler.
func (b *Board) Handler() http.Handler {
	return b.echo
}

// Fail makes every later call to route answer with status.
// A zero status clears the failure.
func (b *Board) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// OmitCardID makes card creation answer without the card id, like
// deployments whose create response cannot be relied on.
func (b *Board) OmitCardID(omit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.omitCardID = omit
}

// Calls returns how many requests reached route, failed ones included.
func (b *Board) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls[route]
}

// TotalCalls returns the number of API requests received.
func (b *Board) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

// SeedCard stores a card directly, bypassing the API.
func (b *Board) SeedCard(listID, name string) Card {
	b.mu.Lock()
	defer b.mu.Unlock()

	card := b.insertCard(listID, name, "", "bottom")
	return *card
}

// Cards returns a copy of the cards of a list, by position.
func (b *Board) Cards(listID string) []Card {
	b.mu.Lock()
	defer b.mu.Unlock()

	return copyCards(b.lists[listID])
}

// Attachments returns a copy of the attachments of a card, in upload order.
func (b *Board) Attachments(cardID string) []Attachment {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.attachments[cardID])
}

// State returns a copy of the whole board.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := State{
		Lists:       map[string][]Card{},
		Attachments: map[string][]Attachment{},
	}
	for id, cards := range b.lists {
		state.Lists[id] = copyCards(cards)
	}
	for id, attachments := range b.attachments {
		state.Attachments[id] = slices.Clone(attachments)
	}
	return state
}

func (b *Board) requireCredentials(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !keyRegex.MatchString(c.FormValue("key")) || !tokenRegex.MatchString(c.FormValue("token")) {
			return c.String(http.StatusUnauthorized, "invalid key")
		}
		return next(c)
	}
}

func (b *Board) counted(route string, h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.mu.Lock()
		b.calls[route]++
		status := b.failures[route]
		b.mu.Unlock()

		if status != 0 {
			return c.String(status, http.StatusText(status))
		}
		return h(c)
	}
}

func (b *Board) createCard(c echo.Context) error {
	idList := c.FormValue("idList")
	if idList == "" {
		return c.String(http.StatusBadRequest, "idList required")
	}
	if !idRegex.MatchString(idList) {
		return c.String(http.StatusBadRequest, "invalid idList value")
	}

	pos := c.FormValue("pos")
	if pos == "" {
		pos = "bottom"
	}
	if pos != "top" && pos != "bottom" {
		if _, err := strconv.ParseFloat(pos, 64); err != nil {
			return c.String(http.StatusBadRequest, "invalid value for pos")
		}
	}

	b.mu.Lock()
	card := *b.insertCard(idList, c.FormValue("name"), c.FormValue("desc"), pos)
	omit := b.omitCardID
	b.mu.Unlock()

	if omit {
		body := cardResponse(card)
		delete(body, "id")
		return c.JSON(http.StatusOK, body)
	}
	return c.JSON(http.StatusOK, card)
}

// insertCard must be called with b.mu held.
func (b *Board) insertCard(listID, name, desc, pos string) *Card {
	cards := b.lists[listID]

	var newPos float64
	switch pos {
	case "bottom":
		newPos = 1000.0
		if len(cards) > 0 {
			newPos = cards[len(cards)-1].Pos + 1.0
		}
	case "top":
		newPos = 10.0
		if len(cards) > 0 {
			newPos = cards[0].Pos / 2.0
		}
	default:
		newPos, _ = strconv.ParseFloat(pos, 64)
	}

	id := newID()
	card := &Card{
		ID:               id,
		Name:             name,
		Desc:             desc,
		IDList:           listID,
		IDLabels:         []string{},
		Pos:              newPos,
		DateLastActivity: time.Now().UTC(),
		ShortURL:         "https://trello.com/c/" + id[:8],
		URL:              "https://trello.com/c/" + id[:8],
	}

	cards = append(cards, card)
	slices.SortStableFunc(cards, func(x, y *Card) int {
		switch {
		case x.Pos < y.Pos:
			return -1
		case x.Pos > y.Pos:
			return 1
		default:
			return 0
		}
	})
	b.lists[listID] = cards

	return card
}

func (b *Board) addLabel(c echo.Context) error {
	cardID := c.Param("id")
	if !idRegex.MatchString(cardID) {
		return c.String(http.StatusBadRequest, "invalid cardid value")
	}

	value := c.FormValue("value")
	if value != "" {
		b.mu.Lock()
		defer b.mu.Unlock()

		if card := b.findCard(strings.ToLower(cardID)); card != nil {
			card.IDLabels = append(card.IDLabels, value)
			return c.JSON(http.StatusOK, card.IDLabels)
		}
	}

	return c.String(http.StatusBadRequest, "invalid value for value")
}

func (b *Board) addAttachment(c echo.Context) error {
	cardID := c.Param("id")
	if !idRegex.MatchString(cardID) {
		return c.String(http.StatusBadRequest, "invalid cardid value")
	}

	attachment := Attachment{
		ID:   newID(),
		Date: time.Now().UTC(),
	}

	if fh, err := c.FormFile("file"); err == nil {
		src, err := fh.Open()
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}
		defer src.Close()

		hash := sha256.New()
		size, err := io.Copy(hash, src)
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable file")
		}

		attachment.Bytes = &size
		attachment.Checksum = hex.EncodeToString(hash.Sum(nil))
		attachment.IsUpload = true
		attachment.MimeType = fh.Header.Get("Content-Type")
		attachment.Name = fh.Filename
		attachment.FileName = fh.Filename
	}

	if mimeType := c.FormValue("mimeType"); mimeType != "" {
		attachment.MimeType = mimeType
	}
	if name := c.FormValue("name"); name != "" {
		attachment.Name = name
	}
	attachment.IsCover = c.FormValue("setCover") == "true"

	b.mu.Lock()
	defer b.mu.Unlock()

	attachment.Pos = len(b.attachments[cardID])
	b.attachments[cardID] = append(b.attachments[cardID], attachment)

	if attachment.IsCover {
		if card := b.findCard(strings.ToLower(cardID)); card != nil {
			card.IDAttachmentCover = attachment.ID
		}
	}

	return c.JSON(http.StatusOK, attachment)
}

func (b *Board) getList(c echo.Context) error {
	listID := c.Param("id")
	if !idRegex.MatchString(listID) {
		return c.String(http.StatusBadRequest, "invalid value for id")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":     listID,
		"name":   "Inbox",
		"closed": false,
	})
}

func (b *Board) listCards(c echo.Context) error {
	b.mu.Lock()
	cards := copyCards(b.lists[c.Param("id")])
	b.mu.Unlock()

	return c.JSON(http.StatusOK, cards)
}

func (b *Board) getState(c echo.Context) error {
	return c.JSON(http.StatusOK, b.State())
}

// findCard must be called with b.mu held.
func (b *Board) findCard(id string) *Card {
	for _, cards := range b.lists {
		for _, card := range cards {
			if card.ID == id {
				return card
			}
		}
	}
	return nil
}

func copyCards(cards []*Card) []Card {
	out := make([]Card, 0, len(cards))
	for _, card := range cards {
		copied := *card
		copied.IDLabels = slices.Clone(card.IDLabels)
		out = append(out, copied)
	}
	return out
}

func cardResponse(card Card) map[string]any {
	return map[string]any{
		"id":       card.ID,
		"name":     card.Name,
		"desc":     card.Desc,
		"idList":   card.IDList,
		"idLabels": card.IDLabels,
		"pos":      card.Pos,
		"closed":   card.Closed,
		"url":      card.URL,
		"shortUrl": card.ShortURL,
	}
}

// newID returns 24 lowercase hex characters.
func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}
