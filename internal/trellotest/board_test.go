package trellotest_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/deppfellow/cardrelay/internal/trellotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credentials() url.Values {
	return url.Values{
		"key":   {trellotest.TestKey},
		"token": {trellotest.TestToken},
	}
}

func post(t *testing.T, srv *trellotest.Server, path string, form *trellotest.Form) *http.Response {
	t.Helper()

	req, err := form.
		Field("key", trellotest.TestKey).
		Field("token", trellotest.TestToken).
		Request(http.MethodPost, srv.BaseURL()+path)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestBoard_RequiresCredentials(t *testing.T) {
	srv := trellotest.NewServer(t)

	resp, err := http.Get(srv.BaseURL() + "/lists/" + trellotest.TestListID + "/cards")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, srv.TotalCalls())
}

func TestBoard_CreateCardValidation(t *testing.T) {
	srv := trellotest.NewServer(t)

	resp := post(t, srv, "/cards", trellotest.NewForm().Field("name", "n"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv, "/cards", trellotest.NewForm().Field("idList", "inbox"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv, "/cards", trellotest.NewForm().Field("idList", trellotest.TestListID).Field("pos", "middle"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv, "/cards", trellotest.NewForm().Field("idList", trellotest.TestListID).Field("pos", "12.5"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 4, srv.Calls(trellotest.RouteCreateCard))
	assert.Len(t, srv.Cards(trellotest.TestListID), 1)
}

func TestBoard_Positions(t *testing.T) {
	board := trellotest.NewBoard()

	bottom := board.SeedCard(trellotest.TestListID, "bottom")
	next := board.SeedCard(trellotest.TestListID, "next")

	assert.InDelta(t, 1000.0, bottom.Pos, 1e-9)
	assert.InDelta(t, 1001.0, next.Pos, 1e-9)
}

func TestBoard_AttachmentWithoutFile(t *testing.T) {
	srv := trellotest.NewServer(t)
	card := srv.SeedCard(trellotest.TestListID, "c")

	resp := post(t, srv, "/cards/"+card.ID+"/attachments", trellotest.NewForm().Field("name", "link only"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	attachments := srv.Attachments(card.ID)
	require.Len(t, attachments, 1)
	assert.False(t, attachments[0].IsUpload)
	assert.Nil(t, attachments[0].Bytes)
	assert.Equal(t, "link only", attachments[0].Name)
}

func TestBoard_InvalidCardID(t *testing.T) {
	srv := trellotest.NewServer(t)

	resp := post(t, srv, "/cards/not-an-id/idLabels", trellotest.NewForm().Field("value", "x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv, "/cards/5f0c1d2e3a4b5c6d7e8f9999/idLabels", trellotest.NewForm().Field("value", "x"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown cards cannot be labelled")
}

func TestBoard_FailureInjection(t *testing.T) {
	srv := trellotest.NewServer(t)
	srv.Fail(trellotest.RouteGetList, http.StatusServiceUnavailable)

	target := srv.BaseURL() + "/lists/" + trellotest.TestListID + "?" + credentials().Encode()

	resp, err := http.Get(target)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv.Fail(trellotest.RouteGetList, 0)

	resp, err = http.Get(target)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 2, srv.Calls(trellotest.RouteGetList))
}

func TestBoard_StateDump(t *testing.T) {
	board := trellotest.NewBoard()
	card := board.SeedCard(trellotest.TestListID, "dumped")

	rec := httptest.NewRecorder()
	board.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__get_state", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state trellotest.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Lists[trellotest.TestListID], 1)
	assert.Equal(t, card.ID, state.Lists[trellotest.TestListID][0].ID)
}
