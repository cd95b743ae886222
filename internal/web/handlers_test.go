package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite-webtrader/internal/apperrors"
	"kite-webtrader/internal/broker"
	"kite-webtrader/internal/models"
	"kite-webtrader/internal/quotes"
	"kite-webtrader/internal/session"
	"kite-webtrader/internal/store"
)

type fakeDispatcher struct {
	taskID     string
	err        error
	dispatched []*models.Order
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, order *models.Order) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.dispatched = append(d.dispatched, order)
	return d.taskID, nil
}

type fakeStatus struct {
	status *models.JobStatus
	err    error
}

func (f *fakeStatus) Status(ctx context.Context, taskID string) (*models.JobStatus, error) {
	return f.status, f.err
}

type fixture struct {
	server     *httptest.Server
	tokens     *session.Store
	orders     store.OrderStore
	paper      *broker.PaperBroker
	dispatcher *fakeDispatcher
	status     *fakeStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	orders, err := store.NewSQLiteStore(filepath.Join(dir, "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orders.Close() })

	tokens := session.NewStore(filepath.Join(dir, "token.json"))
	paper := broker.NewPaperBroker(map[string]float64{
		"NSE:NIFTY 50":   24010.5,
		"NSE:NIFTY BANK": 51320.25,
	})
	dispatcher := &fakeDispatcher{taskID: "task-1"}
	status := &fakeStatus{}

	h := NewHandler(HandlerDeps{
		Tokens:     tokens,
		Factory:    broker.PaperFactory{Broker: paper},
		Orders:     orders,
		Dispatcher: dispatcher,
		Status:     status,
		Quotes:     quotes.NewCachedService(nil, zerolog.Nop()),
		Logger:     zerolog.Nop(),
	})

	srv := httptest.NewServer(NewRouter(h, zerolog.Nop()))
	t.Cleanup(srv.Close)

	return &fixture{
		server:     srv,
		tokens:     tokens,
		orders:     orders,
		paper:      paper,
		dispatcher: dispatcher,
		status:     status,
	}
}

// get fetches a path without following redirects.
func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Post(f.server.URL+path, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func validForm() url.Values {
	return url.Values{
		"instrument": {"NIFTY24JUL25000CE"},
		"lots":       {"2"},
		"stoploss":   {"150.5"},
		"product":    {"MIS"},
		"expiry":     {"2024-07-25"},
	}
}

func TestIndexWithoutTokenShowsLogin(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	html := body(t, resp)
	assert.Contains(t, html, "Login")
	assert.Contains(t, html, f.paper.LoginURL())
	assert.NotContains(t, html, "instrument")
}

func TestIndexWithTokenShowsForm(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save("sess-token"))

	resp := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	html := body(t, resp)
	assert.Contains(t, html, "instrument")
	assert.Contains(t, html, "24010.5")
	assert.Contains(t, html, "51320.25")
}

func TestIndexDeadSessionFallsBackToLogin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Save("sess-token"))
	// Simulate the broker rejecting the session on the price lookup.
	f.paper.Prices = map[string]float64{}

	resp := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Login")
}

func TestLoginCallbackStoresToken(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/login?request_token=req-abc")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	token, err := f.tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, "paper-req-abc", token)
}

func TestLoginWithoutRequestTokenJustRedirects(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	_, err := f.tokens.Load()
	assert.ErrorIs(t, err, apperrors.ErrNoToken)
}

func TestSubmitValidOrder(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/", validForm())
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/trades/", resp.Header.Get("Location"))

	require.Len(t, f.dispatcher.dispatched, 1)

	order, err := f.orders.ByTaskID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY24JUL25000CE", order.Instrument)
	assert.Equal(t, 2, order.Lots)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.False(t, order.Date.IsZero())
}

func TestSubmitInvalidFormHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	form := validForm()
	form.Set("lots", "zero")

	resp := f.postForm(t, "/", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "lots must be an integer")

	assert.Empty(t, f.dispatcher.dispatched)
	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSubmitDispatchFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = apperrors.NewTaskError("", "dispatch", assert.AnError)

	resp := f.postForm(t, "/", validForm())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The order is persisted before dispatch and stays without a task id.
	orders, err := f.orders.List(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].TaskID)
}

func TestTradesListsOrders(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/", validForm())
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = f.get(t, "/trades/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	html := body(t, resp)
	assert.Contains(t, html, "NIFTY24JUL25000CE")
	assert.Contains(t, html, "task-1")
}

func TestResultReportsStatus(t *testing.T) {
	f := newFixture(t)
	ok := true
	f.status.status = &models.JobStatus{
		Ready:      true,
		Successful: &ok,
		Value:      map[string]interface{}{"broker_order_id": "240725000001"},
	}

	resp := f.get(t, "/result/task-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		Ready      bool                   `json:"ready"`
		Successful *bool                  `json:"successful"`
		Value      map[string]interface{} `json:"value"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Ready)
	require.NotNil(t, got.Successful)
	assert.True(t, *got.Successful)
	assert.Equal(t, "240725000001", got.Value["broker_order_id"])
}

func TestResultUnknownTask(t *testing.T) {
	f := newFixture(t)
	f.status.err = apperrors.NewTaskError("ghost", "status", apperrors.ErrTaskNotFound)

	resp := f.get(t, "/result/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "unknown task id", got["error"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
