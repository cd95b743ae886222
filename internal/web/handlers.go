package web

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"kite-webtrader/internal/apperrors"
	"kite-webtrader/internal/broker"
	"kite-webtrader/internal/models"
	"kite-webtrader/internal/quotes"
	"kite-webtrader/internal/session"
	"kite-webtrader/internal/store"
	"kite-webtrader/internal/tasks"
)

// Spot price symbols shown on the trade form.
var spotSymbols = []string{"NSE:NIFTY 50", "NSE:NIFTY BANK"}

// StatusReader reports reconciled job status for a task id.
type StatusReader interface {
	Status(ctx context.Context, taskID string) (*models.JobStatus, error)
}

// Handler serves the portal's HTTP endpoints.
type Handler struct {
	tokens     *session.Store
	factory    broker.Factory
	orders     store.OrderStore
	dispatcher tasks.Dispatcher
	status     StatusReader
	quotes     quotes.Service
	logger     zerolog.Logger
	tmpl       *templates
	now        func() time.Time
}

// HandlerDeps holds the handler's collaborators.
type HandlerDeps struct {
	Tokens     *session.Store
	Factory    broker.Factory
	Orders     store.OrderStore
	Dispatcher tasks.Dispatcher
	Status     StatusReader
	Quotes     quotes.Service
	Logger     zerolog.Logger
}

// NewHandler creates the portal handler.
func NewHandler(d HandlerDeps) *Handler {
	return &Handler{
		tokens:     d.Tokens,
		factory:    d.Factory,
		orders:     d.Orders,
		dispatcher: d.Dispatcher,
		status:     d.Status,
		quotes:     d.Quotes,
		logger:     d.Logger,
		tmpl:       parseTemplates(),
		now:        time.Now,
	}
}

type indexData struct {
	Form  *TradeForm
	Spots []float64
}

// Login handles the broker's redirect callback. With a request token it
// exchanges the token for a session and persists it; without one it just
// redirects home.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	requestToken := r.URL.Query().Get("request_token")
	if requestToken != "" {
		b := h.factory.New("")
		accessToken, err := b.GenerateSession(r.Context(), requestToken)
		if err != nil {
			h.logger.Error().Err(err).Msg("session exchange failed")
			http.Error(w, "login failed", http.StatusBadGateway)
			return
		}
		if err := h.tokens.Save(accessToken); err != nil {
			h.logger.Error().Err(err).Msg("saving access token failed")
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}
		h.logger.Info().Msg("session token stored")
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// Index renders the trade form when a fresh session token exists, and a
// login prompt otherwise.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	fresh, err := h.tokens.Valid()
	if err != nil {
		h.serverError(w, err, "checking token freshness")
		return
	}
	if !fresh {
		h.renderLogin(w)
		return
	}

	token, err := h.tokens.Load()
	if err != nil {
		if errors.Is(err, apperrors.ErrNoToken) {
			h.renderLogin(w)
			return
		}
		h.serverError(w, err, "loading token")
		return
	}

	b := h.factory.New(token)
	data := indexData{Form: emptyForm()}

	prices, err := h.quotes.LTP(r.Context(), b, spotSymbols...)
	if err != nil {
		// A broker rejection here means the session died early; send the
		// user back through login rather than a broken form.
		h.logger.Warn().Err(err).Msg("spot price lookup failed")
		h.renderLogin(w)
		return
	}
	data.Spots = []float64{prices[spotSymbols[0]], prices[spotSymbols[1]]}

	h.renderHTML(w, h.tmpl.index, data, http.StatusOK)
}

// Submit validates the trade form, persists the order, dispatches it to the
// worker and attaches the resulting job id. Validation failures re-render
// the form with field errors and have no side effects.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	form := ParseTradeForm(r)
	if !form.Validate() {
		h.renderHTML(w, h.tmpl.index, indexData{Form: form}, http.StatusOK)
		return
	}

	order := form.Order()
	order.Date = h.now()

	id, err := h.orders.Insert(r.Context(), order)
	if err != nil {
		h.serverError(w, err, "persisting order")
		return
	}

	taskID, err := h.dispatcher.Dispatch(r.Context(), order)
	if err != nil {
		// The order is already persisted without a task id; surface the
		// failure instead of retrying.
		h.serverError(w, err, "dispatching order")
		return
	}

	if err := h.orders.AttachTask(r.Context(), id, taskID); err != nil {
		h.serverError(w, err, "attaching task id")
		return
	}

	h.logger.Info().
		Str("order_id", id).
		Str("task_id", taskID).
		Str("instrument", order.Instrument).
		Msg("order dispatched")

	http.Redirect(w, r, "/trades/", http.StatusSeeOther)
}

type tradesData struct {
	Trades []models.Order
}

// Trades lists all persisted orders. Internal order ids are not exposed in
// the view.
func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.serverError(w, err, "listing orders")
		return
	}
	h.renderHTML(w, h.tmpl.trades, tradesData{Trades: orders}, http.StatusOK)
}

// Result reports the reconciled status of an asynchronous trade job.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	status, err := h.status.Status(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTaskNotFound) || errors.Is(err, apperrors.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown task id"})
			return
		}
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("status lookup failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "status lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Health is a liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) renderLogin(w http.ResponseWriter) {
	loginURL := h.factory.New("").LoginURL()
	h.renderHTML(w, h.tmpl.login, map[string]string{"LoginURL": loginURL}, http.StatusOK)
}

func (h *Handler) renderHTML(w http.ResponseWriter, t *template.Template, data interface{}, code int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := t.Execute(w, data); err != nil {
		h.logger.Error().Err(err).Msg("template render failed")
	}
}

func (h *Handler) serverError(w http.ResponseWriter, err error, msg string) {
	h.logger.Error().Err(err).Msg(msg)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func emptyForm() *TradeForm {
	return &TradeForm{Product: string(models.ProductMIS), Errors: make(map[string]string)}
}
