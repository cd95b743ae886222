// Package web provides the HTTP surface of the trading portal.
package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"kite-webtrader/internal/models"
)

// TradeForm holds the submitted trade form fields and per-field errors.
// Raw values are kept so an invalid form re-renders with the user's input.
type TradeForm struct {
	Instrument string
	Lots       string
	Stoploss   string
	Product    string
	Expiry     string

	Errors map[string]string

	lots     int
	stoploss float64
	expiry   time.Time
}

// ParseTradeForm reads the trade form fields from the request.
func ParseTradeForm(r *http.Request) *TradeForm {
	return &TradeForm{
		Instrument: strings.TrimSpace(r.PostFormValue("instrument")),
		Lots:       strings.TrimSpace(r.PostFormValue("lots")),
		Stoploss:   strings.TrimSpace(r.PostFormValue("stoploss")),
		Product:    strings.TrimSpace(r.PostFormValue("product")),
		Expiry:     strings.TrimSpace(r.PostFormValue("expiry")),
		Errors:     make(map[string]string),
	}
}

// Validate checks every field and records per-field errors. It returns true
// when the form is valid.
func (f *TradeForm) Validate() bool {
	if f.Instrument == "" {
		f.Errors["instrument"] = "instrument is required"
	}

	lots, err := strconv.Atoi(f.Lots)
	if err != nil {
		f.Errors["lots"] = "lots must be an integer"
	} else if lots <= 0 {
		f.Errors["lots"] = "lots must be positive"
	} else {
		f.lots = lots
	}

	stoploss, err := strconv.ParseFloat(f.Stoploss, 64)
	if err != nil {
		f.Errors["stoploss"] = "stoploss must be a number"
	} else if stoploss < 0 {
		f.Errors["stoploss"] = "stoploss must not be negative"
	} else {
		f.stoploss = stoploss
	}

	if !models.ValidProduct(models.ProductType(f.Product)) {
		f.Errors["product"] = "product must be one of MIS, CNC, NRML"
	}

	expiry, err := time.Parse("2006-01-02", f.Expiry)
	if err != nil {
		f.Errors["expiry"] = "expiry must be a date (YYYY-MM-DD)"
	} else {
		f.expiry = expiry
	}

	return len(f.Errors) == 0
}

// Order builds an Order from a validated form. The creation timestamp is
// set by the caller.
func (f *TradeForm) Order() *models.Order {
	return &models.Order{
		Instrument: f.Instrument,
		Lots:       f.lots,
		Stoploss:   f.stoploss,
		Product:    models.ProductType(f.Product),
		Expiry:     f.expiry,
	}
}
