package quotes

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite-webtrader/internal/broker"
)

func TestLTPWithoutCacheHitsBroker(t *testing.T) {
	paper := broker.NewPaperBroker(map[string]float64{
		"NSE:NIFTY 50": 24010.5,
	})
	paper.SetAccessToken("sess")

	svc := NewCachedService(nil, zerolog.Nop())

	prices, err := svc.LTP(context.Background(), paper, "NSE:NIFTY 50")
	require.NoError(t, err)
	assert.Equal(t, 24010.5, prices["NSE:NIFTY 50"])
}

func TestLTPBrokerErrorPropagates(t *testing.T) {
	paper := broker.NewPaperBroker(nil)
	paper.SetAccessToken("sess")

	svc := NewCachedService(nil, zerolog.Nop())

	_, err := svc.LTP(context.Background(), paper, "NSE:UNKNOWN")
	require.Error(t, err)
}
