package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradeoracle/engine/internal/models"
)

func TestRecordTrade_LabelsWinAndLoss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTrade(models.IronCondor, decimal.NewFromFloat(50))
	m.RecordTrade(models.IronCondor, decimal.NewFromFloat(-10))

	win := &dto.Metric{}
	require.NoError(t, m.TradesTotal.WithLabelValues(string(models.IronCondor), "win").Write(win))
	require.Equal(t, float64(1), win.GetCounter().GetValue())

	loss := &dto.Metric{}
	require.NoError(t, m.TradesTotal.WithLabelValues(string(models.IronCondor), "loss").Write(loss))
	require.Equal(t, float64(1), loss.GetCounter().GetValue())
}

func TestSetAccountState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetAccountState(models.Portfolio{
		Balance: decimal.NewFromFloat(10000), DailyPnL: decimal.NewFromFloat(-50),
		ConsecutiveLosses: 2, ActivePositions: 3,
	})

	out := &dto.Metric{}
	require.NoError(t, m.EquityUSD.Write(out))
	require.Equal(t, 10000.0, out.GetGauge().GetValue())

	out = &dto.Metric{}
	require.NoError(t, m.ConsecutiveLosses.Write(out))
	require.Equal(t, 2.0, out.GetGauge().GetValue())
}
