package engine

import (
	"github.com/anvh2/market-intel/internal/models"
	"github.com/anvh2/market-intel/internal/services/datafeed"
)

// legSpec is the shorthand tests build venue snapshots from.
type legSpec struct {
	PriceChangePct float64
	OIChangePct    float64
	OIUSD          float64
	FundingPct     float64
	CVD            float64
	CVDReliable    bool
	Price          float64
	Volume         float64
}

func makeLeg(venue models.Venue, interval string, spec legSpec) *models.TimeframeSnapshot {
	if spec.Price == 0 {
		spec.Price = 50_000
	}
	window := datafeed.WindowFor(interval)

	leg := &models.TimeframeSnapshot{
		Venue:                 venue,
		Interval:              interval,
		Price:                 spec.Price,
		PriceChangePct:        spec.PriceChangePct,
		OI:                    spec.OIUSD,
		OIChangePct:           spec.OIChangePct,
		Volume:                spec.Volume,
		FundingRateAvgPct:     spec.FundingPct,
		CVD:                   spec.CVD,
		CVDRequestedTimeframe: interval,
		CVDResolution:         window.APIInterval,
		CVDWindowCandles:      window.Window,
		CVDActualCandles:      window.Window,
	}

	leg.CVDDataComplete = spec.CVDReliable
	leg.CVDMarketImpactReliable = spec.CVDReliable
	leg.CVDReliableForTf = spec.CVDReliable
	if spec.CVDReliable {
		leg.CVDAvgVolumePerCandle = 100_000_000
		leg.CVDTotalVolume = leg.CVDAvgVolumePerCandle * float64(window.Window)
	}

	return leg
}

func makeSnapshot(binance, bybit *models.TimeframeSnapshot) *models.MarketSnapshot {
	snap := &models.MarketSnapshot{
		Symbol:    "BTC",
		Timestamp: 1_700_000_100_000,
		Venues:    make(map[models.Venue]*models.VenueData),
	}

	add := func(venue models.Venue, leg *models.TimeframeSnapshot) {
		if leg == nil {
			return
		}
		if snap.Venues[venue] == nil {
			snap.Venues[venue] = &models.VenueData{
				Snapshots: make(map[string]*models.TimeframeSnapshot),
				History:   make(map[string]*models.LookbackHistory),
			}
		}
		snap.Venues[venue].Snapshots[leg.Interval] = leg
		snap.Venues[venue].History[leg.Interval] = &models.LookbackHistory{}
	}

	add(models.VenueBinance, binance)
	add(models.VenueBybit, bybit)

	return snap
}

// addLeg extends an existing snapshot with another timeframe.
func addLeg(snap *models.MarketSnapshot, venue models.Venue, leg *models.TimeframeSnapshot) {
	if snap.Venues[venue] == nil {
		snap.Venues[venue] = &models.VenueData{
			Snapshots: make(map[string]*models.TimeframeSnapshot),
			History:   make(map[string]*models.LookbackHistory),
		}
	}
	snap.Venues[venue].Snapshots[leg.Interval] = leg
	snap.Venues[venue].History[leg.Interval] = &models.LookbackHistory{}
}

func defaultParams() *models.AnalyzerConfig {
	return models.DefaultAnalyzerConfig()
}
