package datafeed

import (
	"fmt"

	"github.com/anvh2/market-intel/internal/helpers"
	"github.com/anvh2/market-intel/internal/models"
)

// CVDWindow fixes the taker-volume resolution per target timeframe. CVD for
// a timeframe never uses a coarser resolution than the timeframe itself.
type CVDWindow struct {
	APIInterval string
	Window      int
	MinCandles  int
}

var cvdWindows = map[string]CVDWindow{
	"30m": {APIInterval: "30m", Window: 48, MinCandles: 38},
	"1h":  {APIInterval: "1h", Window: 24, MinCandles: 19},
	"4h":  {APIInterval: "4h", Window: 18, MinCandles: 14},
	"1d":  {APIInterval: "24h", Window: 14, MinCandles: 11},
}

// WindowFor returns the CVD fetch tuple for a timeframe. Unknown timeframes
// fall back to a same-resolution window of 24 candles.
func WindowFor(interval string) CVDWindow {
	if w, ok := cvdWindows[interval]; ok {
		return w
	}
	return CVDWindow{APIInterval: interval, Window: 24, MinCandles: 19}
}

// computeCVD fills the CVD block of a snapshot from taker rows. The
// reliability contract: cvdReliableForTf == dataComplete && marketImpactReliable.
func computeCVD(snapshot *models.TimeframeSnapshot, taker []models.Candle, interval string, minVolumeUSD float64, maxZeroRun int) {
	window := WindowFor(interval)

	if len(taker) > window.Window {
		taker = taker[len(taker)-window.Window:]
	}

	snapshot.CVDRequestedTimeframe = interval
	snapshot.CVDResolution = window.APIInterval
	snapshot.CVDWindowCandles = window.Window
	snapshot.CVDActualCandles = len(taker)

	var cvd, total float64
	zeroRun, longestZeroRun := 0, 0
	for _, row := range taker {
		buy := helpers.Deref(row.BuyVolume)
		sell := helpers.Deref(row.SellVolume)
		cvd += buy - sell
		total += buy + sell

		if buy+sell == 0 {
			zeroRun++
			if zeroRun > longestZeroRun {
				longestZeroRun = zeroRun
			}
		} else {
			zeroRun = 0
		}
	}

	snapshot.CVD = cvd
	snapshot.CVDTotalVolume = total
	snapshot.CVDNormalized = helpers.SafeDiv(cvd, total)
	if len(taker) > 0 {
		last := taker[len(taker)-1]
		snapshot.CVDDelta = helpers.Deref(last.BuyVolume) - helpers.Deref(last.SellVolume)
		snapshot.CVDAvgVolumePerCandle = total / float64(len(taker))
	}

	snapshot.CVDDataComplete = true
	if len(taker) < window.MinCandles {
		snapshot.CVDDataComplete = false
		snapshot.CVDDataReason = fmt.Sprintf("only %d of %d candles", len(taker), window.MinCandles)
	} else if longestZeroRun > maxZeroRun {
		snapshot.CVDDataComplete = false
		snapshot.CVDDataReason = fmt.Sprintf("zero-volume run of %d candles", longestZeroRun)
	}

	snapshot.CVDMarketImpactReliable = snapshot.CVDAvgVolumePerCandle >= minVolumeUSD
	if !snapshot.CVDMarketImpactReliable {
		snapshot.CVDMarketReason = fmt.Sprintf("avg volume %.0f below %.0f floor", snapshot.CVDAvgVolumePerCandle, minVolumeUSD)
	}

	snapshot.CVDReliableForTf = snapshot.CVDDataComplete && snapshot.CVDMarketImpactReliable
}
