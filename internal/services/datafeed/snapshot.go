package datafeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anvh2/market-intel/internal/externals/coinglass"
	"github.com/anvh2/market-intel/internal/helpers"
	"github.com/anvh2/market-intel/internal/models"
	"go.uber.org/zap"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// fundingAvgWindow is how many funding candles the snapshot average spans.
const fundingAvgWindow = 3

// Snapshot fetches the live per-timeframe view of both venues. A venue that
// fails entirely leaves a nil branch and marks the snapshot partial; a rate
// limit aborts the cycle so the scheduler can pause.
func (s *Service) Snapshot(ctx context.Context, params *models.AnalyzerConfig) (*models.MarketSnapshot, error) {
	return s.snapshotAt(ctx, params, 0)
}

// Replay rebuilds the snapshot as it would have looked at asOf. Candles past
// the aligned end of each interval are never visible.
func (s *Service) Replay(ctx context.Context, params *models.AnalyzerConfig, asOf int64) (*models.MarketSnapshot, error) {
	return s.snapshotAt(ctx, params, asOf)
}

func (s *Service) snapshotAt(ctx context.Context, params *models.AnalyzerConfig, asOf int64) (*models.MarketSnapshot, error) {
	ts := asOf
	if ts == 0 {
		ts = s.clock()
	}

	snap := &models.MarketSnapshot{
		Symbol:    s.market.Symbol,
		Timestamp: ts,
		Venues:    make(map[models.Venue]*models.VenueData),
	}

	for _, venue := range models.Venues() {
		data, err := s.venueData(ctx, venue, params, ts, asOf)
		if err != nil {
			var rateLimited *models.RateLimitError
			if errors.As(err, &rateLimited) {
				return nil, err
			}
			var insufficient *models.InsufficientDataError
			if errors.As(err, &insufficient) && (asOf != 0 || s.storage.LocalOnly) {
				return nil, err
			}

			s.logger.Error("[Datafeed] venue failed, continuing partial",
				zap.String("venue", string(venue)), zap.Error(err))
			snap.Venues[venue] = nil
			snap.Meta.PartialData = true
			snap.Meta.FailedVenues = append(snap.Meta.FailedVenues, venue)
			snap.Meta.Warnings = append(snap.Meta.Warnings, fmt.Sprintf("venue %s unavailable: %v", venue, err))
			continue
		}
		snap.Venues[venue] = data
	}

	return snap, nil
}

// venueData assembles every timeframe of one venue. Per-timeframe failures
// degrade; the venue errors only when no timeframe survived.
func (s *Service) venueData(ctx context.Context, venue models.Venue, params *models.AnalyzerConfig, ts, asOf int64) (*models.VenueData, error) {
	data := &models.VenueData{
		Snapshots: make(map[string]*models.TimeframeSnapshot),
		History:   make(map[string]*models.LookbackHistory),
	}

	var lastErr error
	for _, interval := range s.market.Timeframes {
		leg, history, err := s.leg(ctx, venue, interval, params, ts, asOf)
		if err != nil {
			var rateLimited *models.RateLimitError
			if errors.As(err, &rateLimited) {
				return nil, err
			}
			s.logger.Warn("[Datafeed] timeframe failed",
				zap.String("venue", string(venue)), zap.String("interval", interval), zap.Error(err))
			lastErr = err
			continue
		}
		data.Snapshots[interval] = leg
		data.History[interval] = history
	}

	if len(data.Snapshots) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no timeframe data for %s", venue)
		}
		return nil, lastErr
	}
	return data, nil
}

func (s *Service) leg(ctx context.Context, venue models.Venue, interval string, params *models.AnalyzerConfig, ts, asOf int64) (*models.TimeframeSnapshot, *models.LookbackHistory, error) {
	intervalMs := models.IntervalMs(interval)
	if intervalMs == 0 {
		return nil, nil, fmt.Errorf("unsupported interval %q", interval)
	}

	var endTime int64
	if asOf != 0 {
		endTime = models.AlignEndToLastClosed(asOf, interval)
	}

	price, err := s.series(ctx, venue, interval, kindPrice, s.market.HistoryCandles, endTime)
	if err != nil {
		return nil, nil, err
	}
	if len(price) < 2 {
		return nil, nil, &models.InsufficientDataError{
			Interval: interval, Got: len(price), Need: 2, Context: "price snapshot",
		}
	}

	oi, err := s.series(ctx, venue, interval, kindOI, s.market.HistoryCandles, endTime)
	if err != nil {
		s.logger.Warn("[Datafeed] oi fetch degraded", zap.String("venue", string(venue)), zap.Error(err))
		oi = nil
	}
	funding, err := s.series(ctx, venue, interval, kindFunding, s.market.HistoryCandles, endTime)
	if err != nil {
		s.logger.Warn("[Datafeed] funding fetch degraded", zap.String("venue", string(venue)), zap.Error(err))
		funding = nil
	}

	window := WindowFor(interval)
	var takerEnd int64
	if asOf != 0 {
		takerEnd = models.AlignEndToLastClosed(asOf, window.APIInterval)
	}
	taker, err := s.takerSeries(ctx, venue, window, takerEnd)
	if err != nil {
		s.logger.Warn("[Datafeed] taker fetch degraded", zap.String("venue", string(venue)), zap.Error(err))
		taker = nil
	}

	snapshot := s.buildLeg(venue, interval, params, ts, price, oi, funding, taker)
	if snapshot.Stale {
		s.logger.Warn("[Datafeed] continuing on stale data",
			zap.Error(&models.StaleDataWarning{Venue: venue, Interval: interval, AgeMinutes: snapshot.AgeMinutes}))
	}
	history := buildHistory(price, oi, funding)

	return snapshot, history, nil
}

func (s *Service) buildLeg(venue models.Venue, interval string, params *models.AnalyzerConfig, ts int64, price, oi, funding, taker []models.Candle) *models.TimeframeSnapshot {
	last := price[len(price)-1]
	prev := price[len(price)-2]

	snapshot := &models.TimeframeSnapshot{
		Venue:          venue,
		Interval:       interval,
		Price:          last.Close,
		PriceChangePct: helpers.PercentChange(prev.Close, last.Close),
		Volume:         last.Volume,
	}

	// Staleness is WARN-only: flag and carry on.
	intervalMs := models.IntervalMs(interval)
	ageMs := ts - (last.Timestamp + intervalMs)
	if ageMs < 0 {
		ageMs = 0
	}
	snapshot.AgeMinutes = float64(ageMs) / 60_000
	maxLag := params.Gates.MaxLagMultiplier
	if maxLag <= 0 {
		maxLag = 2
	}
	if float64(ageMs) > maxLag*float64(intervalMs) {
		snapshot.Stale = true
	}

	if len(oi) >= 2 {
		lastOI := helpers.Deref(oi[len(oi)-1].OI)
		prevOI := helpers.Deref(oi[len(oi)-2].OI)
		snapshot.OI = lastOI
		snapshot.OIChangePct = helpers.PercentChange(prevOI, lastOI)
	}

	if len(funding) > 0 {
		start := len(funding) - fundingAvgWindow
		if start < 0 {
			start = 0
		}
		sum := 0.0
		n := 0
		for _, c := range funding[start:] {
			if c.FundingRate != nil {
				sum += *c.FundingRate
				n++
			}
		}
		if n > 0 {
			snapshot.FundingRateAvgPct = sum / float64(n)
		}
	}

	minVolume := params.Gates.CVDMinVolumeUSD[interval]
	maxZeroRun := params.Gates.CVDMaxZeroRun
	if maxZeroRun == 0 {
		maxZeroRun = 3
	}
	computeCVD(snapshot, taker, interval, minVolume, maxZeroRun)

	return snapshot
}

func buildHistory(price, oi, funding []models.Candle) *models.LookbackHistory {
	history := &models.LookbackHistory{PriceHistory: price}
	for _, c := range oi {
		if c.OI != nil {
			history.OIHistory = append(history.OIHistory, models.HistoryPoint{Timestamp: c.Timestamp, Value: *c.OI})
		}
	}
	for _, c := range funding {
		if c.FundingRate != nil {
			history.FundingHistory = append(history.FundingHistory, models.HistoryPoint{Timestamp: c.Timestamp, Value: *c.FundingRate})
		}
	}
	return history
}

type seriesKind int

const (
	kindPrice seriesKind = iota
	kindOI
	kindFunding
	kindTaker
)

// series fetches one candle series with local-data preference and the
// replay no-lookahead contract. endTime 0 means live.
func (s *Service) series(ctx context.Context, venue models.Venue, interval string, kind seriesKind, limit int, endTime int64) ([]models.Candle, error) {
	intervalMs := models.IntervalMs(interval)

	if endTime != 0 || s.storage.LocalOnly {
		start, end := rangeFor(limit, intervalMs, endTime, s.clock())
		local, err := s.store.Range(ctx, venue, s.market.Symbol, interval, start, end)
		if err == nil && len(local) >= minCandlesFor(limit) {
			return clampLookahead(local, endTime), nil
		}
		if s.storage.LocalOnly {
			got := len(local)
			return nil, &models.InsufficientDataError{
				Interval: interval, Got: got, Need: minCandlesFor(limit), Context: "local-only mode",
			}
		}
	}

	candles, err := s.fetchVendor(ctx, venue, interval, kind, limit, endTime)
	if err != nil {
		return nil, err
	}
	candles = clampLookahead(candles, endTime)

	// Replay windows widen once when short, then give up loudly. Live
	// fetches are returned as they come; the only length check on them is
	// the two-candle price minimum in leg.
	if endTime != 0 && len(candles) < minCandlesFor(limit) {
		candles, err = s.fetchVendor(ctx, venue, interval, kind, limit*2, endTime)
		if err != nil {
			return nil, err
		}
		candles = clampLookahead(candles, endTime)
		if len(candles) < minCandlesFor(limit) {
			return nil, &models.InsufficientDataError{
				Interval: interval, Got: len(candles), Need: minCandlesFor(limit), Context: "replay after widening",
			}
		}
	}

	s.persist(ctx, candles)
	return candles, nil
}

func (s *Service) takerSeries(ctx context.Context, venue models.Venue, window CVDWindow, endTime int64) ([]models.Candle, error) {
	// Local-only serves taker rows from the store; a short window degrades
	// CVD reliability instead of failing the leg.
	if s.storage.LocalOnly {
		start, end := rangeFor(window.Window, models.IntervalMs(window.APIInterval), endTime, s.clock())
		return s.store.Range(ctx, venue, s.market.Symbol, window.APIInterval, start, end)
	}

	candles, err := s.fetchVendor(ctx, venue, window.APIInterval, kindTaker, window.Window, endTime)
	if err != nil {
		return nil, err
	}
	candles = clampLookahead(candles, endTime)
	s.persist(ctx, candles)
	return candles, nil
}

func (s *Service) fetchVendor(ctx context.Context, venue models.Venue, interval string, kind seriesKind, limit int, endTime int64) ([]models.Candle, error) {
	req := coinglass.Request{
		Venue:    string(venue),
		Symbol:   s.instrument(venue),
		Interval: interval,
		Limit:    limit,
		EndTime:  endTime,
	}

	switch kind {
	case kindPrice:
		return s.vendor.Price(ctx, req)
	case kindOI:
		return s.vendor.OpenInterest(ctx, req)
	case kindFunding:
		return s.vendor.Funding(ctx, req)
	case kindTaker:
		return s.vendor.TakerBuySellVolume(ctx, req)
	}
	return nil, fmt.Errorf("unknown series kind %d", kind)
}

func (s *Service) persist(ctx context.Context, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	if s.candles != nil {
		first := candles[0]
		s.candles.Append(first.Venue, first.Interval, candles...)
	}
	if s.store == nil {
		return
	}
	if err := s.store.UpsertBatch(ctx, candles); err != nil {
		s.logger.Warn("[Datafeed] failed to persist candles", zap.Error(err))
	}
}

// clampLookahead drops candles past the aligned end. With endTime 0 it is a
// no-op.
func clampLookahead(candles []models.Candle, endTime int64) []models.Candle {
	if endTime == 0 {
		return candles
	}
	out := candles[:0:0]
	for _, c := range candles {
		if c.Timestamp <= endTime {
			out = append(out, c)
		}
	}
	return out
}

func rangeFor(limit int, intervalMs, endTime, now int64) (int64, int64) {
	end := endTime
	if end == 0 {
		end = now
	}
	return end - int64(limit)*intervalMs, end + 1
}

func minCandlesFor(limit int) int {
	min := limit * 8 / 10
	if min < 2 {
		min = 2
	}
	return min
}
