// Package scan runs a scanned payment QR through the risk pipeline:
// parse, classify, geo checks, persistence, suggestions, and events.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/paysentry/internal/address"
	"github.com/opensource-finance/paysentry/internal/domain"
	"github.com/opensource-finance/paysentry/internal/geo"
	"github.com/opensource-finance/paysentry/internal/history"
	"github.com/opensource-finance/paysentry/internal/metrics"
	"github.com/opensource-finance/paysentry/internal/risk"
	"github.com/opensource-finance/paysentry/internal/suggest"
	"github.com/opensource-finance/paysentry/internal/tracing"
)

var (
	// ErrInvalidRequest is returned for requests the pipeline refuses to evaluate.
	ErrInvalidRequest = errors.New("invalid scan request")
)

// Request is one scanned QR string plus optional context captured by the client.
type Request struct {
	Raw      string
	Amount   decimal.NullDecimal
	Location *domain.Coordinate

	// Timestamp defaults to the processing time.
	Timestamp time.Time

	TraceID string
}

// Outcome is the result of processing one scan.
// When Valid is false only Failure is set and nothing was persisted.
type Outcome struct {
	Valid   bool   `json:"valid"`
	Failure string `json:"failure,omitempty"`

	Address     *domain.ParsedAddress   `json:"address,omitempty"`
	Risk        *domain.RiskResult      `json:"risk,omitempty"`
	Scan        *domain.ScanRecord      `json:"scan,omitempty"`
	Location    *domain.LocationRecord  `json:"location,omitempty"`
	Unusual     *domain.UnusualLocation `json:"unusual,omitempty"`
	FraudAlerts []domain.FraudAlert     `json:"fraudAlerts,omitempty"`
	ZoneExits   []domain.SafeZone       `json:"zoneExits,omitempty"`
	Suggestions []domain.Suggestion     `json:"suggestions"`

	Metadata struct {
		TraceID    string `json:"traceId,omitempty"`
		CachedRisk bool   `json:"cachedRisk"`
		TotalMs    int64  `json:"totalMs"`
	} `json:"metadata"`
}

// Options tune the processor.
type Options struct {
	// AsyncSuggestions leaves suggestion generation to a bus subscriber.
	AsyncSuggestions bool
}

// Processor wires the pure risk core to storage, cache and the event bus.
// Safe for concurrent use.
type Processor struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	history *history.Service

	parser   *address.Parser
	detector *geo.Detector
	engine   *suggest.Engine

	classifier atomic.Pointer[risk.Classifier]
	generation atomic.Uint64

	riskTTL time.Duration
	opts    Options
}

// NewProcessor creates a scan processor. cache and bus may be nil.
func NewProcessor(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	hist *history.Service,
	cfg *domain.Config,
	classifier *risk.Classifier,
	opts Options,
) *Processor {
	p := &Processor{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		history:  hist,
		parser:   address.NewParser(cfg.Risk.PaymentScheme),
		detector: geo.NewDetector(cfg.Geo),
		engine:   suggest.NewEngine(cfg.Suggestions),
		riskTTL:  cfg.Risk.RiskCacheTTL,
		opts:     opts,
	}
	p.classifier.Store(classifier)
	return p
}

// SetClassifier swaps the classifier, typically after a rule reload.
// Cached classifications from the previous classifier are no longer served.
func (p *Processor) SetClassifier(c *risk.Classifier) {
	p.classifier.Store(c)
	p.generation.Add(1)
}

// Classifier returns the active classifier.
func (p *Processor) Classifier() *risk.Classifier {
	return p.classifier.Load()
}

// Parser returns the address parser.
func (p *Processor) Parser() *address.Parser {
	return p.parser
}

// Detector returns the geo anomaly detector.
func (p *Processor) Detector() *geo.Detector {
	return p.detector
}

// Process evaluates one scan for userID.
// A string that is not a payment address yields an invalid Outcome, not an error.
func (p *Processor) Process(ctx context.Context, userID string, req Request) (*Outcome, error) {
	start := time.Now()

	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidRequest)
	}
	if req.Amount.Valid && !req.Amount.Decimal.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	ctx, span := tracing.StartSpan(ctx, "scan.process", tracing.UserID(userID))
	defer span.End()

	out := &Outcome{Suggestions: []domain.Suggestion{}}
	out.Metadata.TraceID = req.TraceID

	// 1. Parse
	addr, err := p.parser.Parse(req.Raw)
	if err != nil {
		metrics.ParseFailuresTotal.Inc()
		out.Failure = address.Reason(err)
		out.Metadata.TotalMs = time.Since(start).Milliseconds()
		return out, nil
	}
	out.Valid = true
	out.Address = &addr

	// 2. Classify
	result, cached := p.Classify(ctx, addr)
	out.Risk = &result
	out.Metadata.CachedRisk = cached
	span.SetAttributes(tracing.RiskLevel(result.Level))

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	scan := &domain.ScanRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		Identifier:   addr.Identifier,
		MerchantName: merchantName(addr),
		Amount:       req.Amount,
		Status:       result.Level.Status(),
		Score:        result.Score,
		Timestamp:    ts,
	}
	span.SetAttributes(tracing.ScanID(scan.ID))

	// 3. Geo, only when the client sent a location
	var locRec *domain.LocationRecord
	if req.Location != nil {
		loc := *req.Location
		if loc.CapturedAt.IsZero() {
			loc.CapturedAt = ts
		}

		check, err := p.CheckLocation(ctx, userID, loc)
		if err != nil {
			return nil, err
		}
		rec := geo.RecordLocation(scan.ID, loc, scan.MerchantName, check.zones)
		locRec = &rec

		out.Unusual = &check.Unusual
		out.FraudAlerts = check.FraudAlerts
		out.ZoneExits = check.ZoneExits
		out.Location = locRec
	}

	// 4. Persist before suggesting so history includes this scan
	if err := p.repo.SaveScan(ctx, userID, scan); err != nil {
		return nil, fmt.Errorf("failed to save scan: %w", err)
	}
	if locRec != nil {
		if err := p.repo.SaveLocationRecord(ctx, userID, locRec); err != nil {
			return nil, fmt.Errorf("failed to save location: %w", err)
		}
	}
	out.Scan = scan

	// 5. Suggestions
	if !p.opts.AsyncSuggestions {
		suggestions, err := p.Suggestions(ctx, userID, *scan)
		if err != nil {
			return nil, err
		}
		out.Suggestions = suggestions
	}

	// 6. Events
	p.publishScan(ctx, userID, req.TraceID, scan, result)
	if out.Unusual != nil && (out.Unusual.Unusual || len(out.FraudAlerts) > 0 || len(out.ZoneExits) > 0) {
		p.publish(ctx, userID, domain.TopicGeoAnomaly, domain.GeoEvent{
			UserID:      userID,
			ScanID:      scan.ID,
			Unusual:     *out.Unusual,
			FraudAlerts: out.FraudAlerts,
			ZoneExits:   out.ZoneExits,
		})
	}
	if !p.opts.AsyncSuggestions && len(out.Suggestions) > 0 {
		p.publish(ctx, userID, domain.TopicSuggestionsGenerated, domain.SuggestionsEvent{
			UserID:      userID,
			ScanID:      scan.ID,
			Suggestions: out.Suggestions,
		})
	}

	// 7. Metrics
	metrics.ObserveScan(result.Level)
	if out.Unusual != nil {
		metrics.ObserveGeo(out.Unusual.Unusual, len(out.FraudAlerts), len(out.ZoneExits))
	}

	out.Metadata.TotalMs = time.Since(start).Milliseconds()

	slog.Debug("scan processed",
		"user_id", userID,
		"scan_id", scan.ID,
		"level", result.Level,
		"score", result.Score,
		"suggestions", len(out.Suggestions),
	)

	return out, nil
}

// Classify scores addr with the active classifier, consulting the risk cache.
// The second return value reports a cache hit.
func (p *Processor) Classify(ctx context.Context, addr domain.ParsedAddress) (domain.RiskResult, bool) {
	key := p.cacheKey(addr)

	if p.cache != nil {
		cached, err := p.cache.GetRisk(ctx, domain.GlobalScope, key)
		if err != nil {
			slog.Warn("risk cache lookup failed", "error", err)
		}
		if cached != nil {
			metrics.ObserveCache(true)
			return *cached, true
		}
		metrics.ObserveCache(false)
	}

	result := p.classifier.Load().Classify(addr)

	if p.cache != nil {
		if err := p.cache.SetRisk(ctx, domain.GlobalScope, key, &result, p.riskTTL); err != nil {
			slog.Warn("risk cache store failed", "error", err)
		}
	}

	return result, false
}

// LocationCheck is the geo verdict for one coordinate.
type LocationCheck struct {
	InSafeZone  bool                   `json:"inSafeZone"`
	MatchedZone *domain.SafeZone       `json:"matchedZone,omitempty"`
	Unusual     domain.UnusualLocation `json:"unusual"`
	FraudAlerts []domain.FraudAlert    `json:"fraudAlerts"`
	ZoneExits   []domain.SafeZone      `json:"zoneExits"`

	zones []domain.SafeZone
}

// CheckLocation evaluates loc against the user's zones, location history and
// the fraud alert list. Nothing is persisted.
func (p *Processor) CheckLocation(ctx context.Context, userID string, loc domain.Coordinate) (*LocationCheck, error) {
	ctx, span := tracing.StartSpan(ctx, "scan.check_location", tracing.UserID(userID))
	defer span.End()

	zonePtrs, err := p.repo.ListSafeZones(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load safe zones: %w", err)
	}
	zones := make([]domain.SafeZone, len(zonePtrs))
	for i, z := range zonePtrs {
		zones[i] = *z
	}

	locations, err := p.history.Locations(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs, err := p.history.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	alertPtrs, err := p.repo.ListFraudAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fraud alerts: %w", err)
	}
	alerts := make([]domain.FraudAlert, len(alertPtrs))
	for i, a := range alertPtrs {
		alerts[i] = *a
	}

	check := &LocationCheck{
		Unusual:     p.detector.IsUnusualLocation(loc, locations, prefs.TravelMode),
		FraudAlerts: geo.CheckFraudAlerts(loc, alerts),
		ZoneExits:   []domain.SafeZone{},
		zones:       zones,
	}
	if zone, ok := geo.MatchSafeZone(loc, zones); ok {
		check.InSafeZone = true
		check.MatchedZone = &zone
	}
	if len(locations) > 0 {
		check.ZoneExits = geo.ZoneExits(locations[0].Location, loc, zones)
	}

	return check, nil
}

// Suggestions generates suggestions for current against the user's stored
// history, without the ones the user dismissed.
func (p *Processor) Suggestions(ctx context.Context, userID string, current domain.ScanRecord) ([]domain.Suggestion, error) {
	snap, err := p.history.Snapshot(ctx, userID, current)
	if err != nil {
		return nil, err
	}

	suggestions := snap.FilterDismissed(p.engine.Generate(snap.SuggestInput()))
	metrics.ObserveSuggestions(suggestions)
	return suggestions, nil
}

func (p *Processor) publishScan(ctx context.Context, userID, traceID string, scan *domain.ScanRecord, result domain.RiskResult) {
	event := domain.ScanEvent{
		UserID:  userID,
		TraceID: traceID,
		Scan:    *scan,
		Risk:    result,
	}
	p.publish(ctx, userID, domain.TopicScanRecorded, event)
	if result.Level == domain.RiskRisky {
		p.publish(ctx, userID, domain.TopicScanRisky, event)
	}
}

// publish is best effort; a bus failure never fails the scan.
func (p *Processor) publish(ctx context.Context, userID, topic string, event any) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, userID, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "user_id", userID, "error", err)
	}
}

// cacheKey encodes every field a rule can see. Fields are JSON-quoted because
// they come from the QR string and may contain any separator.
func (p *Processor) cacheKey(addr domain.ParsedAddress) string {
	fields, _ := json.Marshal([4]string{
		addr.Identifier,
		addr.DisplayName,
		addr.MerchantCode,
		addr.TransactionRef,
	})
	return fmt.Sprintf("g%d:%s", p.generation.Load(), fields)
}

func merchantName(addr domain.ParsedAddress) string {
	if addr.DisplayName == domain.UnknownPayee {
		return ""
	}
	return addr.DisplayName
}
