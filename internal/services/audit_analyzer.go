package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
)

// Detection thresholds
const (
	credentialStuffingThreshold = 5
	burstThreshold              = 50
	fanOutThreshold             = 5
	impossibleTravelGap         = 2 * time.Hour
)

// Rule names used in findings and suspicious reasons
const (
	RuleCredentialStuffing = "credential stuffing"
	RuleBurstActivity      = "burst activity"
	RuleOffHours           = "off-hours activity"
	RuleImpossibleTravel   = "impossible travel"
	RuleMultiLocation      = "multi-location fan-out"
)

// SecurityEventStore is the event log as seen by the analyzer
type SecurityEventStore interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error)
	ListSuspicious(ctx context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error)
	MarkSuspicious(ctx context.Context, id, reason string) error
	MarkSuspiciousBatch(ctx context.Context, ids []string, reason string) (int64, error)
}

// AuditAnalyzerConfig bounds the scan and the result size
type AuditAnalyzerConfig struct {
	RuleCap       int
	TotalCap      int
	MaxScan       int
	OffHoursStart int
	OffHoursEnd   int
}

// AnalysisReport summarises one Analyze run
type AnalysisReport struct {
	WindowDays  int       `json:"window_days"`
	Scanned     int       `json:"scanned"`
	Flagged     int       `json:"flagged"`
	Truncated   bool      `json:"truncated"`
	Findings    []string  `json:"findings"`
	Accounts    []string  `json:"accounts"`
	GeneratedAt time.Time `json:"generated_at"`
}

// finding is one rule match: a human summary plus the events behind it
type finding struct {
	rule    string
	summary string
	events  []*models.SecurityEvent
}

// AuditAnalyzer scans the security event log for attack patterns. It is advisory:
// results mark events and notify, they never block an operation.
type AuditAnalyzer struct {
	store    SecurityEventStore
	notifier Notifier
	config   AuditAnalyzerConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuditAnalyzer(store SecurityEventStore, notifier Notifier, config AuditAnalyzerConfig, logger *slog.Logger) *AuditAnalyzer {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AuditAnalyzer{
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// load returns the window's events in chronological order. The store hands back the
// newest MaxScan events; truncated reports that older ones were left out.
func (a *AuditAnalyzer) load(ctx context.Context, windowDays int) (events []*models.SecurityEvent, truncated bool, err error) {
	if windowDays <= 0 {
		return nil, false, fmt.Errorf("window must be at least one day: %w", models.ErrBadRequest)
	}
	since := a.now().AddDate(0, 0, -windowDays)

	events, err = a.store.ListSince(ctx, since, a.config.MaxScan)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load security events: %w", err)
	}

	truncated = a.config.MaxScan > 0 && len(events) >= a.config.MaxScan
	if truncated {
		a.logger.WarnContext(ctx, "audit scan hit the event cap, older events skipped",
			slog.Int("window_days", windowDays),
			slog.Int("max_scan", a.config.MaxScan),
		)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, truncated, nil
}

// FindSuspicious returns the events matched by any rule within the window, each
// annotated with the reason of the first rule that matched it.
func (a *AuditAnalyzer) FindSuspicious(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error) {
	events, _, err := a.load(ctx, windowDays)
	if err != nil {
		return nil, err
	}
	return a.union(a.detect(events)), nil
}

// ListFlagged returns events already marked suspicious within the window
func (a *AuditAnalyzer) ListFlagged(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window must be at least one day: %w", models.ErrBadRequest)
	}
	return a.store.ListSuspicious(ctx, a.now().AddDate(0, 0, -windowDays), a.config.TotalCap)
}

// AssessPatterns describes every pattern found in events
func (a *AuditAnalyzer) AssessPatterns(events []*models.SecurityEvent) []string {
	findings := a.detect(events)
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.summary)
	}
	return out
}

// MarkSuspicious flags one event with a reason
func (a *AuditAnalyzer) MarkSuspicious(ctx context.Context, eventID, reason string) error {
	if _, err := uuid.Parse(eventID); err != nil {
		return fmt.Errorf("invalid event id: %w", models.ErrBadRequest)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("reason is required: %w", models.ErrBadRequest)
	}
	return a.store.MarkSuspicious(ctx, eventID, reason)
}

// Analyze runs every rule, persists the marks and notifies each affected account once
func (a *AuditAnalyzer) Analyze(ctx context.Context, windowDays int) (*AnalysisReport, error) {
	events, truncated, err := a.load(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	findings := a.detect(events)
	flagged := a.union(findings)

	report := &AnalysisReport{
		WindowDays:  windowDays,
		Scanned:     len(events),
		Flagged:     len(flagged),
		Truncated:   truncated,
		Findings:    make([]string, 0, len(findings)),
		Accounts:    []string{},
		GeneratedAt: a.now(),
	}
	for _, f := range findings {
		report.Findings = append(report.Findings, f.summary)
	}

	byReason := make(map[string][]string)
	reasons := make([]string, 0)
	for _, e := range flagged {
		reason := *e.SuspiciousReason
		if _, ok := byReason[reason]; !ok {
			reasons = append(reasons, reason)
		}
		byReason[reason] = append(byReason[reason], e.ID)
	}
	for _, reason := range reasons {
		if _, err := a.store.MarkSuspiciousBatch(ctx, byReason[reason], reason); err != nil {
			return nil, err
		}
	}

	// One notification per account, describing the first finding that touched it
	notified := make(map[string]bool)
	for _, e := range flagged {
		accountID := e.AccountKey()
		if accountID == "" || notified[accountID] {
			continue
		}
		notified[accountID] = true
		report.Accounts = append(report.Accounts, accountID)

		location := &models.Location{Country: e.Country, City: e.City}
		if e.Country == "" {
			location = nil
		}
		a.notifier.NotifyUnusualActivity(ctx, accountID, *e.SuspiciousReason, e.IPAddress, location)
	}

	a.logger.InfoContext(ctx, "audit analysis completed",
		slog.Int("window_days", windowDays),
		slog.Int("scanned", report.Scanned),
		slog.Int("flagged", report.Flagged),
		slog.Bool("truncated", report.Truncated),
		slog.Int("accounts", len(report.Accounts)),
	)
	return report, nil
}

// detect evaluates every rule independently; each rule keeps at most RuleCap events
func (a *AuditAnalyzer) detect(events []*models.SecurityEvent) []finding {
	rules := [][]finding{
		detectCredentialStuffing(events),
		detectBursts(events),
		a.detectOffHours(events),
		detectImpossibleTravel(events),
		detectMultiLocation(events),
	}

	out := make([]finding, 0)
	for _, ruleFindings := range rules {
		out = append(out, capFindings(ruleFindings, a.config.RuleCap)...)
	}
	return out
}

// union dedupes findings by event id, first rule wins, up to TotalCap events
func (a *AuditAnalyzer) union(findings []finding) []*models.SecurityEvent {
	seen := make(map[string]bool)
	out := make([]*models.SecurityEvent, 0)

	for _, f := range findings {
		for _, e := range f.events {
			if seen[e.ID] {
				continue
			}
			if len(out) >= a.config.TotalCap {
				return out
			}
			seen[e.ID] = true
			reason := f.summary
			e.IsSuspicious = true
			e.SuspiciousReason = &reason
			out = append(out, e)
		}
	}
	return out
}

func capFindings(findings []finding, limit int) []finding {
	remaining := limit
	out := make([]finding, 0, len(findings))
	for _, f := range findings {
		if remaining <= 0 {
			break
		}
		if len(f.events) > remaining {
			f.events = f.events[:remaining]
		}
		remaining -= len(f.events)
		out = append(out, f)
	}
	return out
}

// groupBy buckets events by key, skipping empty keys, and returns keys in sorted order
func groupBy(events []*models.SecurityEvent, key func(*models.SecurityEvent) string) ([]string, map[string][]*models.SecurityEvent) {
	groups := make(map[string][]*models.SecurityEvent)
	for _, e := range events {
		k := key(e)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], e)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, groups
}

func detectCredentialStuffing(events []*models.SecurityEvent) []finding {
	keys, groups := groupBy(events, func(e *models.SecurityEvent) string {
		if !e.IsFailedLogin() {
			return ""
		}
		return e.IPAddress
	})

	out := make([]finding, 0)
	for _, ip := range keys {
		group := groups[ip]
		if len(group) < credentialStuffingThreshold {
			continue
		}
		out = append(out, finding{
			rule:    RuleCredentialStuffing,
			summary: fmt.Sprintf("Possible %s: %d failed logins from %s", RuleCredentialStuffing, len(group), ip),
			events:  group,
		})
	}
	return out
}

func detectBursts(events []*models.SecurityEvent) []finding {
	keys, groups := groupBy(events, func(e *models.SecurityEvent) string {
		if e.AccountID == nil {
			return ""
		}
		return fmt.Sprintf("%s|%02d", *e.AccountID, e.CreatedAt.UTC().Hour())
	})

	out := make([]finding, 0)
	for _, k := range keys {
		group := groups[k]
		if len(group) < burstThreshold {
			continue
		}
		accountID, hour, _ := strings.Cut(k, "|")
		out = append(out, finding{
			rule:    RuleBurstActivity,
			summary: fmt.Sprintf("Unusual %s: %d events for account %s in hour %s:00", RuleBurstActivity, len(group), accountID, hour),
			events:  group,
		})
	}
	return out
}

func (a *AuditAnalyzer) detectOffHours(events []*models.SecurityEvent) []finding {
	matched := make([]*models.SecurityEvent, 0)
	for _, e := range events {
		hour := e.CreatedAt.UTC().Hour()
		if hour >= a.config.OffHoursStart && hour < a.config.OffHoursEnd {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	return []finding{{
		rule: RuleOffHours,
		summary: fmt.Sprintf("%d events during off-hours (%02d:00-%02d:00 UTC)",
			len(matched), a.config.OffHoursStart, a.config.OffHoursEnd),
		events: matched,
	}}
}

func detectImpossibleTravel(events []*models.SecurityEvent) []finding {
	keys, groups := groupBy(events, func(e *models.SecurityEvent) string { return e.AccountKey() })

	out := make([]finding, 0)
	for _, accountID := range keys {
		located := make([]*models.SecurityEvent, 0, len(groups[accountID]))
		for _, e := range groups[accountID] {
			if e.Country != "" && e.Country != models.LocalNetworkCountry {
				located = append(located, e)
			}
		}
		sort.SliceStable(located, func(i, j int) bool { return located[i].CreatedAt.Before(located[j].CreatedAt) })

		for i := 1; i < len(located); i++ {
			prev, cur := located[i-1], located[i]
			gap := cur.CreatedAt.Sub(prev.CreatedAt)
			if gap >= impossibleTravelGap || areNeighbors(prev.Country, cur.Country) {
				continue
			}
			out = append(out, finding{
				rule: RuleImpossibleTravel,
				summary: fmt.Sprintf("Possible %s for account %s: %s to %s in %s",
					RuleImpossibleTravel, accountID, prev.Country, cur.Country, gap.Round(time.Minute)),
				events: []*models.SecurityEvent{prev, cur},
			})
		}
	}
	return out
}

func detectMultiLocation(events []*models.SecurityEvent) []finding {
	keys, groups := groupBy(events, func(e *models.SecurityEvent) string { return e.AccountKey() })

	out := make([]finding, 0)
	for _, accountID := range keys {
		ips := make(map[string]struct{})
		for _, e := range groups[accountID] {
			if e.IPAddress != "" {
				ips[e.IPAddress] = struct{}{}
			}
		}
		if len(ips) < fanOutThreshold {
			continue
		}
		out = append(out, finding{
			rule:    RuleMultiLocation,
			summary: fmt.Sprintf("Account %s active from %d distinct IP addresses (%s)", accountID, len(ips), RuleMultiLocation),
			events:  groups[accountID],
		})
	}
	return out
}
