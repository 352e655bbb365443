package analytics

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/trace"
)

const (
	// Recommendation weights.
	preferenceWeight    = 0.4
	tagOverlapWeight    = 0.2
	historicalWeight    = 0.3
	recentSuccessWeight = 0.1

	// minRecommendationScore is the score a tool must exceed to be returned.
	minRecommendationScore = 0.1

	// Optimal combination weights.
	comboSuccessWeight = 0.6
	comboSpeedWeight   = 0.2
	comboUsageWeight   = 0.2

	// latencyBudget is the execution time in seconds at which the
	// preference latency bonus reaches zero.
	latencyBudget = 5.0
	latencyBonus  = 0.1

	dayLayout = "2006-01-02"
)

// Config tunes the analyzer.
type Config struct {
	// PreferenceWindow is the number of recent satisfaction samples averaged
	// into a preference score.
	PreferenceWindow int

	// RecentWindow bounds the "recent success" term of recommendations.
	RecentWindow time.Duration

	// MaxCombinationTools is the default size limit for optimal
	// combinations.
	MaxCombinationTools int

	// MinReliableUses is the usage count a tool needs before it is ranked
	// among a user's best performing tools.
	MinReliableUses int
}

// DefaultConfig returns the standard analyzer settings.
func DefaultConfig() Config {
	return Config{
		PreferenceWindow:    10,
		RecentWindow:        24 * time.Hour,
		MaxCombinationTools: 5,
		MinReliableUses:     3,
	}
}

// Analyzer records tool usage and serves recommendations.
// It is safe for concurrent use.
type Analyzer struct {
	cfg      Config
	repo     Repository
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	mu sync.Mutex
}

// NewAnalyzer creates an analyzer over repo. A nil repo uses a
// MemoryRepository and a nil logger discards output.
func NewAnalyzer(cfg Config, repo Repository, logger *zap.Logger) *Analyzer {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PreferenceWindow <= 0 {
		cfg.PreferenceWindow = DefaultConfig().PreferenceWindow
	}
	return &Analyzer{
		cfg:      cfg,
		repo:     repo,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// TrackToolUsage appends u and updates the user's preference for the tool.
// A zero timestamp is set to the current time.
func (a *Analyzer) TrackToolUsage(u ToolUsage) (ToolUsage, error) {
	if err := a.validate.Struct(u); err != nil {
		return ToolUsage{}, fmt.Errorf("invalid tool usage: %w", err)
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = a.now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.record(u)

	a.logger.Debug("tracked tool usage",
		zap.String("tool", u.ToolName),
		zap.String("user_id", u.UserID),
		zap.Bool("success", u.Success))
	return u.clone(), nil
}

// record appends u and folds it into the preference. Caller holds a.mu.
func (a *Analyzer) record(u ToolUsage) {
	a.repo.AppendUsage(u)

	pref, ok := a.repo.Preference(u.UserID, u.ToolName)
	if !ok {
		pref = UserToolPreference{UserID: u.UserID, ToolName: u.ToolName}
	}
	sample := 0.0
	if u.Success {
		sample = 1.0
	}
	pref.SatisfactionScores = append(pref.SatisfactionScores, sample)
	pref.UsageFrequency++
	pref.LastUsed = u.Timestamp
	pref.UpdatedAt = u.Timestamp
	pref.ContextTags = trace.MergeTags(pref.ContextTags, trace.ContextTags(u.Context))
	pref.PreferenceScore = PreferenceScore(pref.SatisfactionScores, u.ExecutionTime, a.cfg.PreferenceWindow)

	a.repo.PutPreference(pref)
}

// PreferenceScore is the mean of the last window samples plus a bonus of up
// to 0.1 for executions faster than five seconds, capped at 1.
func PreferenceScore(samples []float64, executionTime float64, window int) float64 {
	if len(samples) == 0 {
		return 0
	}
	recent := samples[max(0, len(samples)-window):]
	sum := 0.0
	for _, s := range recent {
		sum += s
	}
	score := sum / float64(len(recent))
	score += math.Max(0, (latencyBudget-executionTime)/latencyBudget) * latencyBonus
	return math.Min(1.0, score)
}

// TrackToolCombination folds one execution into the combination of tools.
// The first occurrence seeds the record and fixes its context pattern.
func (a *Analyzer) TrackToolCombination(tools []string, userID, sessionID string, totalTime float64, success bool, context map[string]any) ToolCombination {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	key := CombinationKey(tools)
	outcome := 0.0
	if success {
		outcome = 1.0
	}

	combo, ok := a.repo.Combination(key)
	if ok {
		combo.UsageCount++
		n := float64(combo.UsageCount)
		combo.AverageExecutionTime = (combo.AverageExecutionTime*(n-1) + totalTime) / n
		combo.SuccessRate = (combo.SuccessRate*(n-1) + outcome) / n
		combo.UpdatedAt = now
	} else {
		combo = ToolCombination{
			Key:                  key,
			Tools:                slices.Clone(tools),
			SuccessRate:          outcome,
			AverageExecutionTime: totalTime,
			UsageCount:           1,
			ContextPattern:       trace.ContextPattern(context),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
	}
	a.repo.PutCombination(combo)

	a.logger.Debug("tracked tool combination",
		zap.String("combination", key),
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("usage_count", combo.UsageCount))
	return combo.clone()
}

// Recommendations scores each available tool for userID in context and
// returns those scoring above 0.1, best first. Ties are ordered by name.
func (a *Analyzer) Recommendations(userID string, context map[string]any, available []string) []Recommendation {
	a.mu.Lock()
	defer a.mu.Unlock()

	tags := trace.ContextTags(context)
	usages := a.repo.Usages()
	cutoff := a.now().Add(-a.cfg.RecentWindow)

	var out []Recommendation
	for _, tool := range available {
		score := 0.0

		if pref, ok := a.repo.Preference(userID, tool); ok {
			score += preferenceWeight * pref.PreferenceScore
			if common := trace.CommonTags(pref.ContextTags, tags); common > 0 {
				score += tagOverlapWeight * float64(common) / float64(max(len(pref.ContextTags), 1))
			}
		}

		var total, ok, recent, recentOK int
		for _, u := range usages {
			if u.ToolName != tool {
				continue
			}
			total++
			if u.Success {
				ok++
			}
			if !u.Timestamp.Before(cutoff) {
				recent++
				if u.Success {
					recentOK++
				}
			}
		}
		if total > 0 {
			score += historicalWeight * float64(ok) / float64(total)
		}
		if recent > 0 {
			score += recentSuccessWeight * float64(recentOK) / float64(recent)
		}

		if score > minRecommendationScore {
			out = append(out, Recommendation{Tool: tool, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}

// OptimalCombination returns the tools of the best scoring combination
// recorded under the context's pattern with at most maxTools tools, or nil.
// A non-positive maxTools uses the configured default.
func (a *Analyzer) OptimalCombination(context map[string]any, maxTools int) []string {
	if maxTools <= 0 {
		maxTools = a.cfg.MaxCombinationTools
	}
	pattern := trace.ContextPattern(context)

	var (
		best      ToolCombination
		bestScore = math.Inf(-1)
	)
	for _, c := range a.repo.Combinations() {
		if c.ContextPattern != pattern || len(c.Tools) > maxTools {
			continue
		}
		if s := CombinationScore(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	if math.IsInf(bestScore, -1) {
		return nil
	}
	return best.Tools
}

// CombinationScore is 0.6*success rate + 0.2/max(avg time, 0.1) +
// 0.2*min(usage/10, 1).
func CombinationScore(c ToolCombination) float64 {
	return comboSuccessWeight*c.SuccessRate +
		comboSpeedWeight*(1.0/math.Max(c.AverageExecutionTime, 0.1)) +
		comboUsageWeight*math.Min(float64(c.UsageCount)/10.0, 1.0)
}

// Performance summarises tool over the last days days (7 when days is not
// positive).
func (a *Analyzer) Performance(tool string, days int) (ToolPerformance, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := a.now().AddDate(0, 0, -days)

	var recent []ToolUsage
	for _, u := range a.repo.Usages() {
		if u.ToolName == tool && !u.Timestamp.Before(cutoff) {
			recent = append(recent, u)
		}
	}
	if len(recent) == 0 {
		return ToolPerformance{}, fmt.Errorf("%w for tool %s", ErrNoData, tool)
	}

	perf := ToolPerformance{
		ToolName:           tool,
		PeriodDays:         days,
		TotalUses:          len(recent),
		DailySuccessRates:  make(map[string]float64),
		ContextPerformance: make(map[string]float64),
	}

	daily := make(map[string][]bool)
	byContext := make(map[string][]bool)
	users := make(map[string]struct{})
	ok, sumTime := 0, 0.0
	for _, u := range recent {
		if u.Success {
			ok++
		}
		sumTime += u.ExecutionTime
		users[u.UserID] = struct{}{}
		day := u.Timestamp.UTC().Format(dayLayout)
		daily[day] = append(daily[day], u.Success)
		ctx := trace.ContextPattern(u.Context)
		byContext[ctx] = append(byContext[ctx], u.Success)
	}
	perf.SuccessRate = float64(ok) / float64(len(recent))
	perf.AverageExecutionTime = sumTime / float64(len(recent))
	perf.UniqueUsers = len(users)

	dayKeys := make([]string, 0, len(daily))
	for day, outcomes := range daily {
		perf.DailySuccessRates[day] = rate(outcomes)
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)
	series := make([]float64, len(dayKeys))
	for i, day := range dayKeys {
		series[i] = perf.DailySuccessRates[day]
	}
	for ctx, outcomes := range byContext {
		perf.ContextPerformance[ctx] = rate(outcomes)
	}
	perf.PerformanceTrend = CalculateTrend(series)
	return perf, nil
}

// UserInsights summarises the usage of userID.
func (a *Analyzer) UserInsights(userID string) (UserInsights, error) {
	var usages []ToolUsage
	for _, u := range a.repo.Usages() {
		if u.UserID == userID {
			usages = append(usages, u)
		}
	}
	if len(usages) == 0 {
		return UserInsights{}, fmt.Errorf("%w for user %s", ErrNoData, userID)
	}

	counts := make(map[string]int)
	outcomes := make(map[string][]bool)
	hours := make(map[int]int)
	ok := 0
	for _, u := range usages {
		counts[u.ToolName]++
		outcomes[u.ToolName] = append(outcomes[u.ToolName], u.Success)
		hours[u.Timestamp.Hour()]++
		if u.Success {
			ok++
		}
	}

	var best []ToolRate
	for tool, o := range outcomes {
		if len(o) >= a.cfg.MinReliableUses {
			best = append(best, ToolRate{Tool: tool, SuccessRate: rate(o)})
		}
	}
	sort.Slice(best, func(i, j int) bool {
		if best[i].SuccessRate != best[j].SuccessRate {
			return best[i].SuccessRate > best[j].SuccessRate
		}
		return best[i].Tool < best[j].Tool
	})

	hourList := make([]int, 0, len(hours))
	for h := range hours {
		hourList = append(hourList, h)
	}
	sort.Slice(hourList, func(i, j int) bool {
		if hours[hourList[i]] != hours[hourList[j]] {
			return hours[hourList[i]] > hours[hourList[j]]
		}
		return hourList[i] < hourList[j]
	})

	improvements := make(map[string][]float64)
	cutoff := a.now().AddDate(0, 0, -30)
	for _, m := range a.repo.FeedbackMetrics() {
		if m.UserID == userID && !m.Timestamp.Before(cutoff) {
			improvements[m.MetricType] = append(improvements[m.MetricType], m.ImprovementPercentage)
		}
	}
	avgImprovements := make(map[string]float64, len(improvements))
	for kind, values := range improvements {
		avgImprovements[kind] = mean(values)
	}

	prefs := make(map[string]float64)
	for _, p := range a.repo.Preferences(userID) {
		prefs[p.ToolName] = p.PreferenceScore
	}

	return UserInsights{
		UserID:              userID,
		TotalToolUses:       len(usages),
		MostUsedTools:       topCounts(counts, 5),
		BestPerformingTools: best[:min(5, len(best))],
		PeakUsageHours:      hourList[:min(3, len(hourList))],
		OverallSuccessRate:  float64(ok) / float64(len(usages)),
		RecentImprovements:  avgImprovements,
		Preferences:         prefs,
	}, nil
}

// RecordFeedbackImprovement stores a before/after measurement. The
// improvement is relative to before, in percent.
func (a *Analyzer) RecordFeedbackImprovement(sessionID, userID, metricType string, before, after float64) FeedbackMetric {
	m := FeedbackMetric{
		SessionID:             sessionID,
		UserID:                userID,
		MetricType:            metricType,
		BeforeValue:           before,
		AfterValue:            after,
		ImprovementPercentage: (after - before) / math.Max(before, 0.001) * 100,
		Timestamp:             a.now(),
	}
	a.repo.AppendFeedback(m)

	a.logger.Info("recorded feedback improvement",
		zap.String("user_id", userID),
		zap.String("metric", metricType),
		zap.Float64("improvement_pct", m.ImprovementPercentage))
	return m
}

// SystemReport summarises usage across all users.
func (a *Analyzer) SystemReport() (SystemReport, error) {
	usages := a.repo.Usages()
	if len(usages) == 0 {
		return SystemReport{}, ErrNoData
	}

	counts := make(map[string]int)
	users := make(map[string]struct{})
	ok, recent, recentOK := 0, 0, 0
	cutoff := a.now().AddDate(0, 0, -7)
	for _, u := range usages {
		counts[u.ToolName]++
		users[u.UserID] = struct{}{}
		if u.Success {
			ok++
		}
		if !u.Timestamp.Before(cutoff) {
			recent++
			if u.Success {
				recentOK++
			}
		}
	}

	combos := a.repo.Combinations()
	sort.SliceStable(combos, func(i, j int) bool {
		return combos[i].SuccessRate*float64(combos[i].UsageCount) >
			combos[j].SuccessRate*float64(combos[j].UsageCount)
	})
	best := make([]CombinationStat, 0, min(5, len(combos)))
	for _, c := range combos[:min(5, len(combos))] {
		best = append(best, CombinationStat{Tools: c.Tools, SuccessRate: c.SuccessRate, UsageCount: c.UsageCount})
	}

	r := SystemReport{
		TotalToolUses:      len(usages),
		OverallSuccessRate: float64(ok) / float64(len(usages)),
		UniqueUsers:        len(users),
		AvgToolsPerUser:    float64(len(usages)) / float64(len(users)),
		PopularTools:       topCounts(counts, 10),
		BestCombinations:   best,
		TotalCombinations:  len(combos),
	}
	if recent > 0 {
		r.RecentSuccessRate = float64(recentOK) / float64(recent)
	}
	r.ImprovementTrend = r.RecentSuccessRate - r.OverallSuccessRate
	return r, nil
}

// Load replays persisted usages, rebuilding preferences, and restores
// combinations.
func (a *Analyzer) Load(usages []ToolUsage, combos []ToolCombination) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sorted := slices.Clone(usages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	for _, u := range sorted {
		a.record(u)
	}
	for _, c := range combos {
		if c.Key == "" {
			c.Key = CombinationKey(c.Tools)
		}
		a.repo.PutCombination(c)
	}

	a.logger.Info("loaded tool analytics",
		zap.Int("usages", len(usages)),
		zap.Int("combinations", len(combos)))
}

func topCounts(counts map[string]int, n int) []ToolCount {
	out := make([]ToolCount, 0, len(counts))
	for tool, c := range counts {
		out = append(out, ToolCount{Tool: tool, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tool < out[j].Tool
	})
	return out[:min(n, len(out))]
}

func rate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	ok := 0
	for _, o := range outcomes {
		if o {
			ok++
		}
	}
	return float64(ok) / float64(len(outcomes))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
