package analytics

import "sync"

// Repository stores analytics records. Implementations return copies.
type Repository interface {
	AppendUsage(u ToolUsage)
	Usages() []ToolUsage

	Combination(key string) (ToolCombination, bool)
	PutCombination(c ToolCombination)
	Combinations() []ToolCombination

	Preference(userID, tool string) (UserToolPreference, bool)
	PutPreference(p UserToolPreference)
	Preferences(userID string) []UserToolPreference

	AppendFeedback(m FeedbackMetric)
	FeedbackMetrics() []FeedbackMetric
}

type prefKey struct {
	user string
	tool string
}

// MemoryRepository is an in-memory Repository. Combinations and preferences
// are listed in insertion order.
type MemoryRepository struct {
	mu sync.RWMutex

	usages   []ToolUsage
	feedback []FeedbackMetric

	comboIdx map[string]int
	combos   []ToolCombination

	prefIdx map[prefKey]int
	prefs   []UserToolPreference
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		comboIdx: make(map[string]int),
		prefIdx:  make(map[prefKey]int),
	}
}

// AppendUsage records one tool usage.
func (r *MemoryRepository) AppendUsage(u ToolUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usages = append(r.usages, u.clone())
}

// Usages returns copies of all recorded usages in order.
func (r *MemoryRepository) Usages() []ToolUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolUsage, len(r.usages))
	for i, u := range r.usages {
		out[i] = u.clone()
	}
	return out
}

// Combination returns a copy of the combination stored under key.
func (r *MemoryRepository) Combination(key string) (ToolCombination, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.comboIdx[key]
	if !ok {
		return ToolCombination{}, false
	}
	return r.combos[i].clone(), true
}

// PutCombination inserts c or replaces the combination with the same key.
func (r *MemoryRepository) PutCombination(c ToolCombination) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.comboIdx[c.Key]; ok {
		r.combos[i] = c.clone()
		return
	}
	r.comboIdx[c.Key] = len(r.combos)
	r.combos = append(r.combos, c.clone())
}

// Combinations returns copies of all combinations in insertion order.
func (r *MemoryRepository) Combinations() []ToolCombination {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolCombination, len(r.combos))
	for i, c := range r.combos {
		out[i] = c.clone()
	}
	return out
}

// Preference returns a copy of the preference of userID for tool.
func (r *MemoryRepository) Preference(userID, tool string) (UserToolPreference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.prefIdx[prefKey{userID, tool}]
	if !ok {
		return UserToolPreference{}, false
	}
	return r.prefs[i].clone(), true
}

// PutPreference inserts p or replaces the preference for the same user and tool.
func (r *MemoryRepository) PutPreference(p UserToolPreference) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := prefKey{p.UserID, p.ToolName}
	if i, ok := r.prefIdx[k]; ok {
		r.prefs[i] = p.clone()
		return
	}
	r.prefIdx[k] = len(r.prefs)
	r.prefs = append(r.prefs, p.clone())
}

// Preferences returns copies of the preferences of userID.
func (r *MemoryRepository) Preferences(userID string) []UserToolPreference {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []UserToolPreference
	for _, p := range r.prefs {
		if p.UserID == userID {
			out = append(out, p.clone())
		}
	}
	return out
}

// AppendFeedback records one feedback improvement metric.
func (r *MemoryRepository) AppendFeedback(m FeedbackMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, m)
}

// FeedbackMetrics returns all recorded feedback metrics in order.
func (r *MemoryRepository) FeedbackMetrics() []FeedbackMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]FeedbackMetric(nil), r.feedback...)
}
