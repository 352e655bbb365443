package trace

import (
	"fmt"
	"strings"
)

// DefaultContextPattern is the pattern of a context with no recognised keys.
const DefaultContextPattern = "default"

// contextKeys is the allow-list of context keys that become tags.
var contextKeys = []struct {
	key    string
	prefix string
}{
	{key: "mode", prefix: "mode"},
	{key: "user_role", prefix: "role"},
	{key: "time_of_day", prefix: "time"},
}

// ContextTags reduces a context mapping to "prefix_value" tags for the
// allow-listed keys mode, user_role and time_of_day. Other keys are ignored.
func ContextTags(ctx map[string]any) []string {
	tags := make([]string, 0, len(contextKeys))
	for _, k := range contextKeys {
		v, ok := ctx[k.key]
		if !ok || v == nil {
			continue
		}
		tags = append(tags, k.prefix+"_"+fmt.Sprint(v))
	}
	return tags
}

// ContextPattern joins the context tags into a single grouping key.
func ContextPattern(ctx map[string]any) string {
	tags := ContextTags(ctx)
	if len(tags) == 0 {
		return DefaultContextPattern
	}
	return strings.Join(tags, "_")
}

// CommonTags counts the tags present in both a and b.
func CommonTags(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

// MergeTags appends the tags of extra missing from base.
func MergeTags(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, t := range extra {
		found := false
		for _, b := range out {
			if b == t {
				found = true
				break
			}
		}
		if !found {
			out = append(out, t)
		}
	}
	return out
}
