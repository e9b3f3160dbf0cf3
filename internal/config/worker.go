package config

import (
	"strconv"
	"strings"
)

// parseQueues parses a comma-separated "name:concurrency" list, e.g.
// "default:10,mailers:2,low:1". An entry with no ":concurrency" suffix, or
// an unparsable one, is returned with Concurrency 0 so the caller can
// apply its own default.
func parseQueues(s string) []QueueSpec {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	specs := make([]QueueSpec, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		name, concStr, hasConc := strings.Cut(trimmed, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		spec := QueueSpec{Name: name}
		if hasConc {
			if n, err := strconv.Atoi(strings.TrimSpace(concStr)); err == nil && n > 0 {
				spec.Concurrency = n
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

// ResolvedConcurrency returns q's configured concurrency, falling back to
// the process default when the queue entry didn't specify one.
func (q QueueSpec) ResolvedConcurrency(defaultConcurrency int) int {
	if q.Concurrency > 0 {
		return q.Concurrency
	}
	return defaultConcurrency
}
