package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dshills/pensieve-search/internal/pensieve"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

// buildRecord assembles a RawRecord from an entity and its metadata.
// The embedding is only decoded when withEmbedding is set.
func buildRecord(id int64, filepath string, createdAt time.Time, source string, meta map[string]string, withEmbedding bool) (types.RawRecord, error) {
	rec := types.RawRecord{
		EntityID:    id,
		Filepath:    filepath,
		CreatedAt:   createdAt,
		WindowTitle: strings.TrimSpace(meta[storage.KeyActiveWindow]),
		OCRText:     pensieve.FlattenOCR(meta[storage.KeyOCRResult]),
		Tasks:       parseTasks(meta[storage.KeyTasks]),
		Category:    strings.TrimSpace(meta[storage.KeyActivityCategory]),
		Source:      source,
	}

	if withEmbedding {
		vec, err := storage.ParseEmbedding(meta[storage.KeyEmbedding])
		if err != nil {
			return rec, err
		}
		rec.Embedding = vec
	}
	return rec, nil
}

// parseTasks accepts a JSON list of strings or of {"title": ...}
// objects, falling back to one task per non-empty line
func parseTasks(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if strings.HasPrefix(value, "[") {
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(value), &raw); err == nil {
			var tasks []string
			for _, item := range raw {
				var s string
				if err := json.Unmarshal(item, &s); err == nil {
					if s = strings.TrimSpace(s); s != "" {
						tasks = append(tasks, s)
					}
					continue
				}
				var obj struct {
					Title string `json:"title"`
				}
				if err := json.Unmarshal(item, &obj); err == nil {
					if t := strings.TrimSpace(obj.Title); t != "" {
						tasks = append(tasks, t)
					}
				}
			}
			return tasks
		}
	}

	var tasks []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tasks = append(tasks, line)
		}
	}
	return tasks
}

// matchesFilter applies time range and category constraints in Go for
// records that did not come through SQL
func matchesFilter(rec types.RawRecord, filter *storage.Filter) bool {
	if filter.IsEmpty() {
		return true
	}
	if !filter.Start.IsZero() && rec.CreatedAt.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && rec.CreatedAt.After(filter.End) {
		return false
	}
	if len(filter.Categories) > 0 {
		for _, c := range filter.Categories {
			if c == rec.Category {
				return true
			}
		}
		return false
	}
	return true
}

// FilterFor converts a query's time range and categories to a store filter
func FilterFor(q types.Query) *storage.Filter {
	if q.TimeRange == nil && len(q.Categories) == 0 {
		return nil
	}
	f := &storage.Filter{Categories: q.Categories}
	if q.TimeRange != nil {
		f.Start = q.TimeRange.Start
		f.End = q.TimeRange.End
	}
	return f
}
