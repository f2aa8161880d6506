package searcher

import (
	"strings"
	"sync"
)

// history is a fixed-capacity ring of executed query texts
type history struct {
	mu      sync.Mutex
	entries []string
	next    int
	full    bool
}

func newHistory(capacity int) *history {
	return &history{entries: make([]string, capacity)}
}

// add appends text unless it repeats the most recent entry
func (h *history) add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.lastLocked(); ok && last == text {
		return
	}
	h.entries[h.next] = text
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) lastLocked() (string, bool) {
	if !h.full && h.next == 0 {
		return "", false
	}
	i := h.next - 1
	if i < 0 {
		i = len(h.entries) - 1
	}
	return h.entries[i], true
}

// recent returns entries newest first
func (h *history) recent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.entries)
	}
	out := make([]string, 0, n)
	for k := 1; k <= n; k++ {
		i := (h.next - k + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[i])
	}
	return out
}
