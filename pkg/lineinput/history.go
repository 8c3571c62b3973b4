package lineinput

import "strings"

const DefaultHistorySize = 200

// History ограниченная история введенных строк в порядке поступления
type History struct {
	entries []string
	max     int
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Add добавляет строку. Пустые строки не сохраняются, повторы сохраняются.
func (h *History) Add(entry string) bool {
	if h == nil || strings.TrimSpace(entry) == "" {
		return false
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return true
}

func (h *History) Entries() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.entries...)
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

func (h *History) Clear() {
	if h == nil {
		return
	}
	h.entries = nil
}
