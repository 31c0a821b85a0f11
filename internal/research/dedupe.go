package research

import "strings"

// URLSet tracks source URLs already attributed within a run.
type URLSet struct {
	seen map[string]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{seen: map[string]struct{}{}}
}

// Add reports whether url was newly recorded. Blank urls are never recorded.
func (s *URLSet) Add(url string) bool {
	key := strings.TrimSpace(url)
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *URLSet) Len() int {
	return len(s.seen)
}

// DedupeCitations keeps the first occurrence of every url, preserving order.
func DedupeCitations(citations []Citation) []Citation {
	seen := NewURLSet()
	out := make([]Citation, 0, len(citations))
	for _, citation := range citations {
		if !seen.Add(citation.URL) {
			continue
		}
		out = append(out, citation)
	}
	return out
}
