package pe

// Searcher finds one literal pattern in byte buffers with the Boyer-Moore
// algorithm. The shift tables are computed once and the Searcher is safe to
// reuse and to share between goroutines.
type Searcher struct {
	pattern    []byte
	badChar    [256]int
	goodSuffix []int
}

// NewSearcher precomputes the shift tables for pattern.
func NewSearcher(pattern string) *Searcher {
	s := &Searcher{pattern: []byte(pattern)}
	m := len(s.pattern)

	for i := range s.badChar {
		s.badChar[i] = m
	}
	for i := 0; i < m-1; i++ {
		s.badChar[s.pattern[i]] = m - 1 - i
	}

	s.goodSuffix = make([]int, m)
	if m == 0 {
		return s
	}

	suff := suffixes(s.pattern)
	for i := range s.goodSuffix {
		s.goodSuffix[i] = m
	}
	j := 0
	for i := m - 1; i >= 0; i-- {
		if suff[i] == i+1 {
			for ; j < m-1-i; j++ {
				if s.goodSuffix[j] == m {
					s.goodSuffix[j] = m - 1 - i
				}
			}
		}
	}
	for i := 0; i <= m-2; i++ {
		s.goodSuffix[m-1-suff[i]] = m - 1 - i
	}

	return s
}

// suffixes returns, for every i, the length of the longest substring ending
// at i that is also a suffix of p.
func suffixes(p []byte) []int {
	m := len(p)
	suff := make([]int, m)
	suff[m-1] = m
	for i := m - 2; i >= 0; i-- {
		k := 0
		for k <= i && p[i-k] == p[m-1-k] {
			k++
		}
		suff[i] = k
	}
	return suff
}

// Index returns the index of the first occurrence of the pattern in haystack
// at or after start, or -1. An empty pattern matches at start.
func (s *Searcher) Index(haystack []byte, start int) int {
	if start < 0 {
		start = 0
	}
	if start > len(haystack) {
		return -1
	}

	m := len(s.pattern)
	if m == 0 {
		return start
	}

	for pos := start; pos <= len(haystack)-m; {
		i := m - 1
		for i >= 0 && s.pattern[i] == haystack[pos+i] {
			i--
		}
		if i < 0 {
			return pos
		}
		pos += max(s.goodSuffix[i], s.badChar[haystack[pos+i]]-m+1+i)
	}

	return -1
}

// IndexFrom is a one-shot NewSearcher(needle).Index(haystack, start).
func IndexFrom(haystack []byte, needle string, start int) int {
	return NewSearcher(needle).Index(haystack, start)
}
