package engine

// logRing is a fixed-capacity line buffer; the oldest line is evicted first.
// It is not safe for concurrent use; the supervisor guards it with its own
// mutex.
type logRing struct {
	lines []string
	cap   int
	start int
	count int
}

func newLogRing(capacity int) *logRing {
	return &logRing{lines: make([]string, capacity), cap: capacity}
}

func (r *logRing) Append(line string) {
	if r.count < r.cap {
		r.lines[(r.start+r.count)%r.cap] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % r.cap
}

func (r *logRing) Len() int { return r.count }

// Snapshot returns the buffered lines oldest-first.
func (r *logRing) Snapshot() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.start+i)%r.cap]
	}
	return out
}

// Tail returns up to n most recent lines, oldest-first.
func (r *logRing) Tail(n int) []string {
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = r.lines[(r.start+r.count-n+i)%r.cap]
	}
	return out
}
