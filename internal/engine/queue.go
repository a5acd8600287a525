package engine

// requestQueue orders pending requests by priority, FIFO among equals.
// Four per-rank buckets make the stable ordering self-evident; catalogs of
// waiting work are small enough that slice shifts are irrelevant.
type requestQueue struct {
	buckets [4][]*request
	n       int
}

func (q *requestQueue) push(r *request) {
	rank := r.req.Priority.Rank()
	q.buckets[rank] = append(q.buckets[rank], r)
	q.n++
}

// pop removes the highest-priority, earliest-arrival request, or nil.
func (q *requestQueue) pop() *request {
	for rank := len(q.buckets) - 1; rank >= 0; rank-- {
		b := q.buckets[rank]
		if len(b) == 0 {
			continue
		}
		r := b[0]
		q.buckets[rank] = b[1:]
		q.n--
		return r
	}
	return nil
}

// remove deletes a specific queued request, preserving order of the rest.
func (q *requestQueue) remove(target *request) bool {
	rank := target.req.Priority.Rank()
	for i, r := range q.buckets[rank] {
		if r == target {
			q.buckets[rank] = append(q.buckets[rank][:i], q.buckets[rank][i+1:]...)
			q.n--
			return true
		}
	}
	return false
}

// drain empties the queue, returning the removed requests in dispatch order.
func (q *requestQueue) drain() []*request {
	out := make([]*request, 0, q.n)
	for rank := len(q.buckets) - 1; rank >= 0; rank-- {
		out = append(out, q.buckets[rank]...)
		q.buckets[rank] = nil
	}
	q.n = 0
	return out
}

func (q *requestQueue) len() int { return q.n }
