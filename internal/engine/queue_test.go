package engine

import (
	"testing"

	"inferd/pkg/types"
)

func queuedReq(id string, p types.Priority) *request {
	return &request{id: id, req: types.InferenceRequest{Priority: p}}
}

func popIDs(q *requestQueue) []string {
	var ids []string
	for r := q.pop(); r != nil; r = q.pop() {
		ids = append(ids, r.id)
	}
	return ids
}

func TestQueuePopsByPriorityThenFIFO(t *testing.T) {
	var q requestQueue
	q.push(queuedReq("low1", types.PriorityLow))
	q.push(queuedReq("norm1", types.PriorityNormal))
	q.push(queuedReq("urg1", types.PriorityUrgent))
	q.push(queuedReq("norm2", types.PriorityNormal))
	q.push(queuedReq("high1", types.PriorityHigh))
	q.push(queuedReq("urg2", types.PriorityUrgent))

	want := []string{"urg1", "urg2", "high1", "norm1", "norm2", "low1"}
	got := popIDs(&q)
	if len(got) != len(want) {
		t.Fatalf("popped %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
	if q.len() != 0 {
		t.Fatalf("queue not empty: %d", q.len())
	}
}

func TestQueueUnknownPriorityRanksAsNormal(t *testing.T) {
	var q requestQueue
	q.push(queuedReq("weird", types.Priority("asap")))
	q.push(queuedReq("low", types.PriorityLow))
	if r := q.pop(); r.id != "weird" {
		t.Fatalf("unknown priority should outrank low, popped %s", r.id)
	}
}

func TestQueueRemovePreservesOrder(t *testing.T) {
	var q requestQueue
	a := queuedReq("a", types.PriorityNormal)
	b := queuedReq("b", types.PriorityNormal)
	c := queuedReq("c", types.PriorityNormal)
	q.push(a)
	q.push(b)
	q.push(c)

	if !q.remove(b) {
		t.Fatalf("remove failed")
	}
	if q.remove(b) {
		t.Fatalf("second remove must fail")
	}
	got := popIDs(&q)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("order after remove: %v", got)
	}
}

func TestQueueDrainReturnsDispatchOrder(t *testing.T) {
	var q requestQueue
	q.push(queuedReq("low", types.PriorityLow))
	q.push(queuedReq("urg", types.PriorityUrgent))
	q.push(queuedReq("norm", types.PriorityNormal))

	drained := q.drain()
	if len(drained) != 3 {
		t.Fatalf("drained %d", len(drained))
	}
	want := []string{"urg", "norm", "low"}
	for i, r := range drained {
		if r.id != want[i] {
			t.Fatalf("drain order: got %s at %d want %s", r.id, i, want[i])
		}
	}
	if q.len() != 0 || q.pop() != nil {
		t.Fatalf("queue not empty after drain")
	}
}

func TestQueuePopEmptyIsNil(t *testing.T) {
	var q requestQueue
	if q.pop() != nil {
		t.Fatalf("pop on empty queue must return nil")
	}
}
