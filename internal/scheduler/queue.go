package scheduler

import "time"

// entry is a pending alarm. index is maintained by container/heap.
type entry[P any] struct {
	key     string
	handle  Handle
	fireAt  time.Time
	payload P
	index   int
}

// alarmQueue is a min-heap of entries ordered by fire time.
type alarmQueue[P any] []*entry[P]

func (q alarmQueue[P]) Len() int { return len(q) }

func (q alarmQueue[P]) Less(i, j int) bool {
	if q[i].fireAt.Equal(q[j].fireAt) {
		return q[i].handle < q[j].handle
	}
	return q[i].fireAt.Before(q[j].fireAt)
}

func (q alarmQueue[P]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *alarmQueue[P]) Push(x any) {
	e := x.(*entry[P])
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *alarmQueue[P]) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
