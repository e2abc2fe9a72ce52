// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package timer

import (
	"container/heap"
	"time"
)

// queueItem is one entry in the priority queue: an entry name and the
// deadline it should fire at. index is maintained by container/heap so
// arbitrary items can be removed in O(log n) via priorityQueue.remove.
type queueItem struct {
	name     string
	deadline time.Time
	index    int
}

// priorityQueue is a min-heap of queueItem ordered by deadline, implementing
// container/heap.Interface.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].deadline.Before(pq[j].deadline)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// remove removes item from the queue wherever it currently sits, via
// container/heap's fixup.
func (pq *priorityQueue) remove(item *queueItem) {
	if item.index < 0 || item.index >= pq.Len() {
		return
	}
	heap.Remove(pq, item.index)
}
