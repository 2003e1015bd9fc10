package scheduler

import "wserver/src/server/datastructures"

type sffScheduler struct{}

// Creates a new smallest file first scheduler.
//
// The SFF scheduler always yields the entry with the smallest size hint. Among
// entries of equal size, the one that arrived first wins.
//
// Large entries can starve while smaller ones keep arriving.
func NewSFF() Scheduler {
	return sffScheduler{}
}

func (sffScheduler) Select(entries View) int {
	return datastructures.MinIndex(entries.Len(), entries.SizeHint)
}

func (sffScheduler) Policy() QueuePolicy {
	return SmallestFileFirstQueue
}
