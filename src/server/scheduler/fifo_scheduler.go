package scheduler

type fifoScheduler struct{}

// Creates a new FIFO scheduler.
//
// The FIFO scheduler ignores the size hints and serves everything in order of
// arrival.
func NewFIFO() Scheduler {
	return fifoScheduler{}
}

func (fifoScheduler) Select(entries View) int {
	return 0
}

func (fifoScheduler) Policy() QueuePolicy {
	return FifoQueue
}
