package scheduler

import "github.com/pkg/errors"

type QueuePolicy string

const (
	FifoQueue              QueuePolicy = "fifo"
	SmallestFileFirstQueue QueuePolicy = "sff"
)

var ErrInvalidPolicy = errors.New("invalid queue policy")

// A read-only view of the queued entries, in order of arrival.
type View interface {
	// Number of queued entries.
	Len() int

	// The size hint recorded for the i-th entry.
	SizeHint(i int) uint64
}

// A scheduler chooses which queued entry is served next.
//
// A scheduler holds no state of its own and is safe to share. It is called
// with the queue lock held, so it must not block or modify the view.
type Scheduler interface {
	// Returns the index of the entry to dequeue next.
	//
	// The view always holds at least one entry.
	Select(entries View) int

	// The policy implemented by this scheduler.
	Policy() QueuePolicy
}

// Parses a policy name as given on the command line.
func ParsePolicy(name string) (QueuePolicy, error) {
	switch p := QueuePolicy(name); p {
	case FifoQueue, SmallestFileFirstQueue:
		return p, nil
	default:
		return "", errors.Wrapf(ErrInvalidPolicy, "%q", name)
	}
}

// Creates the scheduler for the given policy.
func New(policy QueuePolicy) (Scheduler, error) {
	switch policy {
	case FifoQueue:
		return NewFIFO(), nil
	case SmallestFileFirstQueue:
		return NewSFF(), nil
	default:
		return nil, errors.Wrapf(ErrInvalidPolicy, "%q", string(policy))
	}
}
