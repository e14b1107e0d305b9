package worker

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

type TaskStop struct{}

type Task interface{}

// SeqTask is a task that an ordered worker hands out strictly by Seq.
type SeqTask interface {
	Seq() uint64
}

type TaskHandler interface {
	Handle(t Task)
}

type Starter interface {
	Start()
}

// GapHandler is told when an ordered worker gives up waiting for the
// sequence numbers in [from, to] and moves past them.
type GapHandler interface {
	HandleGap(from, to uint64)
}

type Worker struct {
	name     string
	sender   chan<- Task
	receiver <-chan Task
	wg       *sync.WaitGroup

	// Only used by ordered workers, and only from the worker goroutine.
	ordered    bool
	next       uint64
	pending    seqHeap
	queued     map[uint64]struct{}
	gapTimeout time.Duration
}

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if s, ok := handler.(Starter); ok {
			s.Start()
		}
		var (
			gapTimer   *time.Timer
			gapC       <-chan time.Time
			waitingFor uint64
		)
		for {
			select {
			case task := <-w.receiver:
				if _, ok := task.(TaskStop); ok {
					if gapTimer != nil {
						gapTimer.Stop()
					}
					return
				}
				if w.ordered {
					w.admit(task, handler)
				} else {
					handler.Handle(task)
				}
			case <-gapC:
				gapC = nil
				w.skipGap(handler)
			}

			if !w.ordered || w.gapTimeout <= 0 {
				continue
			}
			if len(w.pending) == 0 {
				if gapTimer != nil {
					gapTimer.Stop()
				}
				gapC = nil
				continue
			}
			if gapC == nil || waitingFor != w.next {
				if gapTimer != nil {
					gapTimer.Stop()
				}
				gapTimer = time.NewTimer(w.gapTimeout)
				gapC = gapTimer.C
				waitingFor = w.next
			}
		}
	}()
}

func (w *Worker) admit(task Task, handler TaskHandler) {
	st, ok := task.(SeqTask)
	if !ok {
		handler.Handle(task)
		return
	}
	seq := st.Seq()
	if _, dup := w.queued[seq]; dup || seq < w.next {
		log.Warn("drop duplicated task", zap.String("worker", w.name), zap.Uint64("seq", seq), zap.Uint64("next", w.next))
		return
	}
	w.queued[seq] = struct{}{}
	heap.Push(&w.pending, st)
	w.drain(handler)
}

func (w *Worker) drain(handler TaskHandler) {
	for len(w.pending) > 0 && w.pending[0].Seq() == w.next {
		st := heap.Pop(&w.pending).(SeqTask)
		delete(w.queued, st.Seq())
		handler.Handle(st)
		w.next++
	}
}

func (w *Worker) skipGap(handler TaskHandler) {
	if len(w.pending) == 0 {
		return
	}
	from, to := w.next, w.pending[0].Seq()-1
	log.Error("skip missing tasks", zap.String("worker", w.name), zap.Uint64("from", from), zap.Uint64("to", to))
	if g, ok := handler.(GapHandler); ok {
		g.HandleGap(from, to)
	}
	w.next = to + 1
	w.drain(handler)
}

func (w *Worker) Sender() chan<- Task {
	return w.sender
}

func (w *Worker) Stop() {
	w.sender <- TaskStop{}
}

const defaultWorkerCapacity = 128

// NewWorker creates a worker that handles tasks in arrival order.
func NewWorker(name string, wg *sync.WaitGroup) *Worker {
	ch := make(chan Task, defaultWorkerCapacity)
	return &Worker{
		sender:   (chan<- Task)(ch),
		receiver: (<-chan Task)(ch),
		name:     name,
		wg:       wg,
	}
}

// NewOrderedWorker creates a worker that holds SeqTasks back until every
// smaller sequence number, starting at first, has been handled. With a
// positive gapTimeout a missing sequence number is skipped once later tasks
// have waited that long for it.
func NewOrderedWorker(name string, wg *sync.WaitGroup, first uint64, gapTimeout time.Duration) *Worker {
	w := NewWorker(name, wg)
	w.ordered = true
	w.next = first
	w.queued = make(map[uint64]struct{})
	w.gapTimeout = gapTimeout
	return w
}

type seqHeap []SeqTask

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i].Seq() < h[j].Seq() }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x interface{}) { *h = append(*h, x.(SeqTask)) }
func (h *seqHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
