// Copyright 2024 the go-heartbeat authors.
// This software is released under an MIT/X11 open source license.

package heartbeat

import (
	"container/list"
	"fmt"
	"time"
)

// PromotionFrame represents a forked but still-sequential child task:
// a promotion point.  A frame is either sitting in exactly one
// tracker or detached; its promoted flag flips from false to true at
// most once, when the frame leaves the tracker through PromoteOldest.
type PromotionFrame struct {
	task      *Task
	scope     string
	createdAt time.Time
	promoted  bool

	// element is the frame's position in its tracker's list, or nil
	// while the frame is detached.
	element *list.Element
}

// NewPromotionFrame creates a detached frame for a task.  The
// creation time is stamped when the frame is pushed onto a tracker.
func NewPromotionFrame(task *Task) *PromotionFrame {
	if task == nil {
		panic(ErrNilTask)
	}
	return &PromotionFrame{task: task, scope: task.Scope()}
}

// Task returns the task this frame defers.
func (f *PromotionFrame) Task() *Task {
	return f.task
}

// Scope returns the scope name of the underlying task.
func (f *PromotionFrame) Scope() string {
	return f.scope
}

// CreatedAt returns when the frame entered its tracker.
func (f *PromotionFrame) CreatedAt() time.Time {
	return f.createdAt
}

// Promoted reports whether the frame has been promoted.
func (f *PromotionFrame) Promoted() bool {
	return f.promoted
}

// PromotionTracker holds a worker's promotable frames in age order.
// The front of the list is the newest frame (the most recent fork);
// the back is the oldest, the next frame to promote.  All operations
// are O(1).
//
// A tracker belongs to exactly one worker and needs no locking; it
// must not be touched from any other goroutine.
type PromotionTracker struct {
	clock  clockNow
	frames *list.List

	pushes     uint64
	pops       uint64
	promotions uint64
}

// clockNow is the part of a time source the tracker needs.
type clockNow interface {
	Now() time.Time
}

// NewPromotionTracker creates an empty tracker using the given time
// source for frame age stamps.
func NewPromotionTracker(clk clockNow) *PromotionTracker {
	return &PromotionTracker{clock: clk, frames: list.New()}
}

// Size returns the number of frames currently in the tracker.
func (pt *PromotionTracker) Size() int {
	return pt.frames.Len()
}

// Push inserts a detached frame at the head of the tracker as the
// newest frame.  Pushing nil or a frame that is already in a tracker
// is a contract violation.
func (pt *PromotionTracker) Push(frame *PromotionFrame) {
	if frame == nil {
		panic(ErrNilFrame)
	}
	if frame.element != nil {
		panic(ErrFrameAttached)
	}
	frame.createdAt = pt.clock.Now()
	frame.element = pt.frames.PushFront(frame)
	pt.pushes++
}

// PopNewest removes and returns the newest frame, or nil if the
// tracker is empty.  In a well-nested program this is the frame of
// the most recently forked, not yet joined child.
func (pt *PromotionTracker) PopNewest() *PromotionFrame {
	front := pt.frames.Front()
	if front == nil {
		return nil
	}
	frame := front.Value.(*PromotionFrame)
	pt.frames.Remove(front)
	frame.element = nil
	pt.pops++
	return frame
}

// PromoteOldest removes and returns the oldest frame, marking it
// promoted, or returns nil if the tracker is empty.  The oldest
// outstanding fork has the most parallel slack, so it is always the
// one elevated on a heartbeat.  Promoting a frame twice is a contract
// violation.
func (pt *PromotionTracker) PromoteOldest() *PromotionFrame {
	back := pt.frames.Back()
	if back == nil {
		return nil
	}
	frame := back.Value.(*PromotionFrame)
	if frame.promoted {
		panic(ErrAlreadyPromoted)
	}
	pt.frames.Remove(back)
	frame.element = nil
	frame.promoted = true
	pt.promotions++
	return frame
}

// Remove detaches a frame from anywhere in the tracker, reporting
// whether the frame was found.
func (pt *PromotionTracker) Remove(frame *PromotionFrame) bool {
	if frame == nil || frame.element == nil {
		return false
	}
	pt.frames.Remove(frame.element)
	frame.element = nil
	pt.pops++
	return true
}

// Clear detaches every frame and zeroes the counters.
func (pt *PromotionTracker) Clear() {
	for e := pt.frames.Front(); e != nil; e = e.Next() {
		e.Value.(*PromotionFrame).element = nil
	}
	pt.frames.Init()
	pt.pushes = 0
	pt.pops = 0
	pt.promotions = 0
}

// OldestAge returns how long the oldest frame has been waiting, or
// zero if the tracker is empty.
func (pt *PromotionTracker) OldestAge() time.Duration {
	back := pt.frames.Back()
	if back == nil {
		return 0
	}
	return pt.clock.Now().Sub(back.Value.(*PromotionFrame).createdAt)
}

// Stats returns a snapshot of the tracker counters.
func (pt *PromotionTracker) Stats() TrackerStats {
	return TrackerStats{
		Size:       pt.frames.Len(),
		Pushes:     pt.pushes,
		Pops:       pt.pops,
		Promotions: pt.promotions,
		OldestAge:  pt.OldestAge(),
	}
}

// Validate walks the tracker and checks its structural invariants:
// the walk from oldest to newest visits exactly Size frames, every
// attached frame points back at its own list element and is not
// marked promoted, and the counters satisfy
// pushes = pops + promotions + size.  It returns nil if all hold.
// This exists for tests and debugging; it is O(n).
func (pt *PromotionTracker) Validate() error {
	size := pt.frames.Len()
	count := 0
	for e := pt.frames.Back(); e != nil; e = e.Prev() {
		frame, ok := e.Value.(*PromotionFrame)
		if !ok || frame == nil {
			return fmt.Errorf("tracker holds a non-frame element at position %d", count)
		}
		if frame.element != e {
			return fmt.Errorf("frame %q does not point back at its element", frame.scope)
		}
		if frame.promoted {
			return fmt.Errorf("attached frame %q is marked promoted", frame.scope)
		}
		count++
	}
	if count != size {
		return fmt.Errorf("walked %d frames but size is %d", count, size)
	}
	if pt.pushes != pt.pops+pt.promotions+uint64(size) {
		return fmt.Errorf("counter mismatch: %d pushed, %d popped, %d promoted, %d current",
			pt.pushes, pt.pops, pt.promotions, size)
	}
	return nil
}
