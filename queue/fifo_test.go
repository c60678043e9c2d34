/*************************************************************************
 * Copyright 2026 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package queue

import (
	"testing"
	"time"
)

func TestFIFOPushPopOrder(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d after draining, want 0", q.Len())
	}
}

func TestFIFOTryPop(t *testing.T) {
	q := New[int](2)
	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop on an empty queue must report ok=false")
	}
	q.Push(7)
	got, ok := q.TryPop()
	if !ok || got != 7 {
		t.Fatalf("TryPop() = (%d, %v), want (7, true)", got, ok)
	}
}

func TestFIFOPushBlocksAtCapacity(t *testing.T) {
	q := New[int](1)
	q.Push(1)

	done := make(chan struct{})
	go func() {
		q.Push(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Push should have blocked while the queue was at capacity")
	case <-time.After(30 * time.Millisecond):
	}

	q.Pop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Push never unblocked after a Pop freed capacity")
	}
}

func TestFIFOPopBlocksUntilPush(t *testing.T) {
	q := New[int](4)
	type result struct {
		v  int
		ok bool
	}
	out := make(chan result, 1)
	go func() {
		v, ok := q.Pop()
		out <- result{v, ok}
	}()

	select {
	case <-out:
		t.Fatalf("Pop should have blocked on an empty queue")
	case <-time.After(30 * time.Millisecond):
	}

	q.Push(42)
	select {
	case r := <-out:
		if !r.ok || r.v != 42 {
			t.Fatalf("Pop() = %+v, want {42 true}", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop never returned after a Push")
	}
}

func TestFIFOCloseWakesBlockedCallers(t *testing.T) {
	q := New[int](1)
	q.Push(1) // fill it so a second push blocks

	pushDone := make(chan bool, 1)
	go func() {
		pushDone <- q.Push(2)
	}()
	time.Sleep(20 * time.Millisecond)

	q.Close()

	select {
	case ok := <-pushDone:
		if ok {
			t.Fatalf("Push after Close should report ok=false")
		}
	case <-time.After(time.Second):
		t.Fatalf("Push never woke up after Close")
	}

	// The one item enqueued before Close remains poppable.
	v, ok := q.Pop()
	if !ok || v != 1 {
		t.Fatalf("Pop() after Close = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Pop() on a closed, drained queue must report ok=false")
	}
}
