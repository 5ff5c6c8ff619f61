package orchestrator

import "testing"

func TestWorkQueueFIFOOrder(t *testing.T) {
	q := newWorkQueue()
	q.push("a")
	q.push("b")
	q.push("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("got %q ok=%v, want %q", got, ok, want)
		}
	}
}

func TestWorkQueuePopBlocksThenUnblocksOnPush(t *testing.T) {
	q := newWorkQueue()
	done := make(chan string, 1)
	go func() {
		v, _ := q.pop()
		done <- v
	}()
	q.push("later")
	if got := <-done; got != "later" {
		t.Fatalf("got %q", got)
	}
}

func TestWorkQueueCloseUnblocksPop(t *testing.T) {
	q := newWorkQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()
	q.close()
	if ok := <-done; ok {
		t.Fatalf("expected pop to report ok=false after close")
	}
}
