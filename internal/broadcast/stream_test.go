package broadcast

import "testing"

func TestSubscribeReceivesLastValueImmediately(t *testing.T) {
	s := New[int]()
	s.Publish(42)

	ch, unsub := s.Subscribe(1)
	defer unsub()

	select {
	case v := <-ch:
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	default:
		t.Fatal("expected last value to be delivered immediately on subscribe")
	}
}

func TestPublishFanOut(t *testing.T) {
	s := New[string]()
	ch1, unsub1 := s.Subscribe(2)
	ch2, unsub2 := s.Subscribe(2)
	defer unsub1()
	defer unsub2()

	s.Publish("hello")

	if v := <-ch1; v != "hello" {
		t.Fatalf("ch1 got %q", v)
	}
	if v := <-ch2; v != "hello" {
		t.Fatalf("ch2 got %q", v)
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	s := New[int]()
	ch, unsub := s.Subscribe(1)
	defer unsub()

	s.Publish(1)
	s.Publish(2) // buffer holds 1 slot; this should replace the cached 1

	v, ok := <-ch, true
	_ = ok
	if v != 2 {
		t.Fatalf("got %d, want most recent value 2", v)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := New[int]()
	ch, unsub := s.Subscribe(1)
	unsub()

	_, open := <-ch
	if open {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestLastReportsNoValueInitially(t *testing.T) {
	s := New[int]()
	if _, ok := s.Last(); ok {
		t.Fatal("expected no last value before any Publish")
	}
	s.Publish(7)
	v, ok := s.Last()
	if !ok || v != 7 {
		t.Fatalf("Last() = %d, %v; want 7, true", v, ok)
	}
}
