package sessions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockerSerializesSameConversation(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()
	if err := l.Lock(ctx, "c1"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := l.Lock(ctx, "c1"); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock("c1")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired")
	}
	l.Unlock("c1")
}

func TestLockerIndependentConversations(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()
	if err := l.Lock(ctx, "c1"); err != nil {
		t.Fatalf("Lock(c1) error = %v", err)
	}
	defer l.Unlock("c1")

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := l.Lock(ctx2, "c2"); err != nil {
		t.Fatalf("Lock(c2) error = %v", err)
	}
	l.Unlock("c2")
}

func TestLockerContextCancel(t *testing.T) {
	l := NewLocker()
	if err := l.Lock(context.Background(), "c1"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer l.Unlock("c1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Lock(ctx, "c1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock() error = %v, want deadline exceeded", err)
	}
}
