package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is the headline every deliverer leads with.
const Message = "Alarm! Alarm! Alarm!"

var (
	ErrNoDeliverers = errors.New("notifier: no deliverers configured")
	ErrPanic        = errors.New("notifier: deliverer panicked")
)

// Notifier delivers one alarm. triggerTime is already formatted for humans.
type Notifier interface {
	Notify(ctx context.Context, name, triggerTime string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, name, triggerTime string) error

func (f Func) Notify(ctx context.Context, name, triggerTime string) error {
	return f(ctx, name, triggerTime)
}

// Text renders the human message for an alarm.
func Text(name, triggerTime string) string {
	return fmt.Sprintf("%s %s (%s)", Message, name, triggerTime)
}

// Call runs n on its own goroutine and waits at most timeout for it. A
// deliverer that ignores ctx is abandoned, not waited for.
func Call(ctx context.Context, n Notifier, timeout time.Duration, name, triggerTime string) error {
	if n == nil {
		return ErrNoDeliverers
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		done <- n.Notify(ctx, name, triggerTime)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notifier: %w", ctx.Err())
	}
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, name, triggerTime string) error {
	if len(m) == 0 {
		return ErrNoDeliverers
	}
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, name, triggerTime); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
