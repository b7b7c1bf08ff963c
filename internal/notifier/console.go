package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Console prints alarms to a terminal.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Notify(_ context.Context, name, triggerTime string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, Text(name, triggerTime))
	return err
}
