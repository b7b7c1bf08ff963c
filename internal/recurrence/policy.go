// Package recurrence computes the next trigger instant of a repeating alarm.
//
// Everything here is pure calendar arithmetic: no clock reads, no I/O.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
)

// Policy is the rule governing whether and how an alarm repeats.
type Policy int

const (
	Once Policy = iota
	Daily
	Weekly
	Monthly
	Yearly
)

var ErrUnknownPolicy = errors.New("recurrence: unknown policy")

var labels = [...]string{
	Once:    "Once",
	Daily:   "Daily",
	Weekly:  "Weekly",
	Monthly: "Monthly",
	Yearly:  "Yearly",
}

// legacy labels written by older versions of the alarm journal.
var aliases = map[string]Policy{
	"everyday":    Daily,
	"every day":   Daily,
	"every week":  Weekly,
	"every month": Monthly,
	"every year":  Yearly,
}

// Policies lists every policy in declaration order.
func Policies() []Policy { return []Policy{Once, Daily, Weekly, Monthly, Yearly} }

func (p Policy) Valid() bool { return p >= Once && p <= Yearly }

func (p Policy) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return labels[p]
}

// Repeats reports whether an alarm with this policy survives firing.
func (p Policy) Repeats() bool { return p != Once }

// Parse maps a label to a Policy. Matching is case-insensitive.
func Parse(s string) (Policy, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, l := range labels {
		if strings.ToLower(l) == key {
			return Policy(i), nil
		}
	}
	if p, ok := aliases[key]; ok {
		return p, nil
	}
	return Once, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPolicy, int(p))
	}
	return []byte(labels[p]), nil
}

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
