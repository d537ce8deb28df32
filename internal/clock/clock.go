// Package clock abstracts time so billing jobs can be driven by a fake
// clock in tests.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time. All billing components read time through
// an injected Clock, never time.Now directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock, normalized to UTC.
func NewSystemClock() Clock { return systemClock{} }

// Module wires the system clock for the application.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
