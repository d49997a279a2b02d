// Package timeline defines the world-time primitives shared by branches and
// versions. World time is the in-fiction clock of a campaign, counted in ticks
// from the campaign epoch; it is unrelated to the wall-clock system time the
// store records alongside each row.
package timeline

// Time is an instant on a campaign's world clock.
type Time int64

const (
	// Epoch is the origin of every campaign's world clock.
	Epoch Time = 0

	// Max is the latest representable world-time instant.
	Max Time = 1<<63 - 1
)

// Ptr returns a pointer to t, for optional interval bounds.
func Ptr(t Time) *Time {
	return &t
}

// Valid reports whether t is on or after the campaign epoch.
func (t Time) Valid() bool {
	return t >= Epoch
}
