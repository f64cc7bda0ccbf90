package announce

// Period bounds in seconds.
const (
	MinPeriod uint32 = 10
	MaxPeriod uint32 = 365 * 24 * 60 * 60
)

// fastAnnouncements is how many announcements use the shortened interval
// before the steady period applies.
const fastAnnouncements = 5

// NextInterval returns the seconds to wait after the sent-th announcement.
// The result is at least 1.
func NextInterval(sent, period uint32) uint32 {
	var interval uint32
	switch {
	case sent == 0:
		interval = period / 10
	case sent < fastAnnouncements:
		interval = period / 5
	default:
		interval = period
	}
	if interval == 0 {
		return 1
	}
	return interval
}

// Eligible reports whether period enables scheduling.
func Eligible(period uint32) bool {
	return period >= MinPeriod && period <= MaxPeriod
}
