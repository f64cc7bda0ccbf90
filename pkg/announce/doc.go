// Package announce schedules periodic self-announcements per radio
// interface.
//
// An Announcer is caller-owned storage describing one interface that takes
// part in announcements. The Registry links announcers in insertion order
// and answers which one is due next. Times are whole seconds on the
// caller's clock.
//
// # Schedule
//
// A node that just joined the network announces quickly and then settles to
// its configured period:
//
//	sent == 0       period / 10
//	1 <= sent < 5   period / 5
//	otherwise       period
//
// With a period of 10 s the intervals are 1, 2, 2, 2, 2, 10, 10, ...
//
// Periods outside [MinPeriod, MaxPeriod], including 0, disable scheduling.
// Such an announcer is never due but its interface still answers queries.
package announce
