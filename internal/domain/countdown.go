package domain

import "time"

// Countdown is the human-readable remaining time of an active contract.
type Countdown struct {
	Expired bool `json:"expired"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
}

// Remaining computes the time left until createdAt+durationSeconds as seen at
// now, floored to whole seconds.
func Remaining(createdAt time.Time, durationSeconds int, now time.Time) Countdown {
	left := createdAt.Add(time.Duration(durationSeconds) * time.Second).Sub(now)
	if left <= 0 {
		return Countdown{Expired: true}
	}
	total := int(left / time.Second)
	return Countdown{
		Hours:   total / 3600,
		Minutes: (total / 60) % 60,
		Seconds: total % 60,
	}
}
