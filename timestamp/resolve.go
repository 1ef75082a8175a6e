package timestamp

import "time"

// wallClock is a time broken into calendar components so that each component
// can be set or shifted independently and renormalized with time.Date.
type wallClock struct {
	year, month, day, hour, min, sec, nsec int
	loc                                    *time.Location
}

func split(t time.Time) wallClock {
	return wallClock{
		year:  t.Year(),
		month: int(t.Month()),
		day:   t.Day(),
		hour:  t.Hour(),
		min:   t.Minute(),
		sec:   t.Second(),
		nsec:  t.Nanosecond(),
		loc:   t.Location(),
	}
}

func (c wallClock) time() time.Time {
	return time.Date(c.year, time.Month(c.month), c.day, c.hour, c.min, c.sec, c.nsec, c.loc)
}

func (c *wallClock) component(f Field) *int {
	switch f {
	case Years:
		return &c.year
	case Months:
		return &c.month
	case Days:
		return &c.day
	case Hours:
		return &c.hour
	case Minutes:
		return &c.min
	default:
		return &c.sec
	}
}

// clamped renormalizes the year and month first and then caps the day at
// the length of the resulting month.
func (c wallClock) clamped() time.Time {
	first := time.Date(c.year, time.Month(c.month), 1, 0, 0, 0, 0, c.loc)
	last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, c.loc).Day()
	return time.Date(first.Year(), first.Month(), min(c.day, last), c.hour, c.min, c.sec, c.nsec, c.loc)
}

// set assigns v to f and renormalizes. Month values are zero-based: 0 is
// January and 12 rolls over into January of the following year. Setting the
// year or month keeps the day inside the target month, so March 31 with the
// month set to February lands on the last day of February. Other fields
// overflow into the next larger one.
func set(t time.Time, f Field, v int) time.Time {
	c := split(t)
	if f == Months {
		v++
	}
	*c.component(f) = v
	if f == Years || f == Months {
		return c.clamped()
	}
	return c.time()
}

// shift adds v to f and renormalizes. Year and month offsets clamp the day
// to the end of the target month: January 31 plus one month is February 28
// (or 29). Day and time offsets are plain wall-clock arithmetic.
func shift(t time.Time, f Field, v int) time.Time {
	c := split(t)
	*c.component(f) += v
	if f == Years || f == Months {
		return c.clamped()
	}
	return c.time()
}

// Resolve applies the fields of a match to now according to tt.
//
// The highest captured field and every field below it are applied in order
// from highest to lowest; absent lower fields count as 0. Fields above the
// highest captured one keep the value they have in now.
func Resolve(tt TemporalType, fields Fields, now time.Time) time.Time {
	if tt == Now {
		return now
	}

	highest, ok := fields.Highest()
	if !ok {
		return now
	}

	t := now
	for f := highest; f < numFields; f++ {
		v := fields.Int(f)
		switch tt {
		case Absolute:
			t = set(t, f, v)
		case Future:
			t = shift(t, f, v)
		case Past:
			t = shift(t, f, -v)
		}
	}
	return t
}
