package sqlstore

import (
	"fmt"
	"time"
)

// Dialect captures what differs between the supported databases
type Dialect struct {
	Name string
	// Schema is executed statement by statement; each must be idempotent.
	Schema []string
	// TimeArg encodes a timestamp for a query argument.
	TimeArg func(time.Time) any
	// MapError translates driver errors into domain sentinels. It must
	// return err unchanged when it does not recognise it.
	MapError func(error) error
}

// SortableTime is a fixed-width UTC layout whose lexical order is chronological.
const SortableTime = "2006-01-02T15:04:05.000000000Z"

// timestamp scans both native time values and the text form written by SortableTime.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range []string{SortableTime, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
