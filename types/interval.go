package types

import "time"

type Interval string

const (
	OneMinute      Interval = "1m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	Hour           Interval = "1h"
	FourHours      Interval = "4h"
	Day            Interval = "1d"
)

var IntervalToTime = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	FiveMinutes:    time.Minute * 5,
	FifteenMinutes: time.Minute * 15,
	ThirtyMinutes:  time.Minute * 30,
	Hour:           time.Hour,
	FourHours:      time.Hour * 4,
	Day:            time.Hour * 24,
}

var ConvertInterval = map[string]Interval{
	"1m":  OneMinute,
	"5m":  FiveMinutes,
	"15m": FifteenMinutes,
	"30m": ThirtyMinutes,
	"1h":  Hour,
	"4h":  FourHours,
	"1d":  Day,
}
