package xls

import (
	"fmt"
	"math"
	"time"
)

// Date systems selected by the DATEMODE record.
const (
	Datemode1900 = 0
	Datemode1904 = 1
)

// OLE Automation dates are valid strictly between these day counts.
const (
	oaDateMin = -657435.0
	oaDateMax = 2958466.0
)

const (
	millisPerDay       = 86400000
	days1904FromOAZero = 1462
)

var epochOA = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// XLDateError is the base type for all datetime-related errors.
type XLDateError struct {
	Message string
}

func (e *XLDateError) Error() string {
	return e.Message
}

// XLDateOutOfRange indicates a day count outside the OLE Automation range.
type XLDateOutOfRange struct {
	XLDateError
}

// XLDateBadDatemode indicates that datemode is neither 0 nor 1.
type XLDateBadDatemode struct {
	XLDateError
}

// XldateAsDatetime converts an Excel day count into a time.Time in UTC.
//
// xldate: the day count; the fraction is the time of day.
// datemode: 0 for the 1900 system, 1 for the 1904 system.
//
// In the 1900 system values below 60 are moved one day forward, because
// Excel counts the nonexistent 1900-02-29.
func XldateAsDatetime(xldate float64, datemode int) (time.Time, error) {
	switch datemode {
	case Datemode1900:
		if xldate >= 0 && xldate < 60 {
			xldate++
		}
	case Datemode1904:
		xldate += days1904FromOAZero
	default:
		return time.Time{}, &XLDateBadDatemode{XLDateError{Message: fmt.Sprintf("invalid datemode: %d", datemode)}}
	}
	if math.IsNaN(xldate) || xldate >= oaDateMax || xldate <= oaDateMin {
		return time.Time{}, &XLDateOutOfRange{XLDateError{Message: fmt.Sprintf("xldate out of range: %v", xldate)}}
	}

	var millis int64
	if xldate >= 0 {
		millis = int64(xldate*millisPerDay + 0.5)
	} else {
		millis = int64(xldate*millisPerDay - 0.5)
	}
	// Negative day counts still carry a positive time of day.
	if millis < 0 {
		millis -= (millis % millisPerDay) * 2
	}
	days := millis / millisPerDay
	rem := millis % millisPerDay
	return epochOA.AddDate(0, 0, int(days)).Add(time.Duration(rem) * time.Millisecond), nil
}
