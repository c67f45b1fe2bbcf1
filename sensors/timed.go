package sensors

import (
	"context"
	"time"
)

// TimedLidar describes a laser source that reports the time each sweep was
// acquired. The streaming driver polls it at its advertised frequency.
type TimedLidar interface {
	Name() string
	DataFrequencyHz() int
	TimedLidarReading(ctx context.Context) (TimedLidarReadingResponse, error)
}

// TimedLidarReadingResponse is one sweep of echoes with its acquisition time.
type TimedLidarReadingResponse struct {
	Echos       []Echo
	ReadingTime time.Time
}

// TimedEncoder describes a wheel-encoder source reporting differential-drive
// arc increments.
type TimedEncoder interface {
	Name() string
	DataFrequencyHz() int
	TimedEncoderReading(ctx context.Context) (TimedEncoderReadingResponse, error)
}

// TimedEncoderReadingResponse is one pair of wheel arc increments in meters
// with the wheel separation and acquisition time.
type TimedEncoderReadingResponse struct {
	Left        float64
	Right       float64
	Tread       float64
	ReadingTime time.Time
}
