// Package sensorprocess contains the logic to poll timed sensor sources and
// feed their readings into the SLAM service.
package sensorprocess

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.opencensus.io/trace"
	goutils "go.viam.com/utils"

	"github.com/mapward/pgslam"
	"github.com/mapward/pgslam/sensors"
)

// Config holds the dependencies of one streaming session. The SLAM core is
// single-threaded; Mutex serializes the lidar and encoder loops onto it.
type Config struct {
	Slam    *pgslam.Service
	Lidar   sensors.TimedLidar
	Encoder sensors.TimedEncoder
	Logger  golog.Logger
	Mutex   *sync.Mutex
}

// StartLidar polls the lidar for sweeps and adds each to the SLAM service.
// It returns when the context is done.
func (config *Config) StartLidar(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addLidarReading(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addLidarReading gets the next sweep, feeds it to the service and sleeps
// out the remainder of the lidar's period.
func (config *Config) addLidarReading(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "pgslam::sensorprocess::addLidarReading")
	defer span.End()

	reading, err := config.Lidar.TimedLidarReading(ctx)
	if err != nil {
		return err
	}

	startTime := time.Now()
	config.Mutex.Lock()
	config.Slam.UpdatePoseWithLaserScan(sensors.NewLaserScan(reading.Echos))
	config.Mutex.Unlock()
	config.Logger.Debugf("%v \t | LIDAR | %d echos", reading.ReadingTime, len(reading.Echos))

	timeToSleep := remainderMs(startTime, config.Lidar.DataFrequencyHz())
	goutils.SelectContextOrWait(ctx, time.Duration(timeToSleep)*time.Millisecond)
	config.Logger.Debugf("lidar sleep for %vms", timeToSleep)
	return nil
}

// StartEncoder polls the encoder for wheel increments and folds each into
// the SLAM pose. It returns when the context is done.
func (config *Config) StartEncoder(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addEncoderReading(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addEncoderReading gets the next wheel increment pair, feeds it to the
// service and sleeps out the remainder of the encoder's period.
func (config *Config) addEncoderReading(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "pgslam::sensorprocess::addEncoderReading")
	defer span.End()

	reading, err := config.Encoder.TimedEncoderReading(ctx)
	if err != nil {
		return err
	}

	startTime := time.Now()
	config.Mutex.Lock()
	config.Slam.UpdatePoseWithEncoder(reading.Left, reading.Right, reading.Tread)
	config.Mutex.Unlock()
	config.Logger.Debugf("%v \t | ENCODER | left %v right %v", reading.ReadingTime, reading.Left, reading.Right)

	timeToSleep := remainderMs(startTime, config.Encoder.DataFrequencyHz())
	goutils.SelectContextOrWait(ctx, time.Duration(timeToSleep)*time.Millisecond)
	return nil
}

// remainderMs returns how much of a source's period is left after the work
// that started at startTime.
func remainderMs(startTime time.Time, dataFrequencyHz int) int {
	if dataFrequencyHz <= 0 {
		return 0
	}
	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return int(math.Max(0, float64(1000/dataFrequencyHz-timeElapsedMs)))
}
