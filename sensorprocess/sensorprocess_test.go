package sensorprocess

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/mapward/pgslam"
	"github.com/mapward/pgslam/sensors"
	"github.com/mapward/pgslam/spatial"
	"github.com/mapward/pgslam/testhelper"
)

type fakeLidar struct {
	calls int
	err   error
}

func (f *fakeLidar) Name() string         { return "fake_lidar" }
func (f *fakeLidar) DataFrequencyHz() int { return 100 }

func (f *fakeLidar) TimedLidarReading(ctx context.Context) (sensors.TimedLidarReadingResponse, error) {
	f.calls++
	if f.err != nil {
		return sensors.TimedLidarReadingResponse{}, f.err
	}
	return sensors.TimedLidarReadingResponse{
		Echos:       testhelper.EchosFromWorldPoints(testhelper.SquareWorldPoints(), spatial.Pose2D{}),
		ReadingTime: time.Now().UTC(),
	}, nil
}

type fakeEncoder struct {
	calls int
}

func (f *fakeEncoder) Name() string         { return "fake_encoder" }
func (f *fakeEncoder) DataFrequencyHz() int { return 100 }

func (f *fakeEncoder) TimedEncoderReading(ctx context.Context) (sensors.TimedEncoderReadingResponse, error) {
	f.calls++
	return sensors.TimedEncoderReadingResponse{
		Left:        0.1,
		Right:       0.1,
		Tread:       0.5,
		ReadingTime: time.Now().UTC(),
	}, nil
}

func testConfig(t *testing.T) (*Config, *fakeLidar, *fakeEncoder) {
	t.Helper()
	logger := golog.NewTestLogger(t)
	svc, err := pgslam.New(nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	lidar := &fakeLidar{}
	encoder := &fakeEncoder{}
	return &Config{
		Slam:    svc,
		Lidar:   lidar,
		Encoder: encoder,
		Logger:  logger,
		Mutex:   &sync.Mutex{},
	}, lidar, encoder
}

func TestAddLidarReading(t *testing.T) {
	config, lidar, _ := testConfig(t)

	err := config.addLidarReading(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lidar.calls, test.ShouldEqual, 1)
	test.That(t, len(config.Slam.Scans()), test.ShouldEqual, 1)
}

func TestAddLidarReadingPropagatesError(t *testing.T) {
	config, lidar, _ := testConfig(t)
	lidar.err = errors.New("sensor offline")

	err := config.addLidarReading(context.Background())
	test.That(t, err, test.ShouldBeError, lidar.err)
	test.That(t, len(config.Slam.Scans()), test.ShouldEqual, 0)
}

func TestAddEncoderReading(t *testing.T) {
	config, _, encoder := testConfig(t)

	err := config.addEncoderReading(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, encoder.calls, test.ShouldEqual, 1)
	test.That(t, config.Slam.Pose().X(), test.ShouldAlmostEqual, 0.1, 1e-12)
}

func TestStartLidarStopsOnContextCancel(t *testing.T) {
	config, _, _ := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		config.StartLidar(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StartLidar did not stop on context cancellation")
	}
}

func TestStartEncoderStopsOnContextCancel(t *testing.T) {
	config, _, _ := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		config.StartEncoder(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StartEncoder did not stop on context cancellation")
	}
}
