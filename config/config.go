// Package config implements attribute evaluation and defaulting for the
// SLAM service.
package config

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Defaults applied by GetOptionalParameters when a field is unset.
const (
	DefaultKeyscanThreshold = 0.4
	DefaultFactorThreshold  = 0.9
	DefaultMatchThreshold   = 0.1
	DefaultDistThreshold    = 1.0
	DefaultICPIterations    = 20
)

// newError returns an error specific to a failure in the SLAM config.
func newError(configError string) error {
	return errors.Errorf("SLAM service configuration error: %s", configError)
}

// Config describes how to configure the SLAM service. Zero-valued fields
// are filled in by GetOptionalParameters.
type Config struct {
	// KeyscanThreshold is the composite pose distance below which an
	// observation only tracks and above which it is admitted as a key scan.
	KeyscanThreshold float64 `json:"keyscan_threshold"`
	// FactorThreshold is the translational radius within which existing key
	// scans are matched against an admitted scan to produce factors. Kept
	// at or above twice KeyscanThreshold.
	FactorThreshold float64 `json:"factor_threshold"`
	// MatchThreshold is the pair distance counted toward the ICP match ratio.
	MatchThreshold float64 `json:"match_threshold"`
	// DistThreshold is the pair distance accepted as an ICP correspondence.
	DistThreshold float64 `json:"dist_threshold"`
	// ICPIterations overrides the fixed matcher iteration count.
	ICPIterations int `json:"icp_iterations"`
	// StrictTrimming selects the corrected worst-pair rejection in the
	// matcher instead of the historical running top-k.
	StrictTrimming bool `json:"strict_trimming"`
}

// Validate checks that every set field is within its operating range.
func (config *Config) Validate(path string) error {
	var err error
	if config.KeyscanThreshold < 0 {
		err = multierr.Append(err, newError("keyscan_threshold must not be negative"))
	}
	if config.FactorThreshold < 0 {
		err = multierr.Append(err, newError("factor_threshold must not be negative"))
	}
	if config.MatchThreshold < 0 {
		err = multierr.Append(err, newError("match_threshold must not be negative"))
	}
	if config.DistThreshold < 0 {
		err = multierr.Append(err, newError("dist_threshold must not be negative"))
	}
	if config.ICPIterations < 0 {
		err = multierr.Append(err, newError("icp_iterations must not be negative"))
	}
	if err != nil {
		return errors.Wrapf(err, "error validating %q", path)
	}
	return nil
}

// OptionalConfigParams is the fully defaulted parameter set used by the
// service.
type OptionalConfigParams struct {
	KeyscanThreshold float64
	FactorThreshold  float64
	MatchThreshold   float64
	DistThreshold    float64
	ICPIterations    int
	StrictTrimming   bool
}

// GetOptionalParameters sets any unset optional config parameters to their
// defaults and enforces the factor/keyscan coupling once at intake.
func GetOptionalParameters(config *Config, logger golog.Logger) OptionalConfigParams {
	params := OptionalConfigParams{
		KeyscanThreshold: config.KeyscanThreshold,
		FactorThreshold:  config.FactorThreshold,
		MatchThreshold:   config.MatchThreshold,
		DistThreshold:    config.DistThreshold,
		ICPIterations:    config.ICPIterations,
		StrictTrimming:   config.StrictTrimming,
	}

	if params.KeyscanThreshold == 0 {
		params.KeyscanThreshold = DefaultKeyscanThreshold
		logger.Debugf("no keyscan_threshold given, setting to default value of %v", DefaultKeyscanThreshold)
	}
	if params.FactorThreshold == 0 {
		params.FactorThreshold = DefaultFactorThreshold
		logger.Debugf("no factor_threshold given, setting to default value of %v", DefaultFactorThreshold)
	}
	if params.MatchThreshold == 0 {
		params.MatchThreshold = DefaultMatchThreshold
		logger.Debugf("no match_threshold given, setting to default value of %v", DefaultMatchThreshold)
	}
	if params.DistThreshold == 0 {
		params.DistThreshold = DefaultDistThreshold
		logger.Debugf("no dist_threshold given, setting to default value of %v", DefaultDistThreshold)
	}
	if params.ICPIterations == 0 {
		params.ICPIterations = DefaultICPIterations
		logger.Debugf("no icp_iterations given, setting to default value of %v", DefaultICPIterations)
	}

	if params.KeyscanThreshold*2 > params.FactorThreshold {
		params.FactorThreshold = params.KeyscanThreshold * 2
		logger.Debugf("factor_threshold raised to %v to stay at twice keyscan_threshold", params.FactorThreshold)
	}

	return params
}
