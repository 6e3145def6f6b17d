package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CaseDir) == "" {
		return errors.New("paths.case_dir must be set (or export VESSELFLOW_CASE_DIR)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.SettleDelayMs < 0 {
		return errors.New("workflow.settle_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"timeouts.segmentation": c.Timeouts.Segmentation,
		"timeouts.centerline":   c.Timeouts.Centerline,
		"timeouts.cpr":          c.Timeouts.CPR,
	})
}

func (c *Config) validateThresholds() error {
	if c.Thresholds.DefaultHigh <= c.Thresholds.DefaultLow {
		return errors.New("thresholds.default_high must be greater than thresholds.default_low")
	}
	return ensurePositiveMap(map[string]int{
		"thresholds.min_model_points": c.Thresholds.MinModelPoints,
		"thresholds.min_curve_points": c.Thresholds.MinCurvePoints,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
