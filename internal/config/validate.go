package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates a configuration value is out of range or unknown.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks that mode, resolver and numeric bounds are usable.
func (c Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeServing, ModePreview:
	default:
		errs = append(errs, fmt.Errorf("mode %q: want %q or %q", c.Mode, ModeServing, ModePreview))
	}

	switch c.Tenants.Resolver {
	case ResolverFolder, ResolverStatic, ResolverSQLite:
	default:
		errs = append(errs, fmt.Errorf("tenants.resolver %q: want folder, static or sqlite", c.Tenants.Resolver))
	}

	if c.SitesRoot == "" {
		errs = append(errs, errors.New("sites_root must not be empty"))
	}
	if c.MaxSites < 0 {
		errs = append(errs, fmt.Errorf("max_sites %d must be >= 0", c.MaxSites))
	}

	lc := c.Lifecycle
	if lc.InitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lifecycle.init_timeout %s must be > 0", lc.InitTimeout))
	}
	if lc.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lifecycle.shutdown_timeout %s must be > 0", lc.ShutdownTimeout))
	}
	if lc.MaxAccessors < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.max_accessors %d must be >= 1", lc.MaxAccessors))
	}
	if lc.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.queue_size %d must be >= 1", lc.QueueSize))
	}
	if lc.Workers < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.workers %d must be >= 1", lc.Workers))
	}
	if lc.WorkQueue < 0 {
		errs = append(errs, fmt.Errorf("lifecycle.work_queue %d must be >= 0", lc.WorkQueue))
	}
	if lc.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.retry.max_attempts %d must be >= 1", lc.Retry.MaxAttempts))
	}
	if lc.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.retry.multiplier %v must be >= 1", lc.Retry.Multiplier))
	}
	if lc.Retry.Base < 0 {
		errs = append(errs, fmt.Errorf("lifecycle.retry.base %s must be >= 0", lc.Retry.Base))
	}

	if c.Preview() {
		if c.Watch.Interval <= 0 {
			errs = append(errs, fmt.Errorf("watch.interval %s must be > 0", c.Watch.Interval))
		}
		if c.Watch.Threshold < 1 {
			errs = append(errs, fmt.Errorf("watch.threshold %d must be >= 1", c.Watch.Threshold))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
