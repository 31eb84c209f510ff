package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/carverauto/clusterwatch/pkg/capacity"
	"github.com/carverauto/clusterwatch/pkg/logger"
	"github.com/carverauto/clusterwatch/pkg/models"
)

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default poll cadences.
const (
	DefaultSeriesInterval = 30 * time.Second
	DefaultAlarmInterval  = 30 * time.Second
	DefaultJobInterval    = 5 * time.Second
	DefaultJobLogInterval = 3 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultAlarmLimit     = 50
	DefaultListenAddr     = ":8090"
)

// PollConfig controls poll cadence and the shared fetch budget.
type PollConfig struct {
	SeriesInterval Duration `json:"series_interval"`
	AlarmInterval  Duration `json:"alarm_interval"`
	JobInterval    Duration `json:"job_interval"`
	JobLogInterval Duration `json:"job_log_interval"`
	MaxFetchRate   float64  `json:"max_fetch_rate"` // fetches per second across all pollers, 0 = unlimited
	FetchBurst     int      `json:"fetch_burst"`
}

// AlarmConfig controls the alarm feed.
type AlarmConfig struct {
	Limit       int             `json:"limit"`
	MinSeverity models.Severity `json:"min_severity"`
}

// DatasetConfig maps a dataset name onto a telemetry endpoint.
type DatasetConfig struct {
	System   string `json:"system"`
	Category string `json:"category"`
	// EntityTag names the sample tag whose value qualifies field names,
	// e.g. "node" produces "db1_cpu_usage". Empty keeps bare field names.
	EntityTag string `json:"entity_tag,omitempty"`
}

// WebhookConfig represents a webhook notification configuration.
type WebhookConfig struct {
	Enabled  bool     `json:"enabled"`
	URL      string   `json:"url"`
	Cooldown Duration `json:"cooldown"`
	Template string   `json:"template"`
	Preset   string   `json:"preset,omitempty"`  // e.g. "discord"
	Headers  []Header `json:"headers,omitempty"` // Optional custom headers
}

// Header represents a custom HTTP header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Config represents the configuration for the clusterwatch service.
type Config struct {
	ListenAddr     string                    `json:"listen_addr"`
	GrpcAddr       string                    `json:"grpc_addr,omitempty"`
	TelemetryURL   string                    `json:"telemetry_url"`
	RequestTimeout Duration                  `json:"request_timeout"`
	Poll           PollConfig                `json:"poll"`
	Alarms         AlarmConfig               `json:"alarms"`
	Capacity       capacity.Thresholds       `json:"capacity"`
	WorkingSet     capacity.WorkingSetConfig `json:"working_set"`
	Datasets       map[string]DatasetConfig  `json:"datasets"`
	Webhooks       []WebhookConfig           `json:"webhooks,omitempty"`
	Logging        logger.Config             `json:"logging"`
}

// Validate implements Validator. Missing optional values are defaulted.
func (c *Config) Validate() error {
	if c.TelemetryURL == "" {
		return fmt.Errorf("%w: telemetry_url", errMissingField)
	}

	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}

	if err := c.Poll.validate(); err != nil {
		return err
	}

	if err := c.Alarms.validate(); err != nil {
		return err
	}

	if c.Capacity.CriticalDays <= 0 {
		c.Capacity.CriticalDays = capacity.DefaultCriticalDays
	}

	if c.Capacity.WarningDays <= 0 {
		c.Capacity.WarningDays = capacity.DefaultWarningDays
	}

	if c.Capacity.WarningDays < c.Capacity.CriticalDays {
		return fmt.Errorf("%w: capacity.warning_days < capacity.critical_days", errInvalidValue)
	}

	c.WorkingSet = c.WorkingSet.WithDefaults()

	if c.WorkingSet.TightRatio < c.WorkingSet.ExcellentRatio {
		return fmt.Errorf("%w: working_set.tight_ratio < working_set.excellent_ratio", errInvalidValue)
	}

	for name, ds := range c.Datasets {
		if ds.System == "" || ds.Category == "" {
			return fmt.Errorf("%w: dataset %q needs system and category", errMissingField, name)
		}
	}

	for i := range c.Webhooks {
		if c.Webhooks[i].Enabled && c.Webhooks[i].URL == "" {
			return fmt.Errorf("%w: webhooks[%d].url", errMissingField, i)
		}
	}

	return nil
}

func (p *PollConfig) validate() error {
	defaults := []struct {
		d   *Duration
		def time.Duration
	}{
		{&p.SeriesInterval, DefaultSeriesInterval},
		{&p.AlarmInterval, DefaultAlarmInterval},
		{&p.JobInterval, DefaultJobInterval},
		{&p.JobLogInterval, DefaultJobLogInterval},
	}

	for _, d := range defaults {
		if time.Duration(*d.d) == 0 {
			*d.d = Duration(d.def)
		}

		if *d.d < 0 {
			return fmt.Errorf("%w: negative poll interval", errInvalidValue)
		}
	}

	if p.MaxFetchRate < 0 {
		return fmt.Errorf("%w: poll.max_fetch_rate", errInvalidValue)
	}

	if p.MaxFetchRate > 0 && p.FetchBurst <= 0 {
		p.FetchBurst = 1
	}

	return nil
}

func (a *AlarmConfig) validate() error {
	if a.Limit <= 0 {
		a.Limit = DefaultAlarmLimit
	}

	if a.MinSeverity == "" {
		a.MinSeverity = models.SeverityCritical
	}

	if !a.MinSeverity.Valid() {
		return fmt.Errorf("%w: alarms.min_severity %q", errInvalidValue, a.MinSeverity)
	}

	return nil
}
