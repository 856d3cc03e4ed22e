package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph/history"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/observability"
)

// Settings configures the engine for a host process or the CLI.
type Settings struct {
	// MaxConcurrency bounds the nodes running at once within a layer.
	// Zero means no limit.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"gte=0,lte=4096"`

	// NodeTimeout bounds each node execution. Zero means no timeout.
	NodeTimeout Duration `yaml:"node_timeout" json:"node_timeout" validate:"gte=0"`

	// FailFast stops starting new layers after the first node failure.
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`

	// Tracing and Metrics enable the OpenTelemetry instrumentation, using
	// the globally registered providers.
	Tracing bool `yaml:"tracing" json:"tracing"`
	Metrics bool `yaml:"metrics" json:"metrics"`

	History HistorySettings `yaml:"history" json:"history"`
	Log     LogSettings     `yaml:"log" json:"log"`
}

// HistorySettings selects where execution reports are persisted.
type HistorySettings struct {
	// Driver is "memory", "sqlite" or "none" (the default).
	Driver string `yaml:"driver" json:"driver" validate:"omitempty,oneof=none memory sqlite"`
	// Path is the SQLite database file. Required for the sqlite driver.
	Path string `yaml:"path" json:"path" validate:"required_if=Driver sqlite"`
}

// LogSettings configures the slog logger built by Settings.Logger.
type LogSettings struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		History: HistorySettings{Driver: "none"},
		Log:     LogSettings{Level: "info", Format: "text"},
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their yaml names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks every field and reports all problems at once.
func (s Settings) Validate() error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate settings: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: %s", fieldPath(fe), describe(fe)))
	}
	return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
}

// fieldPath drops the root struct name: "Settings.history.path" -> "history.path".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// Logger builds the configured slog logger writing to w.
func (s Settings) Logger(w io.Writer) (*slog.Logger, error) {
	return observability.NewLogger(w, s.Log.Level, s.Log.Format)
}

// OpenHistory opens the configured history store.
// Returns nil, nil when history is disabled.
func (s Settings) OpenHistory() (history.Store, error) {
	switch s.History.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return history.NewMemoryStore(), nil
	case "sqlite":
		store, err := history.NewSQLiteStore(s.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history %s: %w", s.History.Path, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", s.History.Driver)
	}
}

// Duration is a time.Duration that decodes from "1.5s"-style strings in
// YAML and JSON, or from integer nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*d = 0
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case float64:
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("cannot use %T as a duration", raw)
	}
	return nil
}
