package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. GMM_MODEL_TAU.
const EnvPrefix = "GMM"

// #region types
// Config is the full runtime configuration of the gmm command.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Model   ModelConfig   `mapstructure:"model"`
	Tune    TuneConfig    `mapstructure:"tune"`
	Eval    EvalConfig    `mapstructure:"eval"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	Name string `mapstructure:"name" validate:"required"`
}

type ModelConfig struct {
	Tau float64 `mapstructure:"tau" validate:"gte=0"`
}

// TuneConfig controls cross-validated tau selection.
type TuneConfig struct {
	Grid      []float64 `mapstructure:"grid"      validate:"min=1,dive,gte=0"`
	Folds     int       `mapstructure:"folds"     validate:"gte=2"`
	Criterion string    `mapstructure:"criterion" validate:"oneof=accuracy kappa f1mean"`
	Seed      uint64    `mapstructure:"seed"`
	Workers   int       `mapstructure:"workers"   validate:"gte=0"`
}

type EvalConfig struct {
	MaxConditionNumber float64 `mapstructure:"max_condition_number" validate:"gt=0"`
	Enforce            bool    `mapstructure:"enforce"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"       validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format"      validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"    validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age"     validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace" validate:"required_if=Enabled true"`
	File      string `mapstructure:"file"` // text exposition dump after each command
}
// #endregion types

// #region defaults
// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{Path: "gmm.db", Name: "default"},
		Model: ModelConfig{Tau: 0.1},
		Tune: TuneConfig{
			Grid:      []float64{1e-4, 1e-3, 1e-2, 1e-1, 1, 10},
			Folds:     5,
			Criterion: "accuracy",
			Seed:      0,
			Workers:   runtime.GOMAXPROCS(0),
		},
		Eval: EvalConfig{MaxConditionNumber: 1e12},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Metrics: MetricsConfig{Namespace: "gmm"},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.name", d.Store.Name)
	v.SetDefault("model.tau", d.Model.Tau)
	v.SetDefault("tune.grid", d.Tune.Grid)
	v.SetDefault("tune.folds", d.Tune.Folds)
	v.SetDefault("tune.criterion", d.Tune.Criterion)
	v.SetDefault("tune.seed", d.Tune.Seed)
	v.SetDefault("tune.workers", d.Tune.Workers)
	v.SetDefault("eval.max_condition_number", d.Eval.MaxConditionNumber)
	v.SetDefault("eval.enforce", d.Eval.Enforce)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.file", d.Metrics.File)
}
// #endregion defaults

// #region load
// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"store":        "store.path",
	"name":         "store.name",
	"tau":          "model.tau",
	"grid":         "tune.grid",
	"folds":        "tune.folds",
	"criterion":    "tune.criterion",
	"seed":         "tune.seed",
	"workers":      "tune.workers",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
	"metrics":      "metrics.enabled",
	"metrics-file": "metrics.file",
	"enforce-eval": "eval.enforce",
}

// Load reads configuration with precedence flags > environment > file > defaults.
// path may be empty; flags may be nil. Only flags present in FlagKeys are bound.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config validation failed: %s fails %q (%d problems): %w", fe.Namespace(), fe.Tag(), len(verrs), err)
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
// #endregion load
