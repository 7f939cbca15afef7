package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bourse/internal/backtest"
	"bourse/internal/store"
)

// DefaultPath is used when BOURSE_CONFIG is unset.
const DefaultPath = "config/bourse.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the bourse tools.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
	Report   ReportConfig   `yaml:"report"`
}

// Storage selects the price store backend.
type Storage struct {
	Driver      string `yaml:"driver" validate:"oneof=sqlite postgres parquet"`
	DataDir     string `yaml:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed" validate:"omitempty,oneof=iex sip delayed_sip"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// GatherConfig controls daily bar downloads.
type GatherConfig struct {
	StartDate       string `yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	BatchSize       int    `yaml:"batch_size" validate:"gt=0"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" validate:"gte=0"`
	MaxRetries      int    `yaml:"max_retries" validate:"gte=0"`
}

// BacktestConfig holds the simulation parameters.
type BacktestConfig struct {
	StartDate          string   `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate            string   `yaml:"end_date" validate:"required,datetime=2006-01-02"`
	HoldingMonths      int      `yaml:"holding_months" validate:"gt=0"`
	HoldingSweep       []int    `yaml:"holding_sweep" validate:"dive,gt=0"`
	MonthlyBudget      float64  `yaml:"monthly_budget" validate:"gt=0"`
	AcquisitionFee     float64  `yaml:"acquisition_fee" validate:"gte=0"`
	DisposalFee        float64  `yaml:"disposal_fee" validate:"gte=0"`
	RiskFreeRatePct    float64  `yaml:"risk_free_rate_pct"`
	ExtrapolatePastEnd bool     `yaml:"extrapolate_past_end"`
	Workers            int      `yaml:"workers" validate:"gte=1"`
	Index              string   `yaml:"index"`
	Symbols            []string `yaml:"symbols"`
}

// ReportConfig controls the report writers.
type ReportConfig struct {
	OutputDir    string `yaml:"output_dir" validate:"required"`
	CSVSeparator string `yaml:"csv_separator" validate:"len=1"`
	DecimalComma bool   `yaml:"decimal_comma"`
	XLSX         bool   `yaml:"xlsx"`
	Parquet      bool   `yaml:"parquet"`
}

// Defaults returns the configuration used for any field the file omits.
func Defaults() Config {
	return Config{
		Storage: Storage{
			Driver:     "sqlite",
			DataDir:    "data",
			SQLitePath: "data/bourse.db",
		},
		Alpaca: Alpaca{
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Gather: GatherConfig{
			StartDate:       "2015-01-01",
			BatchSize:       100,
			RateLimitPerMin: 200,
			MaxRetries:      5,
		},
		Backtest: BacktestConfig{
			StartDate:          "2015-01-01",
			EndDate:            "2025-11-10",
			HoldingMonths:      12,
			HoldingSweep:       []int{6, 12, 18, 24, 36, 48, 60},
			MonthlyBudget:      100,
			AcquisitionFee:     1,
			DisposalFee:        1,
			RiskFreeRatePct:    1.7,
			ExtrapolatePastEnd: true,
			Workers:            4,
			Index:              "CAC_40",
		},
		Report: ReportConfig{
			OutputDir:    "reports",
			CSVSeparator: ";",
			DecimalComma: true,
			XLSX:         true,
			Parquet:      true,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns $BOURSE_CONFIG, or DefaultPath when it is unset.
func Path() string {
	if p := os.Getenv("BOURSE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML file at path on top of Defaults, loads a .env file from
// the working directory if there is one, and applies environment overrides.
// The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setStr(&cfg.Storage.DataDir, "DATA_DIR")
	setStr(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setStr(&cfg.Storage.PostgresDSN, "POSTGRES_DSN")

	setStr(&cfg.Alpaca.APIKey, "ALPACA_API_KEY")
	setStr(&cfg.Alpaca.APISecret, "ALPACA_API_SECRET")
	setStr(&cfg.Alpaca.DataURL, "ALPACA_DATA_URL")
	// Canonical names read by the Alpaca SDK win.
	setStr(&cfg.Alpaca.APIKey, "APCA_API_KEY_ID")
	setStr(&cfg.Alpaca.APISecret, "APCA_API_SECRET_KEY")

	setStr(&cfg.Logging.Level, "LOG_LEVEL")
	setStr(&cfg.Logging.Format, "LOG_FORMAT")

	setInt(&cfg.Backtest.HoldingMonths, "BOURSE_HOLDING_MONTHS")
	setInt(&cfg.Backtest.Workers, "BOURSE_WORKERS")
	setStr(&cfg.Backtest.Index, "BOURSE_INDEX")
	setStr(&cfg.Report.OutputDir, "BOURSE_REPORT_DIR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules the tags cannot
// express. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	case "parquet":
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the parquet driver"))
		}
	}

	if len(errs) == 0 {
		if _, err := c.Backtest.Params(c.Backtest.HoldingMonths); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Params converts the backtest section into simulation parameters for the
// given holding period.
func (b BacktestConfig) Params(holdingMonths int) (backtest.Params, error) {
	start, err := time.Parse(time.DateOnly, b.StartDate)
	if err != nil {
		return backtest.Params{}, fmt.Errorf("%w: backtest.start_date: %v", backtest.ErrInvalidParams, err)
	}
	end, err := time.Parse(time.DateOnly, b.EndDate)
	if err != nil {
		return backtest.Params{}, fmt.Errorf("%w: backtest.end_date: %v", backtest.ErrInvalidParams, err)
	}
	p := backtest.Params{
		Start:              start,
		End:                end,
		HoldingMonths:      holdingMonths,
		MonthlyBudget:      b.MonthlyBudget,
		AcquisitionFee:     b.AcquisitionFee,
		DisposalFee:        b.DisposalFee,
		RiskFreeRatePct:    b.RiskFreeRatePct,
		ExtrapolatePastEnd: b.ExtrapolatePastEnd,
		Workers:            b.Workers,
	}
	return p, p.Validate()
}

// HoldingPeriods returns the holding periods to simulate: the sweep list
// when sweep is set, otherwise HoldingMonths alone. Asking for a sweep
// without a holding_sweep list is an error.
func (b BacktestConfig) HoldingPeriods(sweep bool) ([]int, error) {
	if !sweep {
		return []int{b.HoldingMonths}, nil
	}
	if len(b.HoldingSweep) == 0 {
		return nil, fmt.Errorf("%w: sweep requested but backtest.holding_sweep is empty", backtest.ErrInvalidParams)
	}
	return append([]int(nil), b.HoldingSweep...), nil
}

// Options converts the storage section for store.Open.
func (s Storage) Options() store.Options {
	return store.Options{
		Driver:      s.Driver,
		SQLitePath:  s.SQLitePath,
		DataDir:     s.DataDir,
		PostgresDSN: s.PostgresDSN,
	}
}

// UpperSymbols returns the configured symbols trimmed and upper-cased.
func (b BacktestConfig) UpperSymbols() []string {
	out := make([]string, 0, len(b.Symbols))
	for _, s := range b.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Separator returns the CSV separator as a rune.
func (r ReportConfig) Separator() rune {
	if r.CSVSeparator == "" {
		return ';'
	}
	return []rune(r.CSVSeparator)[0]
}
