package ops

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/uswork-ny/godzilla-community/internal/bar"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/quota"
	"github.com/uswork-ny/godzilla-community/pkg/conn"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultHomeDir       = ".godzilla"
	defaultPaperInterval = 100 * time.Millisecond
)

// FileConfig mirrors the config file layout.
type FileConfig struct {
	Home       string          `yaml:"home" json:"home"`
	Mode       string          `yaml:"mode" json:"mode"`
	LowLatency bool            `yaml:"lowLatency" json:"lowLatency"`
	Journal    journal.Config  `yaml:"journal" json:"journal"`
	Quota      quota.Config    `yaml:"quota" json:"quota"`
	MarketDB   conn.Option     `yaml:"marketDB" json:"marketDB"`
	Profiling  ProfilingConfig `yaml:"profiling" json:"profiling"`
	Strategy   StrategyConfig  `yaml:"strategy" json:"strategy"`
	Paper      PaperConfig     `yaml:"paper" json:"paper"`
	Ledger     LedgerConfig    `yaml:"ledger" json:"ledger"`
}

// ProfilingConfig enables continuous profiling against a pyroscope server.
type ProfilingConfig struct {
	Enabled         bool              `yaml:"enabled" json:"enabled"`
	ServerAddress   string            `yaml:"serverAddress" json:"serverAddress"`
	ApplicationName string            `yaml:"applicationName" json:"applicationName"`
	Tags            map[string]string `yaml:"tags" json:"tags"`
}

// AccountConfig names one td location.
type AccountConfig struct {
	Source  string `yaml:"source" json:"source"`
	Account string `yaml:"account" json:"account"`
}

// StrategyConfig describes the strategy location and what it trades through.
type StrategyConfig struct {
	Group      string          `yaml:"group" json:"group"`
	Name       string          `yaml:"name" json:"name"`
	Accounts   []AccountConfig `yaml:"accounts" json:"accounts"`
	MarketData []string        `yaml:"marketData" json:"marketData"`
	Symbols    []string        `yaml:"symbols" json:"symbols"`
	// Volume is the order size of the demo strategy.
	Volume float64 `yaml:"volume" json:"volume"`
}

// PaperConfig drives the simulated venue.
type PaperConfig struct {
	Exchange  string             `yaml:"exchange" json:"exchange"`
	Prices    map[string]float64 `yaml:"prices" json:"prices"`
	Balances  map[string]float64 `yaml:"balances" json:"balances"`
	FillRatio float64            `yaml:"fillRatio" json:"fillRatio"`
	Interval  time.Duration      `yaml:"interval" json:"interval"`
	Seed      int64              `yaml:"seed" json:"seed"`

	// Bar is the width of the bars rolled from paper trades, such as 30s or
	// 1m. Empty disables the bar service.
	Bar         string        `yaml:"bar" json:"bar"`
	BarInterval time.Duration `yaml:"-" json:"-"`
}

// LedgerConfig controls the ledger service.
type LedgerConfig struct {
	SnapshotDir string `yaml:"snapshotDir" json:"snapshotDir"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Home      string
	Mode      location.Mode
	Journal   journal.Config
	Quota     quota.Config
	MarketDB  conn.Option
	Profiling ProfilingConfig
	Strategy  StrategyConfig
	Paper     PaperConfig
	Ledger    LedgerConfig
}

// StrategyLocation is the location the strategy runs as.
func (l Loaded) StrategyLocation() *location.Location {
	return location.New(l.Mode, location.CategoryStrategy, l.Strategy.Group, l.Strategy.Name)
}

// AccountLocations are the td locations the strategy trades through.
func (l Loaded) AccountLocations() []*location.Location {
	out := make([]*location.Location, 0, len(l.Strategy.Accounts))
	for _, acc := range l.Strategy.Accounts {
		out = append(out, location.Account(l.Mode, acc.Source, acc.Account))
	}
	return out
}

// Load reads a YAML config file, or JSON when the name ends in .json, and
// resolves it. An empty path resolves the defaults.
func Load(path string) (Loaded, error) {
	if path == "" {
		return Resolve(FileConfig{})
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrConfig, "read %s, err: %+v", path, err)
	}
	var cfg FileConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = sonic.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Loaded{}, errors.Wrapf(exception.ErrConfig, "decode %s, err: %+v", path, err)
	}
	return Resolve(cfg)
}

// Resolve applies defaults and validates cfg.
func Resolve(cfg FileConfig) (Loaded, error) {
	home, err := resolveHome(cfg.Home)
	if err != nil {
		return Loaded{}, err
	}

	mode := location.ModeLive
	if cfg.Mode != "" {
		if mode, err = location.ParseMode(cfg.Mode); err != nil {
			return Loaded{}, err
		}
	}

	jc := cfg.Journal
	if jc.Root == "" {
		jc.Root = filepath.Join(home, "journal")
	}
	jc.LowLatency = jc.LowLatency || cfg.LowLatency
	if os.Getenv(journal.RetentionEnv) != "" {
		jc.Retention.Enabled = true
	}

	qc, err := resolveQuota(cfg.Quota)
	if err != nil {
		return Loaded{}, err
	}

	db := cfg.MarketDB
	if db.Driver == "" {
		db.Driver = conn.DriverSQLite
	}
	if db.Driver == conn.DriverSQLite && db.Path == "" {
		db.Path = filepath.Join(home, "db", "market.db")
	}

	prof := cfg.Profiling
	if prof.Enabled && prof.ServerAddress == "" {
		return Loaded{}, errors.Wrap(exception.ErrConfig, "profiling server address is empty")
	}
	if prof.ApplicationName == "" {
		prof.ApplicationName = "godzilla"
	}

	st, err := resolveStrategy(cfg.Strategy)
	if err != nil {
		return Loaded{}, err
	}
	paper, err := resolvePaper(cfg.Paper)
	if err != nil {
		return Loaded{}, err
	}

	ledger := cfg.Ledger
	if ledger.SnapshotDir == "" {
		ledger.SnapshotDir = filepath.Join(home, "ledger")
	}

	return Loaded{
		Home:      home,
		Mode:      mode,
		Journal:   jc,
		Quota:     qc,
		MarketDB:  db,
		Profiling: prof,
		Strategy:  st,
		Paper:     paper,
		Ledger:    ledger,
	}, nil
}

func resolveHome(home string) (string, error) {
	if home != "" {
		return home, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(exception.ErrConfig, "no home configured, err: %+v", err)
	}
	return filepath.Join(dir, defaultHomeDir), nil
}

func resolveQuota(qc quota.Config) (quota.Config, error) {
	if qc.Window < 0 || qc.TradeCeiling < 0 || qc.OrderCeiling < 0 {
		return qc, errors.Wrap(exception.ErrConfig, "quota must be >= 0")
	}
	def := quota.DefaultConfig()
	if qc.Window == 0 {
		qc.Window = def.Window
	}
	if qc.TradeCeiling == 0 {
		qc.TradeCeiling = def.TradeCeiling
	}
	if qc.OrderCeiling == 0 {
		qc.OrderCeiling = def.OrderCeiling
	}
	if qc.Multipliers == nil {
		qc.Multipliers = def.Multipliers
	}
	return qc, nil
}

func resolveStrategy(sc StrategyConfig) (StrategyConfig, error) {
	if sc.Group == "" {
		sc.Group = "default"
	}
	if sc.Name == "" {
		sc.Name = "demo"
	}
	if len(sc.Accounts) == 0 {
		sc.Accounts = []AccountConfig{{Source: "sim", Account: "paper"}}
	}
	for _, acc := range sc.Accounts {
		if acc.Source == "" || acc.Account == "" {
			return sc, errors.Wrap(exception.ErrConfig, "strategy account needs source and account")
		}
	}
	if len(sc.MarketData) == 0 {
		sc.MarketData = []string{"sim"}
	}
	if len(sc.Symbols) == 0 {
		sc.Symbols = []string{"btc_usdt"}
	}
	if sc.Volume < 0 {
		return sc, errors.Wrap(exception.ErrConfig, "strategy volume must be >= 0")
	}
	if sc.Volume == 0 {
		sc.Volume = 0.01
	}
	return sc, nil
}

func resolvePaper(pc PaperConfig) (PaperConfig, error) {
	if pc.Exchange == "" {
		pc.Exchange = "sim"
	}
	if len(pc.Prices) == 0 {
		pc.Prices = map[string]float64{"btc_usdt": 30_000}
	}
	for symbol, price := range pc.Prices {
		if price <= 0 {
			return pc, errors.Wrapf(exception.ErrConfig, "paper price of %s must be > 0", symbol)
		}
	}
	if len(pc.Balances) == 0 {
		pc.Balances = map[string]float64{"usdt": 1_000_000}
	}
	if pc.FillRatio < 0 || pc.FillRatio > 1 {
		return pc, errors.Wrap(exception.ErrConfig, "paper fill ratio must be within [0, 1]")
	}
	if pc.FillRatio == 0 {
		pc.FillRatio = 1
	}
	if pc.Interval < 0 {
		return pc, errors.Wrap(exception.ErrConfig, "paper interval must be >= 0")
	}
	if pc.Interval == 0 {
		pc.Interval = defaultPaperInterval
	}
	if pc.Seed == 0 {
		pc.Seed = 1
	}
	if pc.Bar != "" {
		d, err := bar.ParseInterval(pc.Bar)
		if err != nil {
			return pc, errors.Wrap(exception.ErrConfig, err.Error())
		}
		pc.BarInterval = d
	}
	return pc, nil
}
