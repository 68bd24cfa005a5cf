package journal

import (
	"os"

	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// RetentionEnv enables page retention when set to any non-empty value.
const RetentionEnv = "CLEAR_JOURNAL"

const (
	defaultMarketDataPageSize = 128 << 20
	defaultTradingPageSize    = 4 << 20
	defaultPageSize           = 1 << 20
	defaultMarketDataPages    = 8

	minPageSize = pageHeaderSize + 2*frameHeaderSize
	maxPageSize = 1 << 30
)

// PageSizes sets the page capacity per location category.
type PageSizes struct {
	MarketData int `yaml:"md" json:"md"`
	Trading    int `yaml:"td" json:"td"`
	Strategy   int `yaml:"strategy" json:"strategy"`
	System     int `yaml:"system" json:"system"`
}

// Retention controls page sweeping. Zero page counts keep every page.
type Retention struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`
	MarketDataPages int  `yaml:"mdPages" json:"mdPages"`
	OtherPages      int  `yaml:"otherPages" json:"otherPages"`
}

// Config controls the page store.
type Config struct {
	Root       string    `yaml:"root" json:"root"`
	PageSize   PageSizes `yaml:"pageSize" json:"pageSize"`
	LowLatency bool      `yaml:"lowLatency" json:"lowLatency"`
	Retention  Retention `yaml:"retention" json:"retention"`
}

// DefaultConfig returns a store rooted at root with retention taken from the
// environment.
func DefaultConfig(root string) Config {
	return Config{
		Root: root,
		Retention: Retention{
			Enabled: os.Getenv(RetentionEnv) != "",
		},
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.PageSize.MarketData == 0 {
		c.PageSize.MarketData = defaultMarketDataPageSize
	}
	if c.PageSize.Trading == 0 {
		c.PageSize.Trading = defaultTradingPageSize
	}
	if c.PageSize.Strategy == 0 {
		c.PageSize.Strategy = defaultPageSize
	}
	if c.PageSize.System == 0 {
		c.PageSize.System = defaultPageSize
	}
	if c.Retention.MarketDataPages == 0 {
		c.Retention.MarketDataPages = defaultMarketDataPages
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Root == "" {
		return errors.Wrap(exception.ErrConfig, "journal root is empty")
	}
	for _, size := range []int{c.PageSize.MarketData, c.PageSize.Trading, c.PageSize.Strategy, c.PageSize.System} {
		if size < minPageSize || size > maxPageSize {
			return errors.Wrap(exception.ErrConfig, "journal page size out of range").With("size", size)
		}
	}
	if c.Retention.MarketDataPages < 0 || c.Retention.OtherPages < 0 {
		return errors.Wrap(exception.ErrConfig, "journal retention must be >= 0")
	}
	return nil
}

func (c Config) pageSize(category location.Category) int {
	switch category {
	case location.CategoryMD:
		return c.PageSize.MarketData
	case location.CategoryTD:
		return c.PageSize.Trading
	case location.CategoryStrategy:
		return c.PageSize.Strategy
	default:
		return c.PageSize.System
	}
}

// keepPages is how many of the newest pages survive a sweep, 0 for all.
func (c Config) keepPages(loc *location.Location, dest uint32) int {
	if !c.Retention.Enabled {
		return 0
	}
	if loc.Category == location.CategoryMD && dest == 0 {
		return c.Retention.MarketDataPages
	}
	return c.Retention.OtherPages
}
