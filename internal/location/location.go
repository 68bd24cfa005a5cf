package location

import (
	"strings"

	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// Category is the role of a participant.
type Category uint8

const (
	CategoryMD Category = iota
	CategoryTD
	CategoryStrategy
	CategorySystem
)

var categoryNames = [...]string{"md", "td", "strategy", "system"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// ParseCategory maps a category name back to its value.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, errors.Wrap(exception.ErrConfig, "unknown category").With("category", s)
}

// Mode is the run mode of a participant.
type Mode uint8

const (
	ModeLive Mode = iota
	ModeReplay
	ModeBacktest
)

var modeNames = [...]string{"live", "replay", "backtest"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode maps a mode name back to its value.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, errors.Wrap(exception.ErrConfig, "unknown mode").With("mode", s)
}

// Location identifies a participant. UName is category/group/name/mode and UID
// is its 32-bit FNV-1a hash.
type Location struct {
	Mode     Mode
	Category Category
	Group    string
	Name     string
	UName    string
	UID      uint32
}

// New builds a location and derives its uname and uid.
func New(mode Mode, category Category, group, name string) *Location {
	uname := category.String() + "/" + group + "/" + name + "/" + mode.String()
	return &Location{
		Mode:     mode,
		Category: category,
		Group:    group,
		Name:     name,
		UName:    uname,
		UID:      Hash32(uname),
	}
}

// Parse rebuilds a location from its uname.
func Parse(uname string) (*Location, error) {
	parts := strings.Split(uname, "/")
	if len(parts) != 4 || parts[1] == "" || parts[2] == "" {
		return nil, errors.Wrap(exception.ErrConfig, "malformed location uname").With("uname", uname)
	}
	category, err := ParseCategory(parts[0])
	if err != nil {
		return nil, err
	}
	mode, err := ParseMode(parts[3])
	if err != nil {
		return nil, err
	}
	return New(mode, category, parts[1], parts[2]), nil
}

func (l *Location) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.UName
}

// Master is the coordinator location for a mode.
func Master(mode Mode) *Location {
	return New(mode, CategorySystem, "master", "master")
}

// Ledger is the ledger service location for a mode.
func Ledger(mode Mode) *Location {
	return New(mode, CategorySystem, "service", "ledger")
}

// Account is the order-execution location of an account at a source.
func Account(mode Mode, source, account string) *Location {
	return New(mode, CategoryTD, source, account)
}

// MarketData is the market-data location of a source. The bar service lives
// under system/service.
func MarketData(mode Mode, source string) *Location {
	if source == "bar" {
		return New(mode, CategorySystem, "service", "bar")
	}
	return New(mode, CategoryMD, source, source)
}

// Channel declares that frames written by Source are of interest to Dest.
type Channel struct {
	Source uint32
	Dest   uint32
}

func (c Channel) key() uint64 {
	return uint64(c.Source)<<32 | uint64(c.Dest)
}

// Touches reports whether uid is either end of the channel.
func (c Channel) Touches(uid uint32) bool {
	return c.Source == uid || c.Dest == uid
}
