// Package bar rolls the public trades of one market-data source into
// fixed-interval Bar frames and publishes them on its own public journal.
package bar

import (
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const defaultInterval = time.Minute

var ErrBadInterval = stderrors.New("bad bar interval")

// ParseInterval reads an interval such as 30s, 5m, 1h or 1d.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, errors.Wrapf(ErrBadInterval, "%q", s)
	}
	unit := map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
	}[s[len(s)-1]]
	n, err := strconv.Atoi(s[:len(s)-1])
	if unit == 0 || err != nil || n <= 0 {
		return 0, errors.Wrapf(ErrBadInterval, "%q", s)
	}
	return time.Duration(n) * unit, nil
}

type Config struct {
	// Source is the market-data source whose trades are rolled.
	Source   string
	Interval time.Duration
}

type barKey struct {
	symbol   string
	exchange string
}

// Service keeps one open bar per subscribed symbol.
type Service struct {
	node     *node.Node
	source   *location.Location
	interval int64
	bars     map[barKey]*msg.Bar
	wanted   []msg.SubscribeRequest
	ready    bool
}

// New serves bars on n, which must be the bar location of its mode.
func New(n *node.Node, cfg Config) (*Service, error) {
	if n.Location().UID != location.MarketData(n.Mode(), "bar").UID {
		return nil, errors.Wrapf(exception.ErrConfig, "%s is not the bar location", n.Location().UName)
	}
	source := location.MarketData(n.Mode(), cfg.Source)
	if source.Category != location.CategoryMD {
		return nil, errors.Wrapf(exception.ErrConfig, "bar source %q is not a market-data source", cfg.Source)
	}
	if cfg.Interval < 0 {
		return nil, errors.Wrapf(exception.ErrConfig, "bar interval %s", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	s := &Service{
		node:     n,
		source:   source,
		interval: cfg.Interval.Nanoseconds(),
		bars:     make(map[barKey]*msg.Bar),
	}

	self := n.Location().UID
	n.Subscribe(s.onLocation, bus.Is(msg.TypeLocation), bus.From(n.Master().UID))
	n.Subscribe(s.onSubscribe, bus.Is(msg.TypeSubscribe), bus.To(self))
	n.Subscribe(s.onTrade, bus.Is(msg.TypeTrade), bus.From(source.UID), bus.To(0))
	n.Subscribe(s.onWritable, bus.Is(msg.TypeRequestWriteTo), bus.To(self), bus.Where(func(e bus.Event) bool {
		rec, err := e.Record()
		return err == nil && rec.(msg.RequestWriteToMsg).DestID == source.UID
	}))
	return s, nil
}

func (s *Service) onLocation(e bus.Event) {
	var doc msg.LocationDoc
	if err := e.JSON(&doc); err != nil {
		s.node.Metrics().IncProtocolDrop()
		return
	}
	if doc.UID != s.source.UID {
		return
	}
	if err := s.node.RequestReadFromPublic(s.source.UID); err != nil {
		logs.Errorf("bar read public of %s, err: %+v", s.source.UName, err)
	}
	if err := s.node.RequestWriteTo(s.source.UID); err != nil {
		logs.Errorf("bar request writer to %s, err: %+v", s.source.UName, err)
	}
	logs.Infof("bar follows %s [%08x]", s.source.UName, s.source.UID)
}

// onWritable forwards the trade subscriptions collected before the source
// granted a writer.
func (s *Service) onWritable(bus.Event) {
	s.ready = true
	wanted := s.wanted
	s.wanted = nil
	for _, req := range wanted {
		s.forward(req)
	}
}

func (s *Service) onSubscribe(e bus.Event) {
	var req msg.SubscribeRequest
	if err := e.JSON(&req); err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("bar dropped subscribe from %08x, err: %+v", e.Source, err)
		return
	}
	if req.SubType != msg.SubBar {
		return
	}
	s.Subscribe(req)
}

// Subscribe opens a bar for the symbol of req starting at the next interval
// boundary and asks the source for its trades.
func (s *Service) Subscribe(req msg.SubscribeRequest) {
	key := barKey{req.Symbol, req.Exchange}
	if _, ok := s.bars[key]; ok {
		return
	}
	now := s.node.Now()
	start := now - now%s.interval + s.interval
	s.bars[key] = &msg.Bar{
		Symbol:     req.Symbol,
		ExchangeID: req.Exchange,
		StartTime:  start,
		EndTime:    start + s.interval,
		Interval:   int32(s.interval / int64(time.Second)),
	}
	logs.Infof("bar subscribe %s@%s from %s", req.Symbol, req.Exchange, nanotime.Strftime(start, nanotime.DefaultFormat))

	req.SubType = msg.SubTrade
	if !s.ready {
		s.wanted = append(s.wanted, req)
		return
	}
	s.forward(req)
}

func (s *Service) forward(req msg.SubscribeRequest) {
	if err := s.node.WriteJSON(s.source.UID, 0, msg.TypeSubscribe, req); err != nil {
		logs.Errorf("bar subscribe trades of %s, err: %+v", req.Symbol, err)
	}
}

func (s *Service) onTrade(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		s.node.Metrics().IncProtocolDrop()
		return
	}
	trade := rec.(msg.Trade)
	b, ok := s.bars[barKey{trade.Symbol, trade.ExchangeID}]
	if !ok {
		return
	}
	if err := s.roll(e.GenTime, b, trade); err != nil {
		logs.Errorf("bar publish %s, err: %+v", trade.Symbol, err)
	}
}

// roll folds trade into b. A trade at or past the end of b publishes it and
// opens the bar that contains the trade.
func (s *Service) roll(trigger int64, b *msg.Bar, trade msg.Trade) error {
	t := trade.TradeTime
	if t >= b.StartTime && t < b.EndTime {
		add(b, trade)
		return nil
	}
	if t < b.EndTime {
		return nil
	}
	if err := s.node.WriteRecord(0, trigger, *b); err != nil {
		return err
	}
	logs.Infof("bar %s@%s o:%v c:%v h:%v l:%v from %s", b.Symbol, b.ExchangeID, b.Open, b.Close, b.High, b.Low,
		nanotime.Strftime(b.StartTime, nanotime.DefaultFormat))

	b.StartTime = b.EndTime + (t-b.EndTime)/s.interval*s.interval
	b.EndTime = b.StartTime + s.interval
	b.Open, b.Close, b.High, b.Low = 0, 0, 0, 0
	b.Volume, b.StartVolume, b.TradeCount = 0, 0, 0
	add(b, trade)
	return nil
}

func add(b *msg.Bar, trade msg.Trade) {
	if b.TradeCount == 0 {
		b.Open, b.High, b.Low = trade.Price, trade.Price, trade.Price
		b.StartVolume = trade.Volume
	}
	b.TradeCount++
	b.Volume += trade.Volume
	b.High = max(b.High, trade.Price)
	b.Low = min(b.Low, trade.Price)
	b.Close = trade.Price
}

// Bar returns the bar being built for symbol on exchange.
func (s *Service) Bar(symbol, exchange string) (msg.Bar, bool) {
	b, ok := s.bars[barKey{symbol, exchange}]
	if !ok {
		return msg.Bar{}, false
	}
	return *b, true
}
