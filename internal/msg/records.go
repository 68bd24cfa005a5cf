package msg

// Instrument describes a tradable contract.
type Instrument struct {
	Symbol             string
	ExchangeID         string
	InstrumentType     InstrumentType
	ProductID          string
	ContractMultiplier int32
	PriceTick          float64
	OpenDate           string
	CreateDate         string
	ExpireDate         string
	DeliveryYear       int32
	DeliveryMonth      int32
	IsTrading          bool
	LongMarginRatio    float64
	ShortMarginRatio   float64
}

// InstrumentEnd closes an instrument snapshot.
type InstrumentEnd struct {
	ExchangeID string
}

type Ticker struct {
	SourceID       string
	Symbol         string
	ExchangeID     string
	DataTime       int64
	InstrumentType InstrumentType
	BidPrice       float64
	BidVolume      float64
	AskPrice       float64
	AskVolume      float64
}

type Depth struct {
	SourceID       string
	Symbol         string
	ExchangeID     string
	DataTime       int64
	InstrumentType InstrumentType
	BidPrice       [DepthLevels]float64
	AskPrice       [DepthLevels]float64
	BidVolume      [DepthLevels]float64
	AskVolume      [DepthLevels]float64
}

// Trade is a public trade print.
type Trade struct {
	ClientID       string
	Symbol         string
	ExchangeID     string
	InstrumentType InstrumentType
	TradeID        int64
	AskID          int64
	BidID          int64
	Price          float64
	Volume         float64
	Side           Side
	PositionSide   Direction
	TradeTime      int64
}

type IndexPrice struct {
	Symbol         string
	ExchangeID     string
	InstrumentType InstrumentType
	Price          float64
}

type Bar struct {
	Symbol      string
	ExchangeID  string
	StartTime   int64
	EndTime     int64
	Open        float64
	Close       float64
	Low         float64
	High        float64
	Volume      float64
	StartVolume float64
	TradeCount  int32
	Interval    int32
}

// OrderInput is the immutable intent behind an order.
type OrderInput struct {
	StrategyID     uint32
	OrderID        uint64
	Symbol         string
	ExchangeID     string
	SourceID       string
	AccountID      string
	InstrumentType InstrumentType
	Price          float64
	StopPrice      float64
	Volume         float64
	Side           Side
	PositionSide   Direction
	OrderType      OrderType
	TimeCondition  TimeCondition
	ReduceOnly     bool
}

// OrderAction cancels or queries an existing order.
type OrderAction struct {
	StrategyID     uint32
	OrderID        uint64
	OrderActionID  uint64
	Symbol         string
	ExOrderID      string
	ActionFlag     OrderActionFlag
	InstrumentType InstrumentType
}

type OrderActionError struct {
	OrderID       uint64
	OrderActionID uint64
	ErrorID       int32
	ErrorMsg      string
}

// Order is the mutable projection of an OrderInput.
type Order struct {
	StrategyID     uint32
	OrderID        uint64
	ExOrderID      string
	Symbol         string
	InstrumentType InstrumentType
	ExchangeID     string
	AccountID      string
	SourceID       string
	Price          float64
	Volume         float64
	VolumeTraded   float64
	VolumeLeft     float64
	StopPrice      float64
	ClosePnl       float64
	AvgPrice       float64
	Fee            float64
	FeeCurrency    string
	Status         OrderStatus
	TimeCondition  TimeCondition
	Side           Side
	PositionSide   Direction
	OrderType      OrderType
	ErrorCode      string
	InsertTime     int64
	UpdateTime     int64
}

// MyTrade is a fill of one of our orders.
type MyTrade struct {
	StrategyID     uint32
	TradeTime      int64
	TradeID        uint64
	OrderID        uint64
	ExOrderID      string
	Symbol         string
	ExchangeID     string
	AccountID      string
	SourceID       string
	InstrumentType InstrumentType
	Side           Side
	Offset         Offset
	Price          float64
	Volume         float64
	Fee            float64
	FeeCurrency    string
	BaseCurrency   string
	QuoteCurrency  string
}

type Asset struct {
	UpdateTime     int64
	HolderUID      uint32
	LedgerCategory LedgerCategory
	Coin           string
	AccountID      string
	ExchangeID     string
	Avail          float64
	Margin         float64
	Frozen         float64
}

type Position struct {
	StrategyID      uint32
	UpdateTime      int64
	Symbol          string
	InstrumentType  InstrumentType
	ExchangeID      string
	HolderUID       uint32
	LedgerCategory  LedgerCategory
	SourceID        string
	AccountID       string
	Direction       Direction
	Volume          float64
	FrozenTotal     int64
	LastPrice       float64
	AvgOpenPrice    float64
	SettlementPrice float64
	Margin          float64
	RealizedPnl     float64
	UnrealizedPnl   float64
}

// Handshake records exchanged with the master.

type RequestWriteToMsg struct {
	DestID uint32
}

type RequestReadFromMsg struct {
	SourceID uint32
	FromTime int64
}

type RequestReadFromPublicMsg struct {
	SourceID uint32
	FromTime int64
}

type ChannelMsg struct {
	SourceID uint32
	DestID   uint32
}

type TradingDayMsg struct {
	Timestamp int64
}

func (Instrument) MsgType() Type               { return TypeInstrument }
func (InstrumentEnd) MsgType() Type            { return TypeInstrumentEnd }
func (Ticker) MsgType() Type                   { return TypeTicker }
func (Depth) MsgType() Type                    { return TypeDepth }
func (Trade) MsgType() Type                    { return TypeTrade }
func (IndexPrice) MsgType() Type               { return TypeIndexPrice }
func (Bar) MsgType() Type                      { return TypeBar }
func (OrderInput) MsgType() Type               { return TypeOrderInput }
func (OrderAction) MsgType() Type              { return TypeOrderAction }
func (OrderActionError) MsgType() Type         { return TypeOrderActionError }
func (Order) MsgType() Type                    { return TypeOrder }
func (MyTrade) MsgType() Type                  { return TypeMyTrade }
func (Asset) MsgType() Type                    { return TypeAsset }
func (Position) MsgType() Type                 { return TypePosition }
func (RequestWriteToMsg) MsgType() Type        { return TypeRequestWriteTo }
func (RequestReadFromMsg) MsgType() Type       { return TypeRequestReadFrom }
func (RequestReadFromPublicMsg) MsgType() Type { return TypeRequestReadFromPublic }
func (ChannelMsg) MsgType() Type               { return TypeChannel }
func (TradingDayMsg) MsgType() Type            { return TypeTradingDay }
