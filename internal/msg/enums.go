package msg

// Bounded string field widths in bytes.
const (
	OrderIDLen   = 32
	SymbolLen    = 32
	ProductIDLen = 32
	DateLen      = 9
	ExchangeLen  = 16
	AccountLen   = 32
	ClientIDLen  = 32
	SourceLen    = 16
	ErrorMsgLen  = 128
	ErrorCodeLen = 16
)

// DepthLevels is the number of price levels in a Depth record.
const DepthLevels = 10

type InstrumentType int8

const (
	InstrumentUnknown InstrumentType = iota
	InstrumentFFuture
	InstrumentDFuture
	InstrumentFuture
	InstrumentEtf
	InstrumentSpot
	InstrumentIndex
	InstrumentSwap
)

var instrumentNames = [...]string{"unknown", "ffuture", "dfuture", "future", "etf", "spot", "index", "swap"}

func (t InstrumentType) String() string {
	if t >= 0 && int(t) < len(instrumentNames) {
		return instrumentNames[t]
	}
	return "invalid"
}

type Side int8

const (
	SideBuy Side = iota
	SideSell
	SideLock
	SideUnlock
	SideExec
	SideDrop
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	case SideLock:
		return "lock"
	case SideUnlock:
		return "unlock"
	case SideExec:
		return "exec"
	case SideDrop:
		return "drop"
	}
	return "invalid"
}

type Offset int8

const (
	OffsetOpen Offset = iota
	OffsetClose
	OffsetCloseToday
	OffsetCloseYesterday
)

type OrderActionFlag int8

const (
	ActionCancel OrderActionFlag = iota
	ActionQuery
)

type OrderType int8

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
	OrderTypeMock
	OrderTypeUnknown
)

type TimeCondition int8

const (
	TimeConditionIOC TimeCondition = iota
	TimeConditionFOK
	TimeConditionGTC
	TimeConditionGTX
	TimeConditionPOC
)

type OrderStatus int8

const (
	StatusUnknown OrderStatus = iota
	StatusSubmitted
	StatusPending
	StatusCancelled
	StatusError
	StatusFilled
	StatusPartialFilledNotActive
	StatusPartialFilledActive
	StatusPreSend
)

var statusNames = [...]string{
	"Unknown", "Submitted", "Pending", "Cancelled", "Error",
	"Filled", "PartialFilledNotActive", "PartialFilledActive", "PreSend",
}

func (s OrderStatus) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

// IsFinal reports whether no further status transition is accepted after s.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case StatusPreSend, StatusSubmitted, StatusPending, StatusPartialFilledActive, StatusUnknown:
		return false
	default:
		return true
	}
}

// Direction is the position side.
type Direction int8

const (
	DirectionLong Direction = iota
	DirectionShort
)

type LedgerCategory int8

const (
	LedgerAccount LedgerCategory = iota
	LedgerStrategy
)

type BrokerStateValue int8

const (
	BrokerPending BrokerStateValue = iota
	BrokerIdle
	BrokerDisConnected
	BrokerConnected
	BrokerLoggedIn
	BrokerLoginFailed
	BrokerReady
)
