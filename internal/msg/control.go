package msg

// Control documents travel as JSON payloads next to the fixed-layout records.

// SubscribeRequest asks a market-data source for one kind of stream.
type SubscribeRequest struct {
	Symbol         string         `json:"symbol"`
	Exchange       string         `json:"exchange"`
	SubType        string         `json:"sub_type"`
	InstrumentType InstrumentType `json:"inst_type"`
}

// SubscribeAll asks a market-data source for every symbol it carries.
type SubscribeAll struct {
	Exchange string `json:"exchange"`
}

type AdjustLeverage struct {
	StrategyUID    uint32         `json:"strategy_uid"`
	Symbol         string         `json:"symbol"`
	Exchange       string         `json:"exchange"`
	InstrumentType InstrumentType `json:"inst_type"`
	Leverage       int32          `json:"leverage"`
	Direction      Direction      `json:"direction"`
}

type MergePosition struct {
	StrategyUID    uint32         `json:"strategy_uid"`
	Symbol         string         `json:"symbol"`
	Exchange       string         `json:"exchange"`
	InstrumentType InstrumentType `json:"inst_type"`
	Volume         float64        `json:"volume"`
}

type QueryPosition struct {
	StrategyUID    uint32         `json:"strategy_uid"`
	Symbol         string         `json:"symbol"`
	Exchange       string         `json:"exchange"`
	InstrumentType InstrumentType `json:"inst_type"`
}

// QryAsset asks the ledger for the assets held by a location.
type QryAsset struct {
	Mode     string `json:"mode"`
	Category string `json:"category"`
	Group    string `json:"group"`
	Name     string `json:"name"`
	UName    string `json:"uname"`
	UID      uint32 `json:"uid"`
}

// UnionResponse carries an adapter answer to one of the control requests.
type UnionResponse struct {
	StrategyUID uint32 `json:"strategy_uid"`
	Type        Type   `json:"type"`
	Data        string `json:"data"`
}

// LocationDoc announces a location. Register and Location frames carry it.
type LocationDoc struct {
	Mode     string `json:"mode"`
	Category string `json:"category"`
	Group    string `json:"group"`
	Name     string `json:"name"`
	UName    string `json:"uname"`
	UID      uint32 `json:"uid"`
	PID      int    `json:"pid"`
	Identity string `json:"identity"`
}

// Deregister withdraws a location.
type Deregister struct {
	UID uint32 `json:"uid"`
}

// BrokerState is published by a broker on its public journal. Relayed by the
// ledger, UID names the broker it describes.
type BrokerState struct {
	UID   uint32           `json:"uid,omitempty"`
	State BrokerStateValue `json:"state"`
}

// BrokerStateRefresh asks the ledger for the last state of every broker.
type BrokerStateRefresh struct{}

// CancelAllOrder asks the ledger to cancel every open order placed by or
// through the location UID.
type CancelAllOrder struct {
	UID uint32 `json:"uid"`
}

// RemoveStrategy drops the book the ledger retains for a strategy that is
// no longer running.
type RemoveStrategy struct {
	UID   uint32 `json:"uid"`
	UName string `json:"uname,omitempty"`
}
