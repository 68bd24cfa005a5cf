package msg

import "strconv"

// Type is the msg_type carried by every journal frame.
type Type int32

// Journal and handshake types.
const (
	TypePageEnd               Type = 10000
	TypeSessionStart          Type = 10001
	TypeSessionEnd            Type = 10002
	TypeTime                  Type = 10003
	TypeRegister              Type = 10011
	TypeDeregister            Type = 10012
	TypeRequestReadFrom       Type = 10021
	TypeRequestReadFromPublic Type = 10022
	TypeRequestWriteTo        Type = 10023
	TypeRequestStart          Type = 10025
	TypeLocation              Type = 10026
	TypeTradingDay            Type = 10027
	TypeChannel               Type = 10028
)

// Trading types.
const (
	TypeDepth              Type = 101
	TypeTicker             Type = 102
	TypeTrade              Type = 103
	TypeIndexPrice         Type = 104
	TypeBar                Type = 110
	TypeOrderInput         Type = 201
	TypeOrderAction        Type = 202
	TypeOrder              Type = 203
	TypeMyTrade            Type = 204
	TypePosition           Type = 205
	TypeAsset              Type = 206
	TypeAssetSnapshot      Type = 207
	TypeInstrument         Type = 209
	TypeOrderActionError   Type = 213
	TypeSubscribe          Type = 302
	TypeSubscribeAll       Type = 303
	TypeUnsubscribe        Type = 304
	TypeAdjustLeverage     Type = 352
	TypeCancelAllOrder     Type = 355
	TypeInstrumentRequest  Type = 356
	TypeUnionResponse      Type = 357
	TypeMergePosition      Type = 358
	TypeQueryPosition      Type = 359
	TypeBrokerStateRefresh Type = 400
	TypeBrokerState        Type = 401
	TypeQryAsset           Type = 402
	TypeRemoveStrategy     Type = 404
	TypeInstrumentEnd      Type = 802
)

var typeNames = map[Type]string{
	TypePageEnd:               "PageEnd",
	TypeSessionStart:          "SessionStart",
	TypeSessionEnd:            "SessionEnd",
	TypeTime:                  "Time",
	TypeRegister:              "Register",
	TypeDeregister:            "Deregister",
	TypeRequestReadFrom:       "RequestReadFrom",
	TypeRequestReadFromPublic: "RequestReadFromPublic",
	TypeRequestWriteTo:        "RequestWriteTo",
	TypeRequestStart:          "RequestStart",
	TypeLocation:              "Location",
	TypeTradingDay:            "TradingDay",
	TypeChannel:               "Channel",
	TypeDepth:                 "Depth",
	TypeTicker:                "Ticker",
	TypeTrade:                 "Trade",
	TypeIndexPrice:            "IndexPrice",
	TypeBar:                   "Bar",
	TypeOrderInput:            "OrderInput",
	TypeOrderAction:           "OrderAction",
	TypeOrder:                 "Order",
	TypeMyTrade:               "MyTrade",
	TypePosition:              "Position",
	TypeAsset:                 "Asset",
	TypeAssetSnapshot:         "AssetSnapshot",
	TypeInstrument:            "Instrument",
	TypeOrderActionError:      "OrderActionError",
	TypeSubscribe:             "Subscribe",
	TypeSubscribeAll:          "SubscribeAll",
	TypeUnsubscribe:           "Unsubscribe",
	TypeAdjustLeverage:        "AdjustLeverage",
	TypeCancelAllOrder:        "CancelAllOrder",
	TypeInstrumentRequest:     "InstrumentRequest",
	TypeUnionResponse:         "UnionResponse",
	TypeMergePosition:         "MergePosition",
	TypeQueryPosition:         "QueryPosition",
	TypeBrokerStateRefresh:    "BrokerStateRefresh",
	TypeBrokerState:           "BrokerState",
	TypeQryAsset:              "QryAsset",
	TypeRemoveStrategy:        "RemoveStrategy",
	TypeInstrumentEnd:         "InstrumentEnd",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Record is a payload with a fixed binary layout.
type Record interface {
	MsgType() Type
}
