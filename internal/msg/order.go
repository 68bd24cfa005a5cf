package msg

// OrderFromInput projects an intent into its initial Order: identifying fields
// are copied, nothing is traded yet and the status is PreSend.
func OrderFromInput(in OrderInput) Order {
	return Order{
		StrategyID:     in.StrategyID,
		OrderID:        in.OrderID,
		Symbol:         in.Symbol,
		InstrumentType: in.InstrumentType,
		ExchangeID:     in.ExchangeID,
		AccountID:      in.AccountID,
		SourceID:       in.SourceID,
		Price:          in.Price,
		Volume:         in.Volume,
		VolumeTraded:   0,
		VolumeLeft:     in.Volume,
		StopPrice:      in.StopPrice,
		Status:         StatusPreSend,
		TimeCondition:  in.TimeCondition,
		Side:           in.Side,
		PositionSide:   in.PositionSide,
		OrderType:      in.OrderType,
	}
}
