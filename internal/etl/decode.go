package etl

import (
	"fmt"

	"github.com/aristath/paperloop/internal/domain"
)

func decodeBar(evt domain.Event) (domain.Bar, error) {
	symbol, err := stringField(evt, "symbol")
	if err != nil {
		return domain.Bar{}, err
	}
	timeframe, err := stringField(evt, "timeframe")
	if err != nil {
		return domain.Bar{}, err
	}
	open, err := floatField(evt, "open")
	if err != nil {
		return domain.Bar{}, err
	}
	high, err := floatField(evt, "high")
	if err != nil {
		return domain.Bar{}, err
	}
	low, err := floatField(evt, "low")
	if err != nil {
		return domain.Bar{}, err
	}
	closeP, err := floatField(evt, "close")
	if err != nil {
		return domain.Bar{}, err
	}
	volume, err := floatField(evt, "volume")
	if err != nil {
		return domain.Bar{}, err
	}
	tier, err := floatField(evt, "tier")
	if err != nil {
		return domain.Bar{}, err
	}

	return domain.Bar{
		Timestamp: evt.Timestamp,
		Symbol:    symbol,
		Timeframe: timeframe,
		Open:      open, High: high, Low: low, Close: closeP, Volume: volume,
		Tier: domain.Tier(int(tier)),
	}, nil
}

func decodeSentiment(evt domain.Event) (symbol string, score float64, source string, err error) {
	symbol, err = stringField(evt, "symbol")
	if err != nil {
		return
	}
	score, err = floatField(evt, "score")
	if err != nil {
		return
	}
	source, _ = evt.Data["source"].(string)
	if source == "" {
		source = evt.Source
	}
	return
}

func decodeTrade(evt domain.Event) (clientOrderID string, fillSeq int, symbol string, side domain.Side, qty, price float64, strategyTag string, err error) {
	clientOrderID, err = stringField(evt, "client_order_id")
	if err != nil {
		return
	}
	symbol, err = stringField(evt, "symbol")
	if err != nil {
		return
	}
	sideStr, err2 := stringField(evt, "side")
	if err2 != nil {
		err = err2
		return
	}
	side = domain.Side(sideStr)
	qty, err = floatField(evt, "quantity")
	if err != nil {
		return
	}
	price, err = floatField(evt, "price")
	if err != nil {
		return
	}
	if seq, ok := evt.Data["fill_seq"]; ok {
		if f, ok := seq.(float64); ok {
			fillSeq = int(f)
		}
	}
	strategyTag, _ = evt.Data["strategy_tag"].(string)
	return
}

func stringField(evt domain.Event, key string) (string, error) {
	v, ok := evt.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("etl: event %s missing string field %q", evt.ID, key)
	}
	return v, nil
}

func floatField(evt domain.Event, key string) (float64, error) {
	v, ok := evt.Data[key].(float64)
	if !ok {
		return 0, fmt.Errorf("etl: event %s missing numeric field %q", evt.ID, key)
	}
	return v, nil
}
