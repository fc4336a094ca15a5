package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"

	"marketfeed-go/internal/signal"
)

type payloadDecoder func(data json.RawMessage) (any, error)

var decoders = map[signal.EventType]payloadDecoder{
	signal.EventMarketData:    decodeTicks,
	signal.EventTradingSignal: decodeInto[signal.Signal],
	signal.EventOrderUpdate:   decodeInto[signal.OrderUpdate],
	signal.EventPortfolioUpdate: func(data json.RawMessage) (any, error) {
		if len(data) == 0 {
			return nil, errors.New("empty portfolio payload")
		}
		return data, nil
	},
}

// decodeEnvelope parses raw into its event type and typed payload. A nil
// payload with a nil error means the type is not routed.
func decodeEnvelope(raw []byte) (signal.EventType, any, error) {
	var env signal.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, &MalformedMessageError{Err: err}
	}
	if env.Type == "" {
		return "", nil, &MalformedMessageError{Err: errors.New("missing type")}
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return env.Type, nil, nil
	}
	payload, err := decode(env.Data)
	if err != nil {
		return env.Type, nil, &MalformedMessageError{Type: string(env.Type), Err: err}
	}
	return env.Type, payload, nil
}

func decodeInto[T any](data json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeTicks accepts a list of ticks or an object keyed by symbol.
func decodeTicks(data json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty market data")
	}
	if trimmed[0] == '[' {
		var ticks []signal.Tick
		if err := json.Unmarshal(trimmed, &ticks); err != nil {
			return nil, err
		}
		return ticks, nil
	}
	var keyed map[string]signal.Tick
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(keyed))
	for sym := range keyed {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	ticks := make([]signal.Tick, 0, len(keyed))
	for _, sym := range symbols {
		tk := keyed[sym]
		if tk.Symbol == "" {
			tk.Symbol = sym
		}
		ticks = append(ticks, tk)
	}
	return ticks, nil
}
