package item

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a sync item with its kind tag for queue transport.
func Encode(it SyncItem) ([]byte, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("encode %s item: %w", it.Kind(), err)
	}
	return json.Marshal(envelope{Kind: it.Kind(), Data: data})
}

// Decode reverses Encode. The item passes through its constructor so coin
// resolution is re-validated on the consumer side.
func Decode(raw []byte) (SyncItem, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode item envelope: %w", err)
	}

	switch env.Kind {
	case KindBalance:
		var it BalanceSyncItem
		if err := json.Unmarshal(env.Data, &it); err != nil {
			return nil, fmt.Errorf("decode balance item: %w", err)
		}
		return NewBalanceSyncItem(it)
	case KindHistory:
		var it HistorySyncItem
		if err := json.Unmarshal(env.Data, &it); err != nil {
			return nil, fmt.Errorf("decode history item: %w", err)
		}
		return NewHistorySyncItem(it)
	case KindCustomAccount:
		var it CustomAccountSyncItem
		if err := json.Unmarshal(env.Data, &it); err != nil {
			return nil, fmt.Errorf("decode custom account item: %w", err)
		}
		return NewCustomAccountSyncItem(it)
	case KindPrice:
		var it PriceSyncItem
		if err := json.Unmarshal(env.Data, &it); err != nil {
			return nil, fmt.Errorf("decode price item: %w", err)
		}
		return NewPriceSyncItem(it)
	case KindLatestPrice:
		var it LatestPriceSyncItem
		if err := json.Unmarshal(env.Data, &it); err != nil {
			return nil, fmt.Errorf("decode latest price item: %w", err)
		}
		return NewLatestPriceSyncItem(it)
	default:
		return nil, fmt.Errorf("decode item: unknown kind %q", env.Kind)
	}
}
