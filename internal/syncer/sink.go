package syncer

import (
	"sync"

	"github.com/emperorhan/walletsync/internal/domain/item"
	"github.com/emperorhan/walletsync/internal/domain/model"
	"github.com/emperorhan/walletsync/internal/metrics"
)

// QueueSink collects follow-up items spawned by normalizers during a batch.
// The orchestrator drains it after ExecuteBatch returns and feeds the items
// back into its queue.
type QueueSink struct {
	mu    sync.Mutex
	items []item.SyncItem
}

func NewQueueSink() *QueueSink {
	return &QueueSink{}
}

func (s *QueueSink) AddToQueue(it item.SyncItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, it)
	metrics.SpawnedItemsTotal.WithLabelValues(string(it.Kind())).Inc()
}

func (s *QueueSink) AddPriceSync(coin model.Coin, slug string, days int) error {
	it, err := item.NewPriceSyncItem(item.PriceSyncItem{
		Base: item.Base{CoinType: coin.ID, Module: "sync"},
		Slug: slug,
		Days: days,
	})
	if err != nil {
		return err
	}
	s.AddToQueue(it)
	return nil
}

func (s *QueueSink) AddLatestPriceSync(coin model.Coin, slug string) error {
	it, err := item.NewLatestPriceSyncItem(item.LatestPriceSyncItem{
		Base: item.Base{CoinType: coin.ID, Module: "sync"},
		Slug: slug,
	})
	if err != nil {
		return err
	}
	s.AddToQueue(it)
	return nil
}

// Drain returns the collected items and resets the sink.
func (s *QueueSink) Drain() []item.SyncItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.items
	s.items = nil
	return drained
}
