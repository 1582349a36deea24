package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roomsync/roomsync/internal/roomkey"
	"github.com/roomsync/roomsync/internal/roomstore"
)

// PublishData is the Room Manager's stateless producer path (spec.md
// §4.4 Manager.publish). Room.Publish and Manager.Publish both funnel
// into this one implementation so there is exactly one place that knows
// the wire layout.
func PublishData(ctx context.Context, store roomstore.CommandClient, keys roomkey.Triple, data map[string]any, opts Options) error {
	if data == nil {
		slog.Default().Warn("invalid publish payload: nil data", "channel", keys.Channel)
		return nil
	}

	payloadJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if opts.EnableFullData {
		if fields := encodeHashFields(data); len(fields) > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.HSet(ctx, keys.Hash, fields); err != nil {
					errCh <- fmt.Errorf("hset %s: %w", keys.Hash, err)
				}
			}()
		}
	}

	if opts.HistoryLength > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.LPush(ctx, keys.List, string(payloadJSON)); err != nil {
				errCh <- fmt.Errorf("lpush %s: %w", keys.List, err)
				return
			}
			if err := store.LTrim(ctx, keys.List, 0, int64(opts.HistoryLength-1)); err != nil {
				errCh <- fmt.Errorf("ltrim %s: %w", keys.List, err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := store.Publish(ctx, keys.Channel, string(payloadJSON)); err != nil {
			errCh <- fmt.Errorf("publish %s: %w", keys.Channel, err)
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
