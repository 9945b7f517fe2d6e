package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/cache"
)

const (
	keyPositions = "positions"
	keyAccount   = "account"
)

func ordersKey(date string) string   { return "orders:" + date }
func baselineKey(date string) string { return "positions:base:" + date }

// state is the cached view the engine recomputes and writes back.
type state struct {
	orders    map[string]broker.Order    // by Order.Key()
	positions map[string]broker.Position // by code
	account   broker.Account
}

func loadOrders(ctx context.Context, c cache.Store, date string) (map[string]broker.Order, error) {
	raw, err := c.HGetAll(ctx, ordersKey(date))
	if err != nil {
		return nil, err
	}
	out := make(map[string]broker.Order, len(raw))
	for k, v := range raw {
		var o broker.Order
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", k, err)
		}
		out[k] = o
	}
	return out, nil
}

func loadPositions(ctx context.Context, c cache.Store, key string) (map[string]broker.Position, error) {
	raw, err := c.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]broker.Position, len(raw))
	for code, v := range raw {
		var p broker.Position
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", code, err)
		}
		out[code] = p
	}
	return out, nil
}

func loadAccount(ctx context.Context, c cache.Store) (broker.Account, bool, error) {
	raw, err := c.Get(ctx, keyAccount)
	if errors.Is(err, cache.ErrNotFound) {
		return broker.Account{}, false, nil
	}
	if err != nil {
		return broker.Account{}, false, err
	}
	var a broker.Account
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return broker.Account{}, false, fmt.Errorf("decode account: %w", err)
	}
	return a, true, nil
}

func encodeOrders(orders map[string]broker.Order) (map[string]string, error) {
	out := make(map[string]string, len(orders))
	for k, o := range orders {
		b, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		out[k] = string(b)
	}
	return out, nil
}

func encodePositions(positions map[string]broker.Position) (map[string]string, error) {
	out := make(map[string]string, len(positions))
	for code, p := range positions {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		out[code] = string(b)
	}
	return out, nil
}

func encodeAccount(a broker.Account) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// write replaces the day's orders, the positions and the account in one
// batch so readers never see them out of step.
func (s state) write(ctx context.Context, c cache.Store, date string) error {
	orders, err := encodeOrders(s.orders)
	if err != nil {
		return err
	}
	positions, err := encodePositions(s.positions)
	if err != nil {
		return err
	}
	acct, err := encodeAccount(s.account)
	if err != nil {
		return err
	}

	return c.Batch(ctx, func(b cache.Batch) error {
		b.Del(ordersKey(date), keyPositions)
		b.HSet(ordersKey(date), orders)
		b.HSet(keyPositions, positions)
		b.Set(keyAccount, acct, 0)
		return nil
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
