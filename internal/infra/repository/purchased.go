package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/bookshelf"
)

const purchasedExpiration = 600 // seconds

type PurchasedBookCache struct {
	mc *memcache.Client
}

func NewPurchasedBookCache(mc *memcache.Client) *PurchasedBookCache {
	return &PurchasedBookCache{mc: mc}
}

func purchasedKey(account string, bookID uint64) string {
	h := xxh3.HashString(fmt.Sprintf("%s/%d", strings.ToLower(strings.TrimSpace(account)), bookID))
	return fmt.Sprintf("bookshelf:purchased:%016x", h)
}

func (c *PurchasedBookCache) Get(ctx context.Context, account string, bookID uint64) (bookshelf.RawBookRecord, bool) {
	item, err := c.mc.Get(purchasedKey(account, bookID))
	if err != nil {
		return bookshelf.RawBookRecord{}, false
	}
	var record bookshelf.RawBookRecord
	if err := json.Unmarshal(item.Value, &record); err != nil {
		return bookshelf.RawBookRecord{}, false
	}
	return record, true
}

func (c *PurchasedBookCache) Set(ctx context.Context, account string, bookID uint64, record bookshelf.RawBookRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.mc.Set(&memcache.Item{
		Key:        purchasedKey(account, bookID),
		Value:      value,
		Expiration: purchasedExpiration,
	})
}
