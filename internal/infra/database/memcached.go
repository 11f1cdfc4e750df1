package database

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

func NewMemcached(server string) *memcache.Client {
	mc := memcache.New(server)
	mc.Timeout = 300 * time.Millisecond
	mc.MaxIdleConns = 4
	return mc
}
