package cache

import (
	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/store"
	ristrettoCache "github.com/eko/gocache/store/ristretto/v4"
)

var S store.StoreInterface

func NewStore() error {
	var err error
	S, err = New()
	return err
}

// New builds the in-process store. Every tagged Set also writes one entry
// per tag, so the cost budget has to hold several entries per cached item.
func New() (store.StoreInterface, error) {
	ristretto, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return ristrettoCache.NewRistretto(ristretto), nil
}
