package finance

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"kincore/internal/api"
	"kincore/internal/cache"
	"kincore/internal/log"
)

type DictionaryAPI interface {
	ListCurrencies(ctx context.Context) ([]api.Currency, error)
	ListCategories(ctx context.Context) ([]api.Category, error)
}

// Dictionary is one loaded copy of the currency and category lists.
type Dictionary struct {
	Currencies []api.Currency `json:"currencies"`
	Categories []api.Category `json:"categories"`

	currencies map[int64]api.Currency
	categories map[int64]api.Category
}

func newDictionary(currencies []api.Currency, categories []api.Category) *Dictionary {
	d := &Dictionary{
		Currencies: currencies,
		Categories: categories,
		currencies: make(map[int64]api.Currency, len(currencies)),
		categories: make(map[int64]api.Category, len(categories)),
	}
	for _, c := range currencies {
		d.currencies[c.ID] = c
	}
	for _, c := range categories {
		d.categories[c.ID] = c
	}
	return d
}

// Currency resolves a currency reference, embedded or by id.
func (d *Dictionary) Currency(ref api.Ref[api.Currency]) (api.Currency, bool) {
	return ref.Resolve(func(id int64) (api.Currency, bool) {
		c, ok := d.currencies[id]
		return c, ok
	})
}

// CategoryName returns the category name, or "" for none or unknown ids.
func (d *Dictionary) CategoryName(id *int64) string {
	if id == nil {
		return ""
	}
	return d.categories[*id].Name
}

// Dictionaries caches dictionaries per session token.
type Dictionaries struct {
	remote DictionaryAPI
	cache  cache.Cache[*Dictionary]
	logger *log.Logger
}

// DefaultDictionaryEntries bounds how many sessions keep a cached dictionary.
const DefaultDictionaryEntries = 64

func NewDictionaries(remote DictionaryAPI, c cache.Cache[*Dictionary], logger *log.Logger) *Dictionaries {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dictionaries{
		remote: remote,
		cache:  c,
		logger: logger.WithComponent(log.ComponentFinance),
	}
}

// NewDictionaryCache builds the LRU cache used by Dictionaries.
func NewDictionaryCache(ttl time.Duration) *cache.LRUCache[*Dictionary] {
	return cache.NewLRUCache[*Dictionary](DefaultDictionaryEntries, ttl)
}

// Load returns the dictionary for token, fetching both lists in parallel on a miss.
func (d *Dictionaries) Load(ctx context.Context, token string) (*Dictionary, error) {
	if dict, ok := d.cache.Get(token); ok {
		return dict, nil
	}

	var (
		currencies []api.Currency
		categories []api.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		currencies, err = d.remote.ListCurrencies(gctx)
		if err != nil {
			return fmt.Errorf("list currencies: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = d.remote.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dict := newDictionary(currencies, categories)
	d.cache.Set(token, dict)
	d.logger.DebugContext(ctx, "Dictionaries loaded",
		"currencies", len(currencies), "categories", len(categories))
	return dict, nil
}

// Forget drops the cached dictionary of token, typically on logout.
func (d *Dictionaries) Forget(token string) {
	d.cache.Delete(token)
}
