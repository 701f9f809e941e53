package cache

import (
	"sync"
	"time"

	"store-management/internal/dto"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SKUをキーにしたプロセス内キャッシュ。書き込み時のEvictで整合性を保つ。
// Evictのたびに世代を進め、読み取り開始後にEvictされた値は格納しない。
type ProductLRU struct {
	mu   sync.Mutex
	lru  *expirable.LRU[string, dto.Product]
	gens map[string]uint64
}

func NewProductLRU(size int, ttl time.Duration) *ProductLRU {
	return &ProductLRU{
		lru:  expirable.NewLRU[string, dto.Product](size, nil, ttl),
		gens: map[string]uint64{},
	}
}

func (c *ProductLRU) Get(sku string) (dto.Product, bool) {
	p, ok := c.lru.Get(sku)
	if !ok {
		return dto.Product{}, false
	}
	return detach(p), true
}

// ストアを読む前に取得する
func (c *ProductLRU) Generation(sku string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[sku]
}

// genの取得以降にEvictがあれば格納せずfalse
func (c *ProductLRU) PutIfUnchanged(sku string, gen uint64, p dto.Product) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[sku] != gen {
		return false
	}
	c.lru.Add(sku, detach(p))
	return true
}

func (c *ProductLRU) Evict(sku string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[sku]++
	c.lru.Remove(sku)
}

func (c *ProductLRU) Len() int {
	return c.lru.Len()
}

// 呼び出し側の変更がキャッシュに漏れないようにする
func detach(p dto.Product) dto.Product {
	if p.ProductDescription != nil {
		d := *p.ProductDescription
		p.ProductDescription = &d
	}
	return p
}
