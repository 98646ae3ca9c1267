package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyGeneration = "matchday:gen"

// Cache guarda leituras da API no Redis. As chaves levam um número de geração;
// Invalidate incrementa a geração e todas as entradas antigas deixam de ser lidas
// (expiram pelo TTL).
type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

// Generation devolve o prefixo da geração atual. O chamador usa o mesmo
// prefixo no Get e no Set de uma leitura, para que um load iniciado antes de
// um Invalidate nunca grave na geração nova.
func (c *Cache) Generation(ctx context.Context) (string, error) {
	gen, err := c.R.Get(ctx, keyGeneration).Int64()
	if err == redis.Nil {
		gen = 0
	} else if err != nil {
		return "", err
	}
	return "matchday:" + strconv.FormatInt(gen, 10), nil
}

func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key, b, ttl).Err()
}

// Invalidate descarta todas as entradas; chamado após cada commit do motor
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.R.Incr(ctx, keyGeneration).Err()
}
