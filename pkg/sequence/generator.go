package sequence

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"storefront-core/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const (
	OrderNoDigits  = 6
	maxReserveTry  = 10
	reservationTTL = 24 * time.Hour
)

var ErrExhausted = errors.New("sequence: no free order number after retries")

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out short human-facing order numbers. Callers still
// enforce uniqueness against the order table.
type Generator interface {
	NextOrderNo(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{rdb: p.Redis}
}

// NextOrderNo draws random numbers and reserves one with SETNX so concurrent
// creators on different nodes do not pick the same candidate.
func (g *RedisGenerator) NextOrderNo(ctx context.Context) (string, error) {
	for i := 0; i < maxReserveTry; i++ {
		no, err := randomDigits(OrderNoDigits)
		if err != nil {
			return "", err
		}

		ok, err := g.rdb.SetNX(ctx, rediskey.OrderNoKey(no), 1, reservationTTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return no, nil
		}
	}
	return "", ErrExhausted
}

// RandomGenerator draws numbers without reservation.
type RandomGenerator struct{}

func (RandomGenerator) NextOrderNo(context.Context) (string, error) {
	return randomDigits(OrderNoDigits)
}

func randomDigits(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}
