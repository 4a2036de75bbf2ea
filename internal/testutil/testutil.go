// Package testutil provides shared test infrastructure for the members console.
package testutil

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	probeTimeout = 2 * time.Second
	// DB 0 holds the reservation keys; tests run in 1..15.
	firstTestDB = 1
	lastTestDB  = 15
	dbLockTTL   = 30 * time.Minute
)

// TestTime is the fixed instant store tests start their clocks at.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// FixedTimeFunc returns a clock frozen at t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SetupTestRedis returns a client bound to an empty, reserved Redis DB.
// The test is skipped when no Redis answers, unless TEST_REQUIRE_REDIS or
// TEST_REQUIRE_INFRA is set, in which case it fails.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr, ok := findRedis(t)
	if !ok {
		if redisRequired() {
			t.Fatal("Redis not available for testing")
		}
		t.Skip("Redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush test redis db: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: close test redis client: %v", err)
		}
	})
	return client
}

// findRedis tries REDIS_ADDR first, then the compose and local defaults.
func findRedis(t testing.TB) (string, bool) {
	t.Helper()
	candidates := []string{"redis:6379", "localhost:6379", "localhost:56379"}
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		candidates = []string{addr}
	}
	i := slices.IndexFunc(candidates, func(addr string) bool { return ping(t, addr) })
	if i < 0 {
		return "", false
	}
	return candidates[i], true
}

func ping(t testing.TB, addr string) bool {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		t.Logf("Redis not available at %s: %v", addr, err)
		return false
	}
	return true
}

// reserveDB picks the DB index for this test. TEST_REDIS_DB pins it;
// otherwise a lock key in DB 0 keeps parallel packages apart.
func reserveDB(t testing.TB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer meta.Close()
	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := firstTestDB; db <= lastTestDB; db++ {
		key := fmt.Sprintf("members-console:testutil:db_lock:%d", db)
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		ok, err := meta.SetNX(ctx, key, owner, dbLockTTL).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() { releaseDB(t, addr, key) })
		return db
	}
	t.Logf("all test DBs reserved, sharing DB %d", firstTestDB)
	return firstTestDB
}

func releaseDB(t testing.TB, addr, key string) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := c.Del(ctx, key).Err(); err != nil {
		t.Logf("warning: release test redis db %s: %v", key, err)
	}
}

func redisRequired() bool {
	return truthy("TEST_REQUIRE_REDIS") || truthy("TEST_REQUIRE_INFRA")
}

func truthy(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
