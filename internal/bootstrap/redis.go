package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/members-console/config"
)

const redisPingTimeout = 5 * time.Second

type redisMode int

const (
	redisDirect redisMode = iota
	redisSentinel
	redisCluster
)

// ConnectRedis connects to Redis in the mode cfg selects and verifies the
// connection with a ping.
//
//nolint:ireturn // the concrete client depends on the configured mode.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	opts, mode, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch mode {
	case redisCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case redisSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if logger != nil {
		logger.Info("redis connected", "mode", mode.String(), "addr", describeRedis(opts, mode))
	}
	return client, nil
}

// redisOptions folds the three configuration modes into one option set.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, redisMode, error) {
	switch {
	case cfg.UseCluster:
		opts, err := uriOptions(cfg)
		if err != nil {
			return nil, 0, err
		}
		if nodes := trimAddrs(cfg.ClusterNodes); len(nodes) > 0 {
			opts.Addrs = nodes
		}
		if len(opts.Addrs) == 0 {
			return nil, 0, errors.New("redis cluster configuration requires at least one address")
		}
		// Cluster nodes have no database index.
		opts.DB = 0
		return opts, redisCluster, nil

	case cfg.UseSentinel:
		nodes := trimAddrs(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return nil, 0, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return nil, 0, errors.New("redis sentinel configuration requires a master name")
		}
		return &redis.UniversalOptions{
			Addrs:            nodes,
			MasterName:       cfg.SentinelMasterName,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
			DB:               cfg.DB,
		}, redisSentinel, nil

	default:
		opts, err := uriOptions(cfg)
		if err != nil {
			return nil, 0, err
		}
		if len(opts.Addrs) == 0 {
			return nil, 0, errors.New("redis direct configuration requires a URI")
		}
		return opts, redisDirect, nil
	}
}

// uriOptions reads REDIS_URI, which is either host:port or a redis URL.
// URL credentials and database win over the separate settings.
func uriOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	uri := strings.TrimSpace(cfg.URI)
	opts := &redis.UniversalOptions{Password: cfg.Password, DB: cfg.DB}
	if uri == "" {
		return opts, nil
	}
	if !isRedisURL(uri) {
		opts.Addrs = []string{uri}
		return opts, nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	if parsed.DB != 0 {
		opts.DB = parsed.DB
	}
	opts.TLSConfig = parsed.TLSConfig
	return opts, nil
}

func trimAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if a := strings.TrimSpace(addr); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// describeRedis names the target for logs without credentials.
func describeRedis(opts *redis.UniversalOptions, mode redisMode) string {
	if mode == redisSentinel {
		return opts.MasterName + "@" + strings.Join(opts.Addrs, ",")
	}
	addrs := make([]string, len(opts.Addrs))
	for i, a := range opts.Addrs {
		addrs[i] = redactAddr(a)
	}
	return strings.Join(addrs, ",")
}

// redactAddr strips any userinfo from addr.
func redactAddr(addr string) string {
	if u, err := url.Parse(addr); err == nil && u.User != nil {
		u.User = nil
		return u.String()
	}
	if i := strings.LastIndex(addr, "@"); i > -1 {
		return addr[i+1:]
	}
	return addr
}

func (m redisMode) String() string {
	switch m {
	case redisCluster:
		return "cluster"
	case redisSentinel:
		return "sentinel"
	default:
		return "direct"
	}
}
