package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cookiechain:"

// RedisStore keeps requests as JSON strings and responses in one sorted set
// per request and environment, scored by creation time in milliseconds.
// Members are the JSON prefixed with a zero-padded insertion sequence, so
// responses created in the same millisecond sort by insertion order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at addr and checks the connection.
// Keys are namespaced with prefix, or "cookiechain:" if prefix is empty.
func NewRedisStore(ctx context.Context, addr, prefix string) (RedisStore, error) {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return RedisStore{}, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return RedisStore{client: client, prefix: prefix}, nil
}

func (s RedisStore) requestKey(id string) string {
	return s.prefix + "request:" + id
}

// responsesKey length-prefixes the environment so that no pair of
// environment and request id maps to the key of another pair.
func (s RedisStore) responsesKey(requestID, environment string) string {
	return s.prefix + "responses:" + strconv.Itoa(len(environment)) + ":" + environment + ":" + requestID
}

func (s RedisStore) sequenceKey() string {
	return s.prefix + "sequence"
}

func (s RedisStore) Request(ctx context.Context, id string) (*Request, error) {
	data, err := s.client.Get(ctx, s.requestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id, err)
	}
	return &req, nil
}

func (s RedisStore) PutRequest(ctx context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.requestKey(req.ID), data, 0).Err()
}

func (s RedisStore) LatestResponse(ctx context.Context, requestID, environment string) (*Response, error) {
	members, err := s.client.ZRevRange(ctx, s.responsesKey(requestID, environment), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	_, data, ok := strings.Cut(members[0], ":")
	if !ok {
		return nil, fmt.Errorf("decode response for %s: missing sequence", requestID)
	}
	var res Response
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", requestID, err)
	}
	return &res, nil
}

func (s RedisStore) PutResponse(ctx context.Context, res Response) error {
	res = res.withID()
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	seq, err := s.client.Incr(ctx, s.sequenceKey()).Result()
	if err != nil {
		return fmt.Errorf("next response sequence: %w", err)
	}
	return s.client.ZAdd(ctx, s.responsesKey(res.RequestID, res.Environment), redis.Z{
		Score:  float64(res.CreatedAt.UnixMilli()),
		Member: fmt.Sprintf("%020d:%s", seq, data),
	}).Err()
}

func (s RedisStore) Close() error {
	return s.client.Close()
}
