package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// Remote mirrors id-map and catalog to a namespaced key-value store,
// replacing the CLI-subprocess approach of the original tooling with a
// direct client connection.
type Remote struct {
	rdb       *redis.Client
	namespace string
}

func NewRemote(rdb *redis.Client, namespace string) *Remote {
	return &Remote{rdb: rdb, namespace: namespace}
}

func (r *Remote) key(name string) string { return fmt.Sprintf("%s:%s", r.namespace, name) }

func (r *Remote) GetIDMap(ctx context.Context) ([]catalog.IDMapEntry, error) {
	data, err := r.getTolerant(ctx, r.key("id-map"))
	if err != nil {
		return nil, err
	}
	return decodeIDMap(data)
}

func (r *Remote) PutIDMap(ctx context.Context, idMap []catalog.IDMapEntry) error {
	return r.putJSON(ctx, r.key("id-map"), idMap)
}

func (r *Remote) GetGamesData(ctx context.Context) (catalog.Envelope, error) {
	data, err := r.getTolerant(ctx, r.key("games-data"))
	if err != nil {
		return catalog.Envelope{}, err
	}
	return decodeGamesData(data)
}

func (r *Remote) PutGamesData(ctx context.Context, env catalog.Envelope) error {
	return r.putJSON(ctx, r.key("games-data"), env)
}

func (r *Remote) Backup(ctx context.Context, env catalog.Envelope) error {
	name := fmt.Sprintf("backup:%s", time.Now().UTC().Format("2006_01_02_150405"))
	return r.putJSON(ctx, r.key(name), env)
}

func (r *Remote) getTolerant(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get %s: %w", key, err)
	}
	return data, nil
}

func (r *Remote) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("persistence: set %s: %w", key, err)
	}
	return nil
}
