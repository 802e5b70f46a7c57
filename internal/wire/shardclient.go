package wire

import (
	"context"
	"fmt"
)

// ShardClient is a typed view of Client scoped to one shard's base URL
// (e.g. "http://localhost:5001"). It speaks the same put/get/del/
// bulk_import/shutdown/health contract a shard serves, so the router uses
// it for forwarding and the membership controller uses it for migration
// and health probes.
type ShardClient struct {
	base   string
	client *Client
}

// NewShardClient returns a ShardClient addressing base.
func NewShardClient(base string, client *Client) *ShardClient {
	if client == nil {
		client = NewClient()
	}
	return &ShardClient{base: base, client: client}
}

func (c *ShardClient) Put(ctx context.Context, key, value string) error {
	url := WithQuery(c.base+"/put", map[string]string{"key": key, "value": value})
	status, err := c.client.Do(ctx, "PUT", url, nil, nil)
	if err != nil {
		return err
	}
	if status == 503 {
		return ErrDraining
	}
	if status != 200 {
		return fmt.Errorf("%w: put returned %d", ErrShardUnreachable, status)
	}
	return nil
}

func (c *ShardClient) Get(ctx context.Context, key string) (string, error) {
	url := WithQuery(c.base+"/get", map[string]string{"key": key})
	var resp GetResponse
	status, err := c.client.Do(ctx, "GET", url, nil, &resp)
	if err != nil {
		return "", err
	}
	if status == 404 {
		return "", ErrKeyNotFound
	}
	if status != 200 {
		return "", fmt.Errorf("%w: get returned %d", ErrShardUnreachable, status)
	}
	return resp.Value, nil
}

func (c *ShardClient) Delete(ctx context.Context, key string) error {
	url := WithQuery(c.base+"/del", map[string]string{"key": key})
	status, err := c.client.Do(ctx, "DEL", url, nil, nil)
	if err != nil {
		return err
	}
	if status == 404 {
		return ErrKeyNotFound
	}
	if status == 503 {
		return ErrDraining
	}
	if status != 200 {
		return fmt.Errorf("%w: del returned %d", ErrShardUnreachable, status)
	}
	return nil
}

// BulkImport merges kv into the shard, used during remove-shard migration.
func (c *ShardClient) BulkImport(ctx context.Context, kv map[string]string) error {
	status, err := c.client.Do(ctx, "POST", c.base+"/bulk_import", BulkImportRequest{Data: kv}, nil)
	if err != nil {
		return err
	}
	if status == 503 {
		return ErrDraining
	}
	if status != 200 {
		return fmt.Errorf("%w: bulk_import returned %d", ErrShardUnreachable, status)
	}
	return nil
}

// Drain marks the shard as draining and blocks until every operation
// admitted before this call has completed. It is the first step of the
// remove-shard migration, resolving the migration race by ensuring no
// write lands on the departing shard after its contents are read.
func (c *ShardClient) Drain(ctx context.Context) error {
	status, err := c.client.Do(ctx, "POST", c.base+"/drain", nil, nil)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("%w: drain returned %d", ErrShardUnreachable, status)
	}
	return nil
}

// Export returns a departing shard's full contents, to be handed to its
// migration recipient via BulkImport.
func (c *ShardClient) Export(ctx context.Context) (map[string]string, error) {
	var resp ExportResponse
	status, err := c.client.Do(ctx, "GET", c.base+"/export", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("%w: export returned %d", ErrShardUnreachable, status)
	}
	return resp.Data, nil
}

// Shutdown asks the shard to flush and terminate, blocking until it
// acknowledges.
func (c *ShardClient) Shutdown(ctx context.Context) error {
	status, err := c.client.Do(ctx, "POST", c.base+"/shutdown", nil, nil)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("%w: shutdown returned %d", ErrShardUnreachable, status)
	}
	return nil
}

// Health probes the shard's liveness endpoint. It is used by the
// membership controller's add-shard reachability wait.
func (c *ShardClient) Health(ctx context.Context) error {
	status, err := c.client.Do(ctx, "GET", c.base+"/health", nil, nil)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("%w: health returned %d", ErrShardUnreachable, status)
	}
	return nil
}
