// Package consul publishes anycast snapshots to the Consul KV store, where
// resolver nodes and consul-template pick them up.
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"edgeroute/api/distribute"
)

type Client struct {
	api    *consulapi.Client
	prefix string
}

func NewClient(addr, prefix string) (*Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	if prefix == "" {
		prefix = "edgeroute/anycast"
	}
	return &Client{api: client, prefix: strings.Trim(prefix, "/")}, nil
}

// Healthy checks connectivity to Consul.
func (c *Client) Healthy() error {
	_, err := c.api.Status().Leader()
	return err
}

func (c *Client) Name() string { return "consul" }

// Key is the KV path a domain's snapshot is written to.
func (c *Client) Key(domain string) string {
	return c.prefix + "/" + strings.ToLower(domain)
}

// Publish writes snap as JSON under Key(snap.Domain).
func (c *Client) Publish(ctx context.Context, snap distribute.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	opts := (&consulapi.WriteOptions{}).WithContext(ctx)
	if _, err := c.api.KV().Put(&consulapi.KVPair{Key: c.Key(snap.Domain), Value: data}, opts); err != nil {
		return fmt.Errorf("kv put %s: %w", c.Key(snap.Domain), err)
	}
	return nil
}

var _ distribute.Publisher = (*Client)(nil)
