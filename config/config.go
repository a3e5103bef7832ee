// Package config collects the knobs needed to stand up a Client and
// its StaticCluster outside of per-call policy: node endpoints,
// connection/timeout/retry defaults, and the pooling sizes the
// internal packages need at construction time. Grounded on
// rpc/common/config.go's ClientConfig struct and String() formatter
// idiom, extended with this client's policy.Policy/BatchPolicy/
// ScanQueryPolicy defaults and event-context pool sizing.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkv-io/async-client/client"
	"github.com/dkv-io/async-client/cluster"
	"github.com/dkv-io/async-client/internal/admission"
	"github.com/dkv-io/async-client/policy"
)

// ClientConfig holds everything needed to build a cluster.StaticCluster
// and a client.Client: node endpoints, per-node pool sizing, and the
// default policies applied when a caller doesn't override them.
type ClientConfig struct {
	// Endpoints lists the node addresses (host:port) making up the
	// static cluster.
	Endpoints []string
	// TimeoutSecond is the default per-command timeout, seconds.
	TimeoutSecond int
	// RetryCount is the default number of retries a command attempts
	// before giving up.
	RetryCount int
	// ConnectionsPerEndpoint bounds how many pooled connections each
	// node may hold open at once.
	ConnectionsPerEndpoint int
	// MaxIdle is how long a pooled connection may sit idle before the
	// node pool's reaper closes it.
	MaxIdle time.Duration
	// BufferCutoff is the fixed-capacity slab size internal/buffer.Pool
	// hands out before falling back to one-off allocations.
	BufferCutoff int
	// EventContextPoolSize bounds how many commands may be in flight
	// across the whole client at once.
	EventContextPoolSize int
	// SupervisorInterval is how often the timeout supervisor sweeps
	// in-flight commands for expired deadlines.
	SupervisorInterval time.Duration
	// User is the credential presented during the connection auth
	// exchange. Empty means no authentication is required.
	User string

	// Policy is the default per-command policy (timeout, retries,
	// RecordExistsAction, replica preference).
	Policy policy.Policy
	// BatchPolicy is the default policy for BatchGet.
	BatchPolicy policy.BatchPolicy
	// ScanQueryPolicy is the default policy for Scan and Query.
	ScanQueryPolicy policy.ScanQueryPolicy

	// LogLevel selects the verbosity of the package-scoped loggers
	// (debug, info, warn, error).
	LogLevel string
}

// DefaultClientConfig returns a ClientConfig with the same timeout/
// retry/pooling defaults the command and policy packages already use
// on their own, plus a single localhost endpoint a caller is expected
// to override.
func DefaultClientConfig() *ClientConfig {
	pol := policy.DefaultPolicy()
	return &ClientConfig{
		Endpoints:              []string{"127.0.0.1:3000"},
		TimeoutSecond:          int(pol.Timeout / time.Second),
		RetryCount:             pol.MaxRetries,
		ConnectionsPerEndpoint: 8,
		MaxIdle:                5 * time.Minute,
		BufferCutoff:           128 * 1024,
		EventContextPoolSize:   256,
		SupervisorInterval:     20 * time.Millisecond,
		Policy:                 pol,
		BatchPolicy:            policy.DefaultBatchPolicy(),
		ScanQueryPolicy:        policy.DefaultScanQueryPolicy(),
		LogLevel:               "info",
	}
}

// String returns a formatted, multi-section representation of the
// configuration, in the same section/addField layout rpc/common/config.go's
// ClientConfig.String() uses.
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(c.ConnectionsPerEndpoint))
	addField("Max Idle", c.MaxIdle.String())
	addField("Buffer Cutoff", fmt.Sprintf("%d bytes", c.BufferCutoff))
	addField("Event Context Pool Size", strconv.Itoa(c.EventContextPoolSize))
	addField("Supervisor Interval", c.SupervisorInterval.String())
	addField("Log Level", c.LogLevel)

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(fmt.Sprintf("Node %d", i), endpoint)
	}

	addSection("Default Policy")
	addField("Timeout", c.Policy.Timeout.String())
	addField("Max Retries", strconv.Itoa(c.Policy.MaxRetries))
	addField("Replica", fmt.Sprintf("%v", c.Policy.Replica))

	return sb.String()
}

// NewCluster builds the StaticCluster reference topology described by
// c: one Node per endpoint, id'd by the endpoint string itself.
func (c *ClientConfig) NewCluster() *cluster.StaticCluster {
	nodes := make([]cluster.Node, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		nodes[i] = cluster.Node{ID: ep, Endpoint: ep}
	}
	return cluster.NewStaticCluster(nodes, c.ConnectionsPerEndpoint, c.MaxIdle, c.BufferCutoff, c.User)
}

// NewClient builds the StaticCluster topology and the Client on top of
// it in one step, for callers that don't need the Cluster on its own.
func (c *ClientConfig) NewClient() *client.Client {
	return client.New(c.NewCluster(), client.Config{
		EventContextPoolSize: c.EventContextPoolSize,
		AdmissionMode:        admission.Blocking,
		SupervisorInterval:   c.SupervisorInterval,
	})
}

// Validate reports a descriptive error for any configuration that
// would leave the client unable to reach a cluster.
func (c *ClientConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("config: at least one endpoint is required")
	}
	if c.ConnectionsPerEndpoint < 1 {
		return fmt.Errorf("config: connections-per-endpoint must be >= 1, got %d", c.ConnectionsPerEndpoint)
	}
	if c.EventContextPoolSize < 1 {
		return fmt.Errorf("config: event-context-pool-size must be >= 1, got %d", c.EventContextPoolSize)
	}
	return nil
}
