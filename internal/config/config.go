// Package config defines the proxy processes' configuration surface,
// in the teacher's style (kv/config.Config): a flat struct populated
// from a TOML file and pflag command-line overrides, validated once at
// startup. docker/go-units parses human-readable size options
// (mem_bytes_limit, transaction_size_limit); gopsutil supplies a
// memory-aware default for mem_bytes_limit when the operator leaves it
// unset.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/mem"
	"github.com/spf13/pflag"
)

// Config is the full set of tunables for a commit-proxy or grv-proxy
// process.
type Config struct {
	ListenAddr     string `toml:"listen-addr"`
	AdminAddr      string `toml:"admin-addr"`
	ResolverCount  int    `toml:"resolver-count"`
	LogLevel       string `toml:"log-level"`

	MaxBatchInterval            time.Duration `toml:"max-batch-interval"`
	CommitBatchIntervalFromIdle time.Duration `toml:"commit-batch-interval-from-idle"`
	MinCommitBatchInterval      time.Duration `toml:"min-commit-batch-interval"`
	MaxCommitBatchInterval      time.Duration `toml:"max-commit-batch-interval"`
	MaxBatchCount               int           `toml:"max-batch-count"`

	TransactionSizeLimit string `toml:"transaction-size-limit"`
	MemBytesLimit        string `toml:"mem-bytes-limit"`

	MaxReadTransactionLifeVersions int64 `toml:"max-read-transaction-life-versions"`
	MaxWriteTransactionLifeVersions int64 `toml:"max-write-transaction-life-versions"`
	ResolverCoalesceTime            time.Duration `toml:"resolver-coalesce-time"`

	GRVBatchTime      time.Duration `toml:"grv-batch-time"`
	GRVProxyCount     int           `toml:"grv-proxy-count"`
	MaxRequestsToStart int          `toml:"max-requests-to-start"`

	CommitSampleCost float64 `toml:"commit-sample-cost"`

	EtcdEndpoints []string `toml:"etcd-endpoints"`
	CoordinatorsKey string `toml:"coordinators-key"`

	// transactionSizeLimitBytes and memBytesLimitBytes are the parsed
	// (by Validate) integer forms of the human-readable string fields
	// above, the way docker/go-units callers typically split config
	// surface from runtime surface.
	transactionSizeLimitBytes int64
	memBytesLimitBytes        int64
}

// minTransactionSizeLimit/maxTransactionSizeLimit bound the database-level
// transaction_size_limit option the same way the per-request value is
// bounded, per this repository's resolution of the corresponding Open
// Question (see DESIGN.md): configuring either end of the knob
// inconsistently with the per-transaction bound is rejected at startup
// rather than only at commit time.
const (
	minTransactionSizeLimit = 32
	maxTransactionSizeLimit = 10_000_000
)

// NewDefaultConfig returns a Config with the teacher-style defaults: a
// conservative batching window and a memory limit derived from the
// host's available RAM when gopsutil can read it.
func NewDefaultConfig() *Config {
	memLimit := "2GiB"
	if v, err := mem.VirtualMemory(); err == nil && v.Total > 0 {
		memLimit = units.BytesSize(float64(v.Total) / 4)
	}
	return &Config{
		ListenAddr:    "0.0.0.0:4500",
		AdminAddr:     "0.0.0.0:4501",
		ResolverCount: 1,
		LogLevel:      "info",

		MaxBatchInterval:            10 * time.Millisecond,
		CommitBatchIntervalFromIdle: time.Millisecond,
		MinCommitBatchInterval:      time.Millisecond,
		MaxCommitBatchInterval:      20 * time.Millisecond,
		MaxBatchCount:               1000,

		TransactionSizeLimit: "10000000B",
		MemBytesLimit:        memLimit,

		MaxReadTransactionLifeVersions:  5_000_000,
		MaxWriteTransactionLifeVersions: 5_000_000,
		ResolverCoalesceTime:            5 * time.Second,

		GRVBatchTime:       time.Millisecond,
		GRVProxyCount:       1,
		MaxRequestsToStart:  100,

		CommitSampleCost: 100,

		CoordinatorsKey: "/txnproxy/coordinators",
	}
}

// NewTestConfig returns a Config tuned for fast, deterministic tests:
// tiny windows, a small memory budget, a single resolver.
func NewTestConfig() *Config {
	c := NewDefaultConfig()
	c.MaxBatchInterval = time.Millisecond
	c.MemBytesLimit = "16MiB"
	c.TransactionSizeLimit = "1MiB"
	c.ResolverCount = 1
	return c
}

// RegisterFlags binds pflag overrides for every Config field onto fs,
// following the teacher's cmd/*/main.go convention of flags layered
// over a TOML base.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ListenAddr, "listen-addr", c.ListenAddr, "client-facing listen address")
	fs.StringVar(&c.AdminAddr, "admin-addr", c.AdminAddr, "admin HTTP listen address")
	fs.IntVar(&c.ResolverCount, "resolver-count", c.ResolverCount, "number of configured resolvers")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.TransactionSizeLimit, "transaction-size-limit", c.TransactionSizeLimit, "per-transaction byte budget")
	fs.StringVar(&c.MemBytesLimit, "mem-bytes-limit", c.MemBytesLimit, "in-flight commit batch memory budget")
	fs.StringSliceVar(&c.EtcdEndpoints, "etcd-endpoints", c.EtcdEndpoints, "coordinated-state etcd endpoints")
}

// LoadFile decodes a TOML file into c, leaving fields not present in
// the file at their current (default) value.
func LoadFile(path string, c *Config) error {
	_, err := toml.DecodeFile(path, c)
	return errors.Wrapf(err, "config: decoding %s", path)
}

// Validate parses the human-readable size fields and checks the
// invariants spec.md section 9 names plus this repository's Open
// Question resolutions. It must be called once after flags and file
// loading, before the parsed *Bytes accessors are used.
func (c *Config) Validate() error {
	sizeLimit, err := units.RAMInBytes(c.TransactionSizeLimit)
	if err != nil {
		return errors.Wrapf(err, "config: transaction-size-limit %q", c.TransactionSizeLimit)
	}
	if sizeLimit < minTransactionSizeLimit || sizeLimit > maxTransactionSizeLimit {
		return errors.Errorf("config: transaction-size-limit %d out of range [%d, %d]", sizeLimit, minTransactionSizeLimit, maxTransactionSizeLimit)
	}
	c.transactionSizeLimitBytes = sizeLimit

	memLimit, err := units.RAMInBytes(c.MemBytesLimit)
	if err != nil {
		return errors.Wrapf(err, "config: mem-bytes-limit %q", c.MemBytesLimit)
	}
	if memLimit <= 0 {
		return errors.New("config: mem-bytes-limit must be positive")
	}
	c.memBytesLimitBytes = memLimit

	if c.ResolverCount <= 0 {
		return errors.New("config: resolver-count must be positive")
	}
	if c.MaxBatchCount <= 0 {
		return errors.New("config: max-batch-count must be positive")
	}
	if c.MinCommitBatchInterval > c.MaxCommitBatchInterval {
		return errors.New("config: min-commit-batch-interval exceeds max-commit-batch-interval")
	}
	return nil
}

// TransactionSizeLimitBytes returns the parsed byte limit. Valid only
// after Validate succeeds.
func (c *Config) TransactionSizeLimitBytes() int64 { return c.transactionSizeLimitBytes }

// MemBytesLimitBytes returns the parsed byte limit. Valid only after
// Validate succeeds.
func (c *Config) MemBytesLimitBytes() int64 { return c.memBytesLimitBytes }
