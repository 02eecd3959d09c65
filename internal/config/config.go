package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"emberdb/internal/storage/memtable"
)

const (
	DefaultDir          = "./data"
	DefaultMemTableSize = 4 << 20
	DefaultLogLevel     = "info"
	DefaultAddr         = ":8080"

	DefaultBlockSizeThreshold = 4096
	DefaultBlockGroupSize     = 16
	DefaultFilterBitsPerKey   = 10
	DefaultBlockCacheSize     = 64
)

// Environment variables read by Load. A .env file in the working directory is
// loaded first; variables already set in the environment win.
const (
	EnvConfigFile = "EMBERDB_CONFIG"
	EnvDir        = "EMBERDB_DIR"
	EnvAddr       = "EMBERDB_ADDR"
	EnvLogLevel   = "EMBERDB_LOG_LEVEL"
)

type Config struct {
	Dir string `yaml:"dir"`

	// memtable is flushed to a table once its arena holds this many bytes
	MemTableSize uint64 `yaml:"memtable_size"`

	Table  TableConfig  `yaml:"table"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`

	MemTableConstructor memtable.MemTableConstructor `yaml:"-"`
}

// TableConfig controls the layout of table files.
type TableConfig struct {
	// a data block is cut once its content reaches this size
	BlockSizeThreshold uint64 `yaml:"block_size_threshold"`
	// entries between restart points inside a block
	BlockGroupSize   int  `yaml:"block_group_size"`
	FilterBitsPerKey int  `yaml:"filter_bits_per_key"`
	BlockCacheSize   int  `yaml:"block_cache_size"` // data blocks cached per reader
	SyncOnFinish     bool `yaml:"sync_on_finish"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty logs to stdout
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultTableConfig returns the table layout used when nothing is configured.
func DefaultTableConfig() TableConfig {
	c := TableConfig{}
	c.repair()
	return c
}

func NewConfig(dir string, opts ...ConfigOption) (*Config, error) {
	c := Config{
		Dir: dir,
	}

	for _, opt := range opts {
		opt(&c)
	}

	repair(&c)

	return &c, c.check()
}

// FromFile reads a yaml config. Missing fields get their defaults.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	repair(&c)

	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load builds the process config: .env first, then the yaml file named by
// EMBERDB_CONFIG (or path, when given), then per-field env overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	var (
		c   *Config
		err error
	)
	if path != "" {
		c, err = FromFile(path)
	} else {
		c, err = NewConfig(envOr(EnvDir, DefaultDir))
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv()
	return c, c.check()
}

func (c *Config) applyEnv() {
	c.Dir = envOr(EnvDir, c.Dir)
	c.Server.Addr = envOr(EnvAddr, c.Server.Addr)
	c.Log.Level = envOr(EnvLogLevel, c.Log.Level)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// check makes sure the data directory exists.
func (c *Config) check() error {
	if c.Dir == "" {
		return errors.New("config: empty data dir")
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return errors.Wrapf(err, "create data dir %s", c.Dir)
	}
	return nil
}

type ConfigOption func(*Config)

func WithMemTableSize(size uint64) ConfigOption {
	return func(c *Config) {
		c.MemTableSize = size
	}
}

func WithBlockSizeThreshold(size uint64) ConfigOption {
	return func(c *Config) {
		c.Table.BlockSizeThreshold = size
	}
}

func WithBlockGroupSize(size int) ConfigOption {
	return func(c *Config) {
		c.Table.BlockGroupSize = size
	}
}

func WithFilterBitsPerKey(bits int) ConfigOption {
	return func(c *Config) {
		c.Table.FilterBitsPerKey = bits
	}
}

func WithBlockCacheSize(blocks int) ConfigOption {
	return func(c *Config) {
		c.Table.BlockCacheSize = blocks
	}
}

func WithSyncOnFinish(sync bool) ConfigOption {
	return func(c *Config) {
		c.Table.SyncOnFinish = sync
	}
}

func WithLog(level, file string) ConfigOption {
	return func(c *Config) {
		c.Log = LogConfig{Level: level, File: file}
	}
}

func WithAddr(addr string) ConfigOption {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

func WithMemTableConstructor(constructor memtable.MemTableConstructor) ConfigOption {
	return func(c *Config) {
		c.MemTableConstructor = constructor
	}
}

func repair(c *Config) {
	if c.MemTableSize == 0 {
		c.MemTableSize = DefaultMemTableSize
	}
	c.Table.repair()
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.MemTableConstructor == nil {
		c.MemTableConstructor = memtable.NewSkipListMemTable
	}
}

func (t *TableConfig) repair() {
	if t.BlockSizeThreshold == 0 {
		t.BlockSizeThreshold = DefaultBlockSizeThreshold
	}
	if t.BlockGroupSize <= 0 {
		t.BlockGroupSize = DefaultBlockGroupSize
	}
	if t.FilterBitsPerKey <= 0 {
		t.FilterBitsPerKey = DefaultFilterBitsPerKey
	}
	if t.BlockCacheSize <= 0 {
		t.BlockCacheSize = DefaultBlockCacheSize
	}
}
