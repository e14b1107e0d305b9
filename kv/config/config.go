package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap-incubator/tinydur/pkg/logutil"
	"github.com/pingcap-incubator/tinydur/pkg/typeutil"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
)

type Config struct {
	Name       string `toml:"name" json:"name"`
	Addr       string `toml:"addr" json:"addr"`
	StatusAddr string `toml:"status-addr" json:"status-addr"`

	// MaxConnections bounds the number of connections served at once. Zero
	// means unbounded.
	MaxConnections int `toml:"max-connections" json:"max-connections"`
	// ConnTimeout is the deadline for reading a request and writing its reply.
	ConnTimeout    typeutil.Duration `toml:"conn-timeout" json:"conn-timeout"`
	MaxMessageSize typeutil.ByteSize `toml:"max-message-size" json:"max-message-size"`

	// ApplyGapTimeout is how long later transactions wait for a missing
	// tx_id before it is skipped. Zero waits forever.
	ApplyGapTimeout typeutil.Duration `toml:"apply-gap-timeout" json:"apply-gap-timeout"`

	// DecisionJournal keeps one JSON line per certified transaction when a
	// filename is set.
	DecisionJournal logutil.JournalConfig `toml:"decision-journal" json:"decision-journal"`

	Log log.Config `toml:"log" json:"log"`
}

const (
	KB uint64 = 1024
	MB uint64 = 1024 * 1024
	GB uint64 = 1024 * 1024 * 1024
)

func (c *Config) Validate() error {
	if len(c.Addr) == 0 {
		return errors.New("addr must be set")
	}
	if c.MaxConnections < 0 {
		return errors.Errorf("max-connections must not be negative, got %d", c.MaxConnections)
	}
	if c.ConnTimeout.Duration <= 0 {
		return errors.Errorf("conn-timeout must be greater than 0, got %s", c.ConnTimeout.Duration)
	}
	if c.MaxMessageSize == 0 || uint64(c.MaxMessageSize) > 4*GB-1 {
		return errors.Errorf("max-message-size must be in (0, 4GiB), got %d", c.MaxMessageSize)
	}
	if c.ApplyGapTimeout.Duration < 0 {
		return errors.Errorf("apply-gap-timeout must not be negative, got %s", c.ApplyGapTimeout.Duration)
	}
	if c.DecisionJournal.Filename != "" && c.DecisionJournal.MaxSize <= 0 {
		return errors.New("decision-journal.max-size must be greater than 0")
	}
	if len(c.Name) == 0 {
		c.Name = "replica-" + strings.Replace(c.Addr, ":", "-", -1)
	}
	return nil
}

// LoadFile overlays the TOML file at path onto c. Unknown keys are an error
// so that typos do not silently fall back to defaults.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return errors.Errorf("config %s contains undefined items: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config(name: %s, addr: %s, status-addr: %s, max-connections: %d, conn-timeout: %s, max-message-size: %d, apply-gap-timeout: %s)",
		c.Name, c.Addr, c.StatusAddr, c.MaxConnections, c.ConnTimeout.Duration, c.MaxMessageSize, c.ApplyGapTimeout.Duration)
}

func NewDefaultConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1:20160",
		StatusAddr:     "127.0.0.1:20180",
		MaxConnections: 1024,
		ConnTimeout:    typeutil.NewDuration(10 * time.Second),
		MaxMessageSize: typeutil.ByteSize(4 * MB),
		DecisionJournal: logutil.JournalConfig{
			MaxSize:    64,
			MaxBackups: 4,
			MaxDays:    7,
		},
		Log: log.Config{Level: logutil.DefaultLogLevel()},
	}
}

func NewTestConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1:0",
		MaxConnections: 64,
		ConnTimeout:    typeutil.NewDuration(2 * time.Second),
		MaxMessageSize: typeutil.ByteSize(1 * MB),
		DecisionJournal: logutil.JournalConfig{
			MaxSize:    1,
			MaxBackups: 1,
		},
		Log: log.Config{Level: logutil.DefaultLogLevel()},
	}
}
