// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap-incubator/tinydur/pkg/typeutil"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the sequencer configuration.
type Config struct {
	*flag.FlagSet `json:"-"`

	ConfigCheck bool `json:"-"`

	Name       string `toml:"name" json:"name"`
	Addr       string `toml:"addr" json:"addr"`
	StatusAddr string `toml:"status-addr" json:"status-addr"`

	// Replicas lists every replica address, comma separated. Transactions
	// are broadcast in this order.
	Replicas string `toml:"replicas" json:"replicas"`

	// MaxConnections bounds the number of client connections served at
	// once. Zero means unbounded.
	MaxConnections int `toml:"max-connections" json:"max-connections"`
	// ConnTimeout is the deadline for reading one commit from a client.
	ConnTimeout typeutil.Duration `toml:"conn-timeout" json:"conn-timeout"`
	// DialTimeout bounds connecting to a replica during a broadcast.
	DialTimeout    typeutil.Duration `toml:"dial-timeout" json:"dial-timeout"`
	MaxMessageSize typeutil.ByteSize `toml:"max-message-size" json:"max-message-size"`

	// Log related config.
	Log log.Config `toml:"log" json:"log"`

	configFile string

	// For all warnings during parsing.
	WarningMsgs []string

	logger   *zap.Logger
	logProps *log.ZapProperties
}

// NewConfig creates a new config.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.FlagSet = flag.NewFlagSet("sequencer", flag.ContinueOnError)
	fs := cfg.FlagSet

	fs.StringVar(&cfg.configFile, "config", "", "Config file")
	fs.BoolVar(&cfg.ConfigCheck, "config-check", false, "check config file validity and exit")

	fs.StringVar(&cfg.Name, "name", "", "human-readable name for this sequencer")
	fs.StringVar(&cfg.Addr, "addr", "", "address for client commits")
	fs.StringVar(&cfg.StatusAddr, "status-addr", "", "HTTP status address, empty to disable")
	fs.StringVar(&cfg.Replicas, "replicas", "", "replica addresses in broadcast order, e.g. 127.0.0.1:20160,127.0.0.1:20161")

	fs.StringVar(&cfg.Log.Level, "L", "", "log level: debug, info, warn, error, fatal (default 'info')")
	fs.StringVar(&cfg.Log.File.Filename, "log-file", "", "log file path")

	return cfg
}

const (
	defaultName           = "sequencer"
	defaultAddr           = "127.0.0.1:20100"
	defaultMaxConnections = 1024
	defaultConnTimeout    = 10 * time.Second
	defaultDialTimeout    = 3 * time.Second
	defaultMaxMessageSize = 4 * 1024 * 1024
)

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustInt(v *int, defValue int) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustDuration(v *typeutil.Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}

func adjustByteSize(v *typeutil.ByteSize, defValue uint64) {
	if *v == 0 {
		*v = typeutil.ByteSize(defValue)
	}
}

// Parse parses flag definitions from the argument list.
func (c *Config) Parse(arguments []string) error {
	// Parse first to get config file.
	err := c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.WithStack(err)
	}

	// Load config file if specified.
	var meta *toml.MetaData
	if c.configFile != "" {
		meta, err = c.configFromFile(c.configFile)
		if err != nil {
			return err
		}
	}

	// Parse again to replace with command line options.
	err = c.FlagSet.Parse(arguments)
	if err != nil {
		return errors.WithStack(err)
	}

	if len(c.FlagSet.Args()) != 0 {
		return errors.Errorf("'%s' is an invalid flag", c.FlagSet.Arg(0))
	}

	return c.Adjust(meta)
}

// Validate is used to validate if some configurations are right.
func (c *Config) Validate() error {
	if len(c.ReplicaAddrs()) == 0 {
		return errors.New("at least one replica must be configured")
	}
	seen := make(map[string]struct{})
	for _, addr := range c.ReplicaAddrs() {
		if _, ok := seen[addr]; ok {
			return errors.Errorf("replica %s is configured twice", addr)
		}
		seen[addr] = struct{}{}
	}
	if c.MaxConnections < 0 {
		return errors.Errorf("max-connections must not be negative, got %d", c.MaxConnections)
	}
	if uint64(c.MaxMessageSize) > uint64(^uint32(0)) {
		return errors.Errorf("max-message-size must be less than 4GiB, got %d", c.MaxMessageSize)
	}
	return nil
}

func checkUndecoded(meta *toml.MetaData) error {
	if meta == nil {
		return nil
	}
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	errInfo := "Config contains undefined item: "
	for _, key := range undecoded {
		errInfo += key.String() + ", "
	}
	return errors.New(errInfo[:len(errInfo)-2])
}

// Adjust fills in defaults and validates the result.
func (c *Config) Adjust(meta *toml.MetaData) error {
	if err := checkUndecoded(meta); err != nil {
		c.WarningMsgs = append(c.WarningMsgs, err.Error())
	}

	if c.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return errors.WithStack(err)
		}
		adjustString(&c.Name, fmt.Sprintf("%s-%s", defaultName, hostname))
	}
	adjustString(&c.Addr, defaultAddr)
	adjustInt(&c.MaxConnections, defaultMaxConnections)
	adjustDuration(&c.ConnTimeout, defaultConnTimeout)
	adjustDuration(&c.DialTimeout, defaultDialTimeout)
	adjustByteSize(&c.MaxMessageSize, defaultMaxMessageSize)

	return c.Validate()
}

// ReplicaAddrs returns the configured replicas in broadcast order.
func (c *Config) ReplicaAddrs() []string {
	var addrs []string
	for _, addr := range strings.Split(c.Replicas, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Clone returns a cloned configuration.
func (c *Config) Clone() *Config {
	cfg := &Config{}
	*cfg = *c
	return cfg
}

func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "<nil>"
	}
	return string(data)
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) (*toml.MetaData, error) {
	meta, err := toml.DecodeFile(path, c)
	return &meta, errors.WithStack(err)
}

// SetupLogger setup the logger.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	c.logger = lg
	c.logProps = p
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// GetZapLogProperties gets properties of the zap logger.
func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}
