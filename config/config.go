// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/logger"
	"github.com/eccnet/eccd/version"
)

const (
	defaultConfigFilename = "eccd.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "eccd.log"
	defaultErrLogFilename = "eccd_err.log"
	defaultDataDirname    = "data"

	defaultMaxMempool         = 300 // MB
	defaultMempoolExpiryHours = 336
	defaultLimitAncestorCount = 25
	defaultLimitAncestorSize  = 101 // KB
	defaultLimitFreeRelay     = 15  // thousand bytes per minute
	defaultMinRelayTxFee      = 10000
	defaultDBCacheSize        = 100 // MB
	defaultBlockMaxSize       = 750000
	defaultMaxOrphanTxs       = 100
)

var (
	// DefaultAppDir is the default home directory for eccd.
	DefaultAppDir = btcutil.AppDataDir("eccd", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
)

// Flags holds the configuration options both the command line and the config
// file can set.
type Flags struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir      string `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	RegressionTest bool `long:"regtest" description:"Use the regression test network"`

	MaxMempool      int64         `long:"maxmempool" description:"Keep the transaction memory pool below this many megabytes"`
	MempoolExpiry   time.Duration `long:"mempoolexpiry" description:"Do not keep transactions in the mempool longer than this duration"`
	LimitAncestors  int           `long:"limitancestorcount" description:"Do not accept transactions with more unconfirmed ancestors than this"`
	LimitDescendant int           `long:"limitdescendantcount" description:"Do not accept transactions giving an in-pool ancestor more descendants than this"`
	MinRelayTxFee   int64         `long:"minrelaytxfee" description:"The minimum transaction fee in satoshi/kB to be considered a non-zero fee"`
	LimitFreeRelay  float64       `long:"limitfreerelay" description:"Limit relay of transactions with no transaction fee to the given amount in thousands of bytes per minute"`
	NoRelayPriority bool          `long:"norelaypriority" description:"Do not require free or low-fee transactions to have high priority for relaying"`
	MaxOrphanTxs    int           `long:"maxorphantx" description:"Max number of orphan transactions to keep in memory"`
	AcceptNonStd    bool          `long:"acceptnonstd" description:"Accept and relay non-standard transactions to the network regardless of the default network settings"`
	DBCacheSize     int64         `long:"dbcachesize" description:"Coin database cache budget in megabytes"`
	BlockMaxSize    uint32        `long:"blockmaxsize" description:"Maximum block size in bytes to be used when creating a block"`
}

// Config holds the parsed configuration together with the values derived
// from it.
type Config struct {
	*Flags

	// ActiveNetParams holds the parameters of the selected network.
	ActiveNetParams *chaincfg.Params

	// DataDir is the network-specific directory for chain data.
	DataDir string
}

// defaultFlags returns the flag defaults.
func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:      defaultConfigFile,
		AppDir:          DefaultAppDir,
		DebugLevel:      defaultLogLevel,
		MaxMempool:      defaultMaxMempool,
		MempoolExpiry:   defaultMempoolExpiryHours * time.Hour,
		LimitAncestors:  defaultLimitAncestorCount,
		LimitDescendant: defaultLimitAncestorCount,
		MinRelayTxFee:   defaultMinRelayTxFee,
		LimitFreeRelay:  defaultLimitFreeRelay,
		MaxOrphanTxs:    defaultMaxOrphanTxs,
		DBCacheSize:     defaultDBCacheSize,
		BlockMaxSize:    defaultBlockMaxSize,
	}
}

// LoadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		return nil, err
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version.Version())
		os.Exit(0)
	}

	// Load additional config from file.
	parser := flags.NewParser(cfgFlags, flags.Default)
	configFile := preCfg.ConfigFile
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, errors.Wrapf(err, "error parsing config file %s",
				configFile)
		}
		// A missing config file at the default location is fine.
		if configFile != defaultConfigFile {
			return nil, errors.Wrapf(err, "config file %s cannot be "+
				"read", configFile)
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		return nil, err
	}

	activeNetParams := &chaincfg.MainNetParams
	if cfgFlags.RegressionTest {
		activeNetParams = &chaincfg.RegressionNetParams
	}

	cfg := &Config{
		Flags:           cfgFlags,
		ActiveNetParams: activeNetParams,
	}

	// All data is network specific so namespace the data directory and
	// log directory by network name.
	cfg.DataDir = filepath.Join(cfg.AppDir, defaultDataDirname,
		activeNetParams.Name)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDir, defaultLogDirname)
	}
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNetParams.Name)

	// Initialize log rotation. After this the logger package may be used.
	err = logger.InitLog(filepath.Join(cfg.LogDir, defaultLogFilename),
		filepath.Join(cfg.LogDir, defaultErrLogFilename))
	if err != nil {
		return nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			return errors.Errorf("the specified debug level [%v] "+
				"is invalid", debugLevel)
		}

		// Change the logging level for all subsystems.
		return logger.SetLogLevels(debugLevel)
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return errors.Errorf("the specified debug level "+
				"contains an invalid subsystem/level pair [%v]",
				logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate log level.
		if !validLogLevel(logLevel) {
			return errors.Errorf("the specified debug level [%v] "+
				"is invalid", logLevel)
		}

		logger.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
