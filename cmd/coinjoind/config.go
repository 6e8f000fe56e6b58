// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/coinjoind/coordinator"
	"github.com/btcsuite/coinjoind/internal/cfgutil"
	"github.com/btcsuite/coinjoind/netparams"
	"github.com/btcsuite/coinjoind/prison"
	"github.com/btcsuite/coinjoind/round"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultCAFilename     = "btcd.cert"
	defaultConfigFilename = "coinjoind.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "coinjoind.log"
	defaultMaxLogFileSize = 10 * 1024
	defaultMaxLogFiles    = 3
	defaultMinOpenRounds  = 1
	defaultStopTimeout    = 30 * time.Second

	// minIssuerSeedLen is the shortest accepted issuer seed in bytes.
	minIssuerSeedLen = 32
)

var (
	btcdDefaultCAFile  = filepath.Join(btcutil.AppDataDir("btcd", false), "rpc.cert")
	defaultAppDataDir  = btcutil.AppDataDir("coinjoind", false)
	defaultConfigFile  = filepath.Join(defaultAppDataDir, defaultConfigFilename)
	defaultLogDir      = filepath.Join(defaultAppDataDir, defaultLogDirname)
	defaultRoundParams = round.DefaultParameters()
)

// activeNet is the network selected by the config.
var activeNet = &netparams.MainNetParams

type config struct {
	// General application behavior
	ConfigFile     string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion    bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir        string `short:"b" long:"datadir" description:"Directory to store the ban list and round archive"`
	LogDir         string `long:"logdir" description:"Directory to log output"`
	MaxLogFileSize int64  `long:"maxlogfilesize" description:"Maximum size of a log file in KB before it is rotated"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum number of rotated log files to keep"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	TestNet3       bool   `long:"testnet" description:"Use the test Bitcoin network (version 3)"`
	RegTest        bool   `long:"regtest" description:"Use the regression test network"`
	SimNet         bool   `long:"simnet" description:"Use the simulation test network"`
	SigNet         bool   `long:"signet" description:"Use the default signet network"`

	// Chain backend options
	RPCConnect       string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of btcd RPC server to connect to (default localhost:8334, testnet: localhost:18334, simnet: localhost:18556)"`
	CAFile           string `long:"cafile" description:"File containing root certificates to authenticate a TLS connections with btcd"`
	DisableClientTLS bool   `long:"noclienttls" description:"Disable TLS for the RPC client -- NOTE: This is only allowed if the RPC client is connecting to localhost"`
	BtcdUsername     string `short:"u" long:"btcdusername" description:"Username for btcd authentication"`
	BtcdPassword     string `short:"P" long:"btcdpassword" default-mask:"-" description:"Password for btcd authentication"`
	IncludeMempool   bool   `long:"includemempool" description:"Look up registered inputs in the mempool too; unconfirmed inputs are still rejected"`

	// Coordinator options
	IssuerSeed     string        `long:"issuerseed" default-mask:"-" description:"Hex encoded seed (at least 32 bytes) the credential issuer keys of every round are derived from; random keys are generated per round when unset"`
	MinOpenRounds  int           `long:"minopenrounds" description:"Number of rounds kept open for input registration"`
	Cadence        time.Duration `long:"cadence" description:"How often the round population is checked"`
	RoundRetention time.Duration `long:"roundretention" description:"How long ended rounds stay queryable before they are archived"`
	NoteDuration   time.Duration `long:"noteduration" description:"How long inputs of Alices that failed to confirm their connection are noted"`
	BanDuration    time.Duration `long:"banduration" description:"How long inputs that failed to sign are banned"`
	MetricsListen  string        `long:"metricslisten" description:"Serve prometheus metrics on this interface/port; disabled when unset"`

	Round roundConfig `group:"Round parameters" namespace:"round"`
}

// roundConfig holds the parameters applied to every new round.
type roundConfig struct {
	MinAmount                     *cfgutil.AmountFlag `long:"minamount" description:"Smallest total input amount one participant may register"`
	MaxAmount                     *cfgutil.AmountFlag `long:"maxamount" description:"Largest total input amount one participant may register"`
	MaxInputsPerAlice             int                 `long:"maxinputsperalice" description:"Most inputs one participant may register"`
	MinInputCount                 int                 `long:"mininputs" description:"Participants needed for a round to proceed"`
	MaxInputCount                 int                 `long:"maxinputs" description:"Most inputs a round accepts"`
	FeeRate                       *cfgutil.AmountFlag `long:"feerate" description:"Mining fee rate in BTC/kvB"`
	InputRegistrationTimeout      time.Duration       `long:"inputregtimeout" description:"Duration of the input registration phase"`
	ConnectionConfirmationTimeout time.Duration       `long:"connconfirmtimeout" description:"Duration of the connection confirmation phase"`
	OutputRegistrationTimeout     time.Duration       `long:"outputregtimeout" description:"Duration of the output registration phase"`
	TransactionSigningTimeout     time.Duration       `long:"signingtimeout" description:"Duration of the transaction signing phase"`
}

// params returns the round parameters described by the config.
func (r *roundConfig) params() (*round.Parameters, error) {
	p := round.DefaultParameters()
	p.MinRegistrableAmount = r.MinAmount.Amount
	p.MaxRegistrableAmount = r.MaxAmount.Amount
	p.MaxInputCountPerAlice = r.MaxInputsPerAlice
	p.MinInputCount = r.MinInputCount
	p.MaxInputCount = r.MaxInputCount
	p.FeeRate = r.FeeRate.Amount
	p.InputRegistrationTimeout = r.InputRegistrationTimeout
	p.ConnectionConfirmationTimeout = r.ConnectionConfirmationTimeout
	p.OutputRegistrationTimeout = r.OutputRegistrationTimeout
	p.TransactionSigningTimeout = r.TransactionSigningTimeout

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// defaultConfig returns the configuration used when no options are given.
func defaultConfig() config {
	return config{
		ConfigFile:     defaultConfigFile,
		DataDir:        defaultAppDataDir,
		LogDir:         defaultLogDir,
		MaxLogFileSize: defaultMaxLogFileSize,
		MaxLogFiles:    defaultMaxLogFiles,
		DebugLevel:     defaultLogLevel,
		MinOpenRounds:  defaultMinOpenRounds,
		Cadence:        coordinator.DefaultCadence,
		RoundRetention: coordinator.DefaultRoundRetention,
		NoteDuration:   prison.DefaultNoteDuration,
		BanDuration:    prison.DefaultBanDuration,
		Round: roundConfig{
			MinAmount: cfgutil.NewAmountFlag(
				defaultRoundParams.MinRegistrableAmount,
			),
			MaxAmount: cfgutil.NewAmountFlag(
				defaultRoundParams.MaxRegistrableAmount,
			),
			MaxInputsPerAlice: defaultRoundParams.MaxInputCountPerAlice,
			MinInputCount:     defaultRoundParams.MinInputCount,
			MaxInputCount:     defaultRoundParams.MaxInputCount,
			FeeRate: cfgutil.NewAmountFlag(
				defaultRoundParams.FeeRate,
			),
			InputRegistrationTimeout:      defaultRoundParams.InputRegistrationTimeout,
			ConnectionConfirmationTimeout: defaultRoundParams.ConnectionConfirmationTimeout,
			OutputRegistrationTimeout:     defaultRoundParams.OutputRegistrationTimeout,
			TransactionSigningTimeout:     defaultRoundParams.TransactionSigningTimeout,
		},
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultAppDataDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// selectNetwork sets activeNet from the network flags. Multiple networks
// can't be selected simultaneously.
func (c *config) selectNetwork() error {
	var nets []*netparams.Params
	if c.TestNet3 {
		nets = append(nets, &netparams.TestNet3Params)
	}
	if c.RegTest {
		nets = append(nets, &netparams.RegressionNetParams)
	}
	if c.SimNet {
		nets = append(nets, &netparams.SimNetParams)
	}
	if c.SigNet {
		nets = append(nets, &netparams.SigNetParams)
	}

	switch len(nets) {
	case 0:
		activeNet = &netparams.MainNetParams
	case 1:
		activeNet = nets[0]
	default:
		return errors.New("the testnet, regtest, simnet and signet " +
			"params can't be used together -- choose one")
	}

	return nil
}

// issuerSeed decodes the configured issuer seed. Nil is returned when none
// is set.
func (c *config) issuerSeed() ([]byte, error) {
	if c.IssuerSeed == "" {
		return nil, nil
	}

	seed, err := hex.DecodeString(c.IssuerSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer seed: %w", err)
	}
	if len(seed) < minIssuerSeedLen {
		return nil, fmt.Errorf("issuer seed must be at least %d bytes",
			minIssuerSeedLen)
	}

	return seed, nil
}

// validateRPC fills in the btcd connection defaults and checks TLS may only
// be disabled for local servers.
func (c *config) validateRPC() error {
	if c.RPCConnect == "" {
		c.RPCConnect = net.JoinHostPort(
			"localhost", activeNet.RPCClientPort,
		)
	}

	// Add default port to connect flag if missing.
	var err error
	c.RPCConnect, err = cfgutil.NormalizeAddress(
		c.RPCConnect, activeNet.RPCClientPort,
	)
	if err != nil {
		return fmt.Errorf("invalid rpcconnect network address: %w", err)
	}

	local := cfgutil.IsLoopback(c.RPCConnect)
	if c.DisableClientTLS {
		if !local {
			return fmt.Errorf("the --noclienttls option may not be "+
				"used when connecting RPC to non localhost "+
				"addresses: %s", c.RPCConnect)
		}
		return nil
	}

	// If CAFile is unset, choose either the copy or local btcd cert.
	if c.CAFile == "" {
		c.CAFile = filepath.Join(c.DataDir, defaultCAFilename)

		// If the CA copy does not exist, check if we're connecting to
		// a local btcd and switch to its RPC cert if it exists.
		certExists, err := cfgutil.FileExists(c.CAFile)
		if err != nil {
			return err
		}
		if !certExists && local {
			btcdCertExists, err := cfgutil.FileExists(
				btcdDefaultCAFile,
			)
			if err != nil {
				return err
			}
			if btcdCertExists {
				c.CAFile = btcdDefaultCAFile
			}
		}
	}
	c.CAFile = cleanAndExpandPath(c.CAFile)

	return nil
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in coinjoind functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options. Command line options always take
// precedence.
func loadConfig() (*config, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err := flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	if err := cfg.selectNetwork(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, err
	}

	// Append the network type to the data and log directories so they
	// are "namespaced" per network.
	cfg.DataDir = filepath.Join(
		cleanAndExpandPath(cfg.DataDir), activeNet.Name,
	)
	cfg.LogDir = filepath.Join(
		cleanAndExpandPath(cfg.LogDir), activeNet.Name,
	)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized,
	// the logger variables may be used.
	err = initLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		cfg.MaxLogFileSize, cfg.MaxLogFiles,
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	setLogLevels(defaultLogLevel)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds. This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	if _, err := cfg.issuerSeed(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	if _, err := cfg.Round.params(); err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	if cfg.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsListen); err != nil {
			err := fmt.Errorf("invalid metricslisten address: %w",
				err)
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}
	if err := cfg.validateRPC(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	return &cfg, nil
}
