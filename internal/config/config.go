// Package config loads kismetd's configuration, grounded on the teacher's
// internal/config/config.go shape: environment-variable defaults overridden
// by flag package flags, flags taking precedence. Every key of spec §6's
// Configuration keys table and every long CLI option is covered here.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every configuration key named by spec §6.
type Config struct {
	ConfigDir    string
	SSIDMap      string
	IPMap        string
	Waypoints    bool
	WaypointData string
	Metric       bool

	LogDefault  string
	LogTypes    []string
	LogTemplate string
	DumpLimit   int
	DumpType    string
	NoiseLog    bool

	Decay time.Duration

	TCPPort      int
	MaxClients   int
	AllowedHosts string

	Sound           string
	SoundPlay       string
	SoundNew        string
	SoundTraffic    string
	SoundJunkTraffic string
	SoundGPSLock    string
	SoundGPSLost    string
	Speech          bool
	Festival        string

	WriteInterval time.Duration

	CapType      string
	CapInterface string

	GPS        bool
	GPSHost    string
	FuzzyCrypt []string
	MACFilter  []string
	BeaconLog  bool

	MaxPackets int
	Quiet      bool
	Silent     bool
	Version    bool
	Help       bool
}

// Load parses environment variables then CLI flags (flags win) into a
// Config, mirroring config.Load()'s env-then-flag precedence.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		ConfigDir:    getEnv("KISMET_CONFIGDIR", "/etc/kismetd"),
		SSIDMap:      getEnv("KISMET_SSIDMAP", "ssid_map.kismet"),
		IPMap:        getEnv("KISMET_IPMAP", "ip_map.kismet"),
		Waypoints:    getEnvBool("KISMET_WAYPOINTS", false),
		WaypointData: getEnv("KISMET_WAYPOINTDATA", "waypoints.gpx"),
		Metric:       getEnvBool("KISMET_METRIC", false),
		LogDefault:   getEnv("KISMET_LOGDEFAULT", "kismet"),
		LogTypes:     splitCSV(getEnv("KISMET_LOGTYPES", "dump,network,gps")),
		LogTemplate:  getEnv("KISMET_LOGTEMPLATE", "%n-%N.%t"),
		DumpLimit:    getEnvInt("KISMET_DUMPLIMIT", 0),
		DumpType:     getEnv("KISMET_DUMPTYPE", "pcap"),
		NoiseLog:     getEnvBool("KISMET_NOISELOG", false),
		Decay:        getEnvDuration("KISMET_DECAY", 5*time.Second),
		TCPPort:      getEnvInt("KISMET_TCPPORT", 2501),
		MaxClients:   getEnvInt("KISMET_MAXCLIENTS", 5),
		AllowedHosts: getEnv("KISMET_ALLOWEDHOSTS", ""),
		Sound:            getEnv("KISMET_SOUND", ""),
		SoundPlay:        getEnv("KISMET_SOUNDPLAY", ""),
		SoundNew:         getEnv("KISMET_SOUND_NEW", ""),
		SoundTraffic:     getEnv("KISMET_SOUND_TRAFFIC", ""),
		SoundJunkTraffic: getEnv("KISMET_SOUND_JUNKTRAFFIC", ""),
		SoundGPSLock:     getEnv("KISMET_SOUND_GPSLOCK", ""),
		SoundGPSLost:     getEnv("KISMET_SOUND_GPSLOST", ""),
		Speech:           getEnvBool("KISMET_SPEECH", false),
		Festival:         getEnv("KISMET_FESTIVAL", ""),
		WriteInterval:    getEnvDuration("KISMET_WRITEINTERVAL", 10*time.Second),
		CapType:          getEnv("KISMET_CAPTYPE", "pcapfile"),
		CapInterface:     getEnv("KISMET_CAPINTERFACE", "mon0"),
		GPS:              getEnvBool("KISMET_GPS", false),
		GPSHost:          getEnv("KISMET_GPSHOST", "localhost:2947"),
		FuzzyCrypt:       splitCSV(getEnv("KISMET_FUZZYCRYPT", "")),
		MACFilter:        splitCSV(getEnv("KISMET_MACFILTER", "")),
		BeaconLog:        getEnvBool("KISMET_BEACONLOG", true),
	}

	fs := flag.NewFlagSet("kismetd", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigDir, "config-file", cfg.ConfigDir, "configuration directory")
	logTitle := fs.String("log-title", cfg.LogDefault, "base title used by --log-types templates")
	noLogging := fs.Bool("no-logging", false, "disable all file logging")
	fs.StringVar(&cfg.CapType, "capture-type", cfg.CapType, "capture source type")
	fs.StringVar(&cfg.CapInterface, "capture-interface", cfg.CapInterface, "capture interface or pcap file path")
	logTypesFlag := fs.String("log-types", strings.Join(cfg.LogTypes, ","), "comma-separated log types (dump,network,weak,csv,xml,cisco,gps)")
	fs.StringVar(&cfg.DumpType, "dump-type", cfg.DumpType, "dump writer encoding")
	fs.IntVar(&cfg.MaxPackets, "max-packets", cfg.MaxPackets, "stop after this many packets (0 = unbounded)")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "suppress informational stderr output")
	gpsFlag := fs.String("gps", "", "gpsd host:port, or \"off\" to disable")
	fs.IntVar(&cfg.TCPPort, "port", cfg.TCPPort, "push protocol TCP port")
	fs.StringVar(&cfg.AllowedHosts, "allowed-hosts", cfg.AllowedHosts, "comma-separated allowed client hosts (empty = allow all)")
	fs.BoolVar(&cfg.Silent, "silent", cfg.Silent, "suppress status broadcasts to stderr")
	fs.BoolVar(&cfg.Version, "version", false, "print version and exit")
	fs.BoolVar(&cfg.Help, "help", false, "print usage and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	cfg.LogDefault = *logTitle
	if *noLogging {
		cfg.LogTypes = nil
	} else {
		cfg.LogTypes = splitCSV(*logTypesFlag)
	}
	if *gpsFlag == "off" {
		cfg.GPS = false
	} else if *gpsFlag != "" {
		cfg.GPS = true
		cfg.GPSHost = *gpsFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the §7 "Configuration / startup" taxonomy: a bad
// config must fail loudly and never partially start.
func (c *Config) Validate() error {
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		return fmt.Errorf("config: invalid port %d", c.TCPPort)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("config: invalid maxclients %d", c.MaxClients)
	}
	if c.CapInterface == "" {
		return fmt.Errorf("config: capture-interface must not be empty")
	}
	for _, lt := range c.LogTypes {
		if !recognizedLogType[lt] {
			return fmt.Errorf("config: unknown log type %q", lt)
		}
	}
	if len(c.LogTypes) > 0 && c.LogTemplate == "" {
		return fmt.Errorf("config: log-template required when log-types is non-empty")
	}
	return nil
}

var recognizedLogType = map[string]bool{
	"dump": true, "network": true, "weak": true, "csv": true, "xml": true, "cisco": true, "gps": true,
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
