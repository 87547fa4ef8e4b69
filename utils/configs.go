package utils

import (
	"fmt"
	"log/syslog"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/urfave/cli/v2"
)

const (
	// EtcdNameStr is a string constant for etcd state-store
	EtcdNameStr = "etcd"
	// ConsulNameStr is a string constant for consul state-store
	ConsulNameStr = "consul"
	// FakeNameStr is the in-memory state-store, used by tests and dry runs
	FakeNameStr = "fakedriver"

	defaultEtcdURL   = "http://127.0.0.1:2379"
	defaultListenURL = "127.0.0.1:9010"
)

func envVar(binary, name string) []string {
	return []string{fmt.Sprintf("CONTIV_%s_%s", strings.ToUpper(binary), name)}
}

// BuildRendererFlags CLI renderer flags for given binary
func BuildRendererFlags(binary string) []cli.Flag {
	binLower := strings.ToLower(binary)
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Aliases: []string{"host-label"},
			EnvVars: envVar(binary, "HOST"),
			Usage:   fmt.Sprintf("restrict %s to the switch of this node id (default: all nodes)", binLower),
		},
		&cli.StringFlag{
			Name:    "tunnel-type",
			Value:   "vxlan",
			EnvVars: envVar(binary, "TUNNEL_TYPE"),
			Usage:   fmt.Sprintf("set %s overlay tunnel type, options: [vxlan, vxlan-gpe]", binLower),
		},
		&cli.StringFlag{
			Name:    "listen-url",
			Value:   defaultListenURL,
			EnvVars: envVar(binary, "LISTEN_URL"),
			Usage:   fmt.Sprintf("set %s inspect and metrics listen address", binLower),
		},
		&cli.StringFlag{
			Name:    "ofp-listen-url",
			EnvVars: envVar(binary, "OFP_LISTEN_URL"),
			Usage:   fmt.Sprintf("set %s openflow controller listen address, e.g. :6653 (default: switches are simulated in memory)", binLower),
		},
		&cli.DurationFlag{
			Name:    "resync-interval",
			Value:   5 * time.Minute,
			EnvVars: envVar(binary, "RESYNC_INTERVAL"),
			Usage:   fmt.Sprintf("set %s full resync period, 0 disables it", binLower),
		},
	}
}

// RendererConfigs validated renderer configs
type RendererConfigs struct {
	HostLabel      string
	TunnelType     string
	ListenURL      string
	ControllerURL  string
	ResyncInterval time.Duration
}

// BuildDBFlags CLI storage flags for given binary
func BuildDBFlags(binary string) []cli.Flag {
	binLower := strings.ToLower(binary)
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "etcd-endpoints",
			Aliases: []string{"etcd"},
			EnvVars: envVar(binary, "ETCD_ENDPOINTS"),
			Usage:   fmt.Sprintf("a comma-delimited list of %s etcd endpoints (default: %s)", binLower, defaultEtcdURL),
		},
		&cli.StringFlag{
			Name:    "consul-endpoints",
			Aliases: []string{"consul"},
			EnvVars: envVar(binary, "CONSUL_ENDPOINTS"),
			Usage:   fmt.Sprintf("a comma-delimited list of %s consul endpoints", binLower),
		},
	}
}

// DBConfigs validated db configs
type DBConfigs struct {
	StoreDriver string
	StoreURL    string
}

// BuildLogFlags CLI logging flags for given binary
func BuildLogFlags(binary string) []cli.Flag {
	binLower := strings.ToLower(binary)
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "INFO",
			EnvVars: envVar(binary, "LOG_LEVEL"),
			Usage:   fmt.Sprintf("set %s log level, options: [DEBUG, INFO, WARN, ERROR]", binLower),
		},
		&cli.BoolFlag{
			Name:    "use-json-log",
			Aliases: []string{"json-log"},
			EnvVars: envVar(binary, "USE_JSON_LOG"),
			Usage:   fmt.Sprintf("set %s log format to json if this flag is provided", binLower),
		},
		&cli.BoolFlag{
			Name:    "use-syslog",
			Aliases: []string{"syslog"},
			EnvVars: envVar(binary, "USE_SYSLOG"),
			Usage:   fmt.Sprintf("set %s send log to syslog if this flag is provided", binLower),
		},
		&cli.StringFlag{
			Name:    "syslog-url",
			Value:   "udp://127.0.0.1:514",
			EnvVars: envVar(binary, "SYSLOG_URL"),
			Usage:   fmt.Sprintf("set %s syslog url in format protocol://ip:port", binLower),
		},
	}
}

func syslogPriority(loglevel logrus.Level) syslog.Priority {
	switch loglevel {
	case logrus.PanicLevel, logrus.FatalLevel:
		return syslog.LOG_CRIT
	case logrus.ErrorLevel:
		return syslog.LOG_ERR
	case logrus.WarnLevel:
		return syslog.LOG_WARNING
	case logrus.InfoLevel:
		return syslog.LOG_INFO
	default:
		return syslog.LOG_DEBUG
	}
}

func configureSyslog(binary string, loglevel logrus.Level, syslogRawURL string) error {
	// disable colors if we're writing to syslog *and* we're the default text
	// formatter, because the tty detection is useless here.
	if tf, ok := logrus.StandardLogger().Formatter.(*logrus.TextFormatter); ok {
		tf.DisableColors = true
	}

	syslogURL, err := url.Parse(syslogRawURL)
	if err != nil {
		return fmt.Errorf("Failed parsing syslog spec %q: %v", syslogRawURL, err.Error())
	}

	hook, err := logrus_syslog.NewSyslogHook(syslogURL.Scheme, syslogURL.Host,
		syslogPriority(loglevel), binary)
	if err != nil {
		return fmt.Errorf("Failed connecting to syslog %q: %v", syslogRawURL, err.Error())
	}

	logrus.AddHook(hook)
	return nil
}

// InitLogging initiates logging from CLI options
func InitLogging(binary string, ctx *cli.Context) error {
	logLevel, err := logrus.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(logLevel)
	logrus.Infof("Using %v log level: %v", binary, logLevel)

	if ctx.Bool("use-syslog") {
		syslogURL := ctx.String("syslog-url")
		if err := configureSyslog(binary, logLevel, syslogURL); err != nil {
			return err
		}
		logrus.Infof("Using %v syslog config: %v", binary, syslogURL)
	} else {
		logrus.Infof("Using %v syslog config: nil", binary)
	}

	if ctx.Bool("use-json-log") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.Infof("Using %v log format: json", binary)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.StampNano})
		logrus.Infof("Using %v log format: text", binary)
	}
	return nil
}

// ValidateDBOptions returns error if db options are not valid
func ValidateDBOptions(binary string, ctx *cli.Context) (*DBConfigs, error) {
	return validateDBURLs(binary, ctx.String("etcd"), ctx.String("consul"))
}

func validateDBURLs(binary, etcdURLs, consulURLs string) (*DBConfigs, error) {
	var storeDriver string
	var storeURLs string

	if etcdURLs != "" && consulURLs != "" {
		return nil, fmt.Errorf("ambiguous %s db endpoints, both etcd and consul specified: etcd: %s, consul: %s", binary, etcdURLs, consulURLs)
	} else if etcdURLs == "" && consulURLs == "" {
		// if neither etcd or consul is set, try etcd at http://127.0.0.1:2379
		storeDriver = EtcdNameStr
		storeURLs = defaultEtcdURL
	} else if etcdURLs != "" {
		storeDriver = EtcdNameStr
		storeURLs = etcdURLs
	} else {
		storeDriver = ConsulNameStr
		storeURLs = consulURLs
	}

	endpoints := FilterEmpty(strings.Split(storeURLs, ","))
	for _, endpoint := range endpoints {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid %s %v endpoint: %v", binary, storeDriver, endpoint)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("invalid %s %s endpoints: empty", binary, storeDriver)
	}
	if storeDriver == ConsulNameStr && len(endpoints) > 1 {
		logrus.Warnf("Using only the first %s consul endpoint of %v", binary, endpoints)
		endpoints = endpoints[:1]
	}

	storeURL := strings.Join(endpoints, ",")
	logrus.Infof("Using %s state db endpoints: %v: %v", binary, storeDriver, storeURL)
	return &DBConfigs{
		StoreDriver: storeDriver,
		StoreURL:    storeURL,
	}, nil
}

// ValidateRendererOptions returns error if renderer options are not valid
func ValidateRendererOptions(binary string, ctx *cli.Context) (*RendererConfigs, error) {
	tunnelType := strings.ToLower(ctx.String("tunnel-type"))
	switch tunnelType {
	case "vxlan", "vxlan-gpe":
		logrus.Infof("Using %s tunnel type: %v", binary, tunnelType)
	case "":
		return nil, fmt.Errorf("%s tunnel type is not set", binary)
	default:
		return nil, fmt.Errorf("unknown %s tunnel type: %v", binary, tunnelType)
	}

	if ctx.Duration("resync-interval") < 0 {
		return nil, fmt.Errorf("invalid %s resync interval: %v", binary, ctx.Duration("resync-interval"))
	}

	return &RendererConfigs{
		HostLabel:      ctx.String("host"),
		TunnelType:     tunnelType,
		ListenURL:      ctx.String("listen-url"),
		ControllerURL:  ctx.String("ofp-listen-url"),
		ResyncInterval: ctx.Duration("resync-interval"),
	}, nil
}

// FlattenFlags concatenate slices of flags into one slice
func FlattenFlags(flagSlices ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, slice := range flagSlices {
		flags = append(flags, slice...)
	}
	return flags
}

// FilterEmpty filters empty string from string slices
func FilterEmpty(stringSlice []string) []string {
	var result []string
	for _, str := range stringSlice {
		str = strings.TrimSpace(str)
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}
