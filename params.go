package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/spf13/pflag"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"

	"github.com/rodolfodpk/instagrano-realtime-tests/correlate"
	"github.com/rodolfodpk/instagrano-realtime-tests/eventstream"
	"github.com/rodolfodpk/instagrano-realtime-tests/framework"
	"github.com/rodolfodpk/instagrano-realtime-tests/scenario"
)

const (
	urlEnvVar                 = "API_URL"
	defaultServiceWaitTimeout = time.Second * 10
)

type commandParams struct {
	serviceURL         string
	configFile         string
	users              int
	settle             time.Duration
	stabilize          time.Duration
	connectTimeout     time.Duration
	serviceWaitTimeout time.Duration
	feedLimit          int
	fixedSettle        bool
	duplicates         scenario.DuplicatePolicy
	noComments         bool
	filters            framework.RegexFilters
	debug              bool
	debugAll           bool
}

// fileParams is the layout of the --config file. Every key is optional; a key that is present
// is overridden by the environment or the corresponding flag.
type fileParams struct {
	URL            string         `yaml:"url"`
	Users          *int           `yaml:"users"`
	Settle         *time.Duration `yaml:"settle"`
	Stabilize      *time.Duration `yaml:"stabilize"`
	ConnectTimeout *time.Duration `yaml:"connect_timeout"`
	FeedLimit      *int           `yaml:"feed_limit"`
	FixedSettle    *bool          `yaml:"fixed_settle"`
	Duplicates     string         `yaml:"duplicates"`
	NoComments     *bool          `yaml:"no_comments"`
	Run            []string       `yaml:"run"`
	Skip           []string       `yaml:"skip"`
}

func (c *commandParams) addFlags(fs *pflag.FlagSet) {
	c.duplicates = scenario.DuplicatesFail
	fs.StringVar(&c.serviceURL, "url", "", "backend base URL (default $"+urlEnvVar+")")
	fs.StringVar(&c.configFile, "config", "", "YAML file with default values for these flags")
	fs.IntVar(&c.users, "users", scenario.DefaultUsers, "number of simulated users (at least 2)")
	fs.DurationVar(&c.settle, "settle", correlate.DefaultWindow, "how long to wait for each expected event")
	fs.DurationVar(&c.stabilize, "stabilize", scenario.DefaultStabilize,
		"pause after the event streams are open, before the first action")
	fs.DurationVar(&c.connectTimeout, "connect-timeout", eventstream.DefaultConnectTimeout,
		"how long to wait for each event stream to open")
	fs.DurationVar(&c.serviceWaitTimeout, "wait-for-service", defaultServiceWaitTimeout,
		"how long to wait for the backend's health check to answer")
	fs.IntVar(&c.feedLimit, "feed-limit", 0, "page size for feed verification (default: the backend's)")
	fs.BoolVar(&c.fixedSettle, "fixed-settle", false,
		"always wait the full settle time before checking events, instead of stopping at the first match")
	fs.Var(&c.duplicates, "duplicates", `what to do about events delivered twice: "fail" or "tolerate"`)
	fs.BoolVar(&c.noComments, "no-comments", false, "leave out the comment action and its checks")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select checks to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select checks not to run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed checks")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all checks")
}

// resolve fills in every value that was not given as a flag, first from the environment and
// then from the config file, and validates the result.
func (c *commandParams) resolve(fs *pflag.FlagSet, getenv func(string) string) error {
	var file fileParams
	if c.configFile != "" {
		var err error
		if file, err = readConfigFile(c.configFile); err != nil {
			return err
		}
	}

	if !fs.Changed("url") {
		c.serviceURL = getenv(urlEnvVar)
		if c.serviceURL == "" {
			c.serviceURL = file.URL
		}
	}
	setFromFile(fs, "users", &c.users, file.Users)
	setFromFile(fs, "settle", &c.settle, file.Settle)
	setFromFile(fs, "stabilize", &c.stabilize, file.Stabilize)
	setFromFile(fs, "connect-timeout", &c.connectTimeout, file.ConnectTimeout)
	setFromFile(fs, "feed-limit", &c.feedLimit, file.FeedLimit)
	setFromFile(fs, "fixed-settle", &c.fixedSettle, file.FixedSettle)
	setFromFile(fs, "no-comments", &c.noComments, file.NoComments)
	if !fs.Changed("duplicates") && file.Duplicates != "" {
		if err := c.duplicates.Set(file.Duplicates); err != nil {
			return fmt.Errorf("%s: duplicates: %w", c.configFile, err)
		}
	}
	if !fs.Changed("run") {
		for _, p := range file.Run {
			if err := c.filters.MustMatch.Set(p); err != nil {
				return fmt.Errorf("%s: run: %w", c.configFile, err)
			}
		}
	}
	if !fs.Changed("skip") {
		for _, p := range file.Skip {
			if err := c.filters.MustNotMatch.Set(p); err != nil {
				return fmt.Errorf("%s: skip: %w", c.configFile, err)
			}
		}
	}

	switch {
	case c.serviceURL == "":
		return fmt.Errorf("--url or $%s is required", urlEnvVar)
	case !strings.HasPrefix(c.serviceURL, "http://") && !strings.HasPrefix(c.serviceURL, "https://"):
		return fmt.Errorf("backend URL %q must start with http:// or https://", c.serviceURL)
	case c.users < 2:
		return errors.New("--users must be at least 2")
	case c.feedLimit < 0:
		return errors.New("--feed-limit must not be negative")
	case c.settle <= 0 || c.stabilize < 0 || c.connectTimeout <= 0:
		return errors.New("--settle and --connect-timeout must be positive and --stabilize must not be negative")
	}
	return nil
}

func setFromFile[T any](fs *pflag.FlagSet, name string, target *T, value *T) {
	if value != nil && !fs.Changed(name) {
		*target = *value
	}
}

func readConfigFile(path string) (fileParams, error) {
	var ret fileParams
	f, err := os.Open(path)
	if err != nil {
		return ret, fmt.Errorf("can't read config file: %w", err)
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&ret); err != nil {
		return ret, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return ret, nil
}

func (c commandParams) scenarioConfig() scenario.Config {
	cfg := scenario.Config{
		Users:          c.users,
		Stabilize:      c.stabilize,
		Settle:         c.settle,
		ConnectTimeout: c.connectTimeout,
		Duplicates:     c.duplicates,
		SkipComments:   c.noComments,
	}
	if c.feedLimit > 0 {
		cfg.FeedLimit = ldvalue.NewOptionalInt(c.feedLimit)
	}
	if c.fixedSettle {
		cfg.Mode = correlate.ModeFixedSettle
	}
	return cfg
}

// commandLine returns a command line that would repeat this run with the same settings,
// regardless of where they came from.
func (c commandParams) commandLine(program string) string {
	var b commandBuilder
	b.add(program, "--url", c.serviceURL,
		"--users", strconv.Itoa(c.users),
		"--settle", c.settle.String(),
		"--stabilize", c.stabilize.String(),
		"--connect-timeout", c.connectTimeout.String(),
		"--duplicates", c.duplicates.String(),
	)
	if c.feedLimit > 0 {
		b.add("--feed-limit", strconv.Itoa(c.feedLimit))
	}
	if c.fixedSettle {
		b.add("--fixed-settle")
	}
	if c.noComments {
		b.add("--no-comments")
	}
	for _, p := range c.filters.MustMatch.Patterns() {
		b.add("--run", p)
	}
	for _, p := range c.filters.MustNotMatch.Patterns() {
		b.add("--skip", p)
	}
	return b.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
