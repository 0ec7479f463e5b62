package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/user/cardshot/internal/entity"
)

const (
	DefaultConfigFile = "./cardshot.config.yaml"
	envPrefix         = "CARDSHOT"
)

// Keys read from publish.* for the configured backend.
var publishKeys = []string{
	"access_key", "secret_key", "region", "bucket", "prefix", "endpoint",
	"credentials_json",
	"host", "port", "user", "password", "private_key", "host_key", "remote_dir",
}

// Config holds everything a run needs: the render options and images from the
// config file plus the optional integrations.
type Config struct {
	ConfigFile string
	Inspect    string // run to report on instead of rendering
	Global     entity.GlobalOptions
	Images     []map[string]any

	WaitFirst entity.WaitStrategy
	WaitRest  entity.WaitStrategy

	LogLevel  string
	LogFormat string

	History  HistoryConfig
	Progress ProgressConfig
	Publish  PublishConfig
	Metrics  MetricsConfig
	Chrome   ChromeConfig
}

type HistoryConfig struct {
	PostgresURL string
	PebbleDir   string
}

type ProgressConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type PublishConfig struct {
	Backend    string
	AccessInfo map[string]string
}

type MetricsConfig struct {
	Textfile    string
	Pushgateway string
}

type ChromeConfig struct {
	ExecPath  string
	NoSandbox bool
}

// NewFlagSet defines the command line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", DefaultConfigFile, "path to the configuration file (YAML or JSON)")
	fs.StringP("template", "t", "", "path to the default HTML template")
	fs.IntP("width", "W", 1200, "default image width in pixels")
	fs.IntP("height", "H", 630, "default image height in pixels")
	fs.IntP("quality", "q", 80, "default quality for jpeg and webp output (0-100)")
	fs.Bool("background", true, "render the page background")
	fs.Bool("no-background", false, "capture with a transparent background")
	fs.BoolP("verbose", "v", false, "log every image as it is saved")
	fs.BoolP("debug", "d", false, "print the resolved configuration and exit without rendering")
	fs.Duration("timeout", 60*time.Second, "per-image render timeout")
	fs.String("inspect", "", "print the progress and render history of a previous run and exit")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json, console)")
	return fs
}

// Load parses args and builds the run configuration. Precedence, highest
// first: flags, CARDSHOT_* environment, config file, flag defaults.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("cardshot")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", entity.ErrConfig, err)
	}
	return LoadFlags(fs)
}

// LoadFlags builds the configuration from an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"config":     "config",
		"template":   "template",
		"width":      "width",
		"height":     "height",
		"quality":    "quality",
		"background": "background",
		"verbose":    "verbose",
		"debug":      "debug",
		"timeout":    "timeout",
		"log.level":  "log-level",
		"log.format": "log-format",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("%w: failed to bind flag %s: %w", entity.ErrConfig, flag, err)
		}
	}
	v.SetDefault("chrome.no_sandbox", true)
	if noBg, _ := fs.GetBool("no-background"); noBg {
		v.Set("background", false)
	}

	inspect, _ := fs.GetString("inspect")

	path := v.GetString("config")
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(file.settings); err != nil {
		return nil, fmt.Errorf("%w: failed to merge %s: %w", entity.ErrConfig, path, err)
	}

	cfg := &Config{
		ConfigFile: path,
		Inspect:    strings.TrimSpace(inspect),
		Images:     file.images,
		LogLevel:   v.GetString("log.level"),
		LogFormat:  v.GetString("log.format"),
		WaitFirst:  entity.WaitStrategy(v.GetString("wait_first")),
		WaitRest:   entity.WaitStrategy(v.GetString("wait_rest")),
		History: HistoryConfig{
			PostgresURL: v.GetString("history.postgres_url"),
			PebbleDir:   v.GetString("history.pebble_dir"),
		},
		Progress: ProgressConfig{
			RedisAddr:     v.GetString("progress.redis_addr"),
			RedisPassword: v.GetString("progress.redis_password"),
		},
		Publish: PublishConfig{
			Backend:    v.GetString("publish.backend"),
			AccessInfo: map[string]string{},
		},
		Metrics: MetricsConfig{
			Textfile:    v.GetString("metrics.textfile"),
			Pushgateway: v.GetString("metrics.pushgateway"),
		},
		Chrome: ChromeConfig{
			ExecPath: v.GetString("chrome.exec_path"),
		},
	}

	for _, key := range publishKeys {
		if val := v.GetString("publish." + key); val != "" {
			cfg.Publish.AccessInfo[key] = val
		}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	g := entity.GlobalOptions{
		Template:     v.GetString("template"),
		TemplateHTML: v.GetString("html"),
		Data:         file.data,
	}
	g.Width, err = intKey(v, "width")
	collect(err)
	g.Height, err = intKey(v, "height")
	collect(err)
	g.Quality, err = intKey(v, "quality")
	collect(err)
	g.Background, err = boolKey(v, "background")
	collect(err)
	g.Verbose, err = boolKey(v, "verbose")
	collect(err)
	g.Debug, err = boolKey(v, "debug")
	collect(err)
	g.Timeout, err = durationKey(v, "timeout")
	collect(err)
	cfg.Progress.RedisDB, err = intKey(v, "progress.redis_db")
	collect(err)
	cfg.Chrome.NoSandbox, err = boolKey(v, "chrome.no_sandbox")
	collect(err)

	for _, key := range []string{"wait_first", "wait_rest"} {
		switch w := entity.WaitStrategy(v.GetString(key)); w {
		case "", entity.WaitLoad, entity.WaitNetworkIdle:
		default:
			collect(fmt.Errorf("%s must be %q or %q, got %q", key, entity.WaitLoad, entity.WaitNetworkIdle, w))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrConfig, path, errors.Join(errs...))
	}
	cfg.Global = g
	return cfg, nil
}

func intKey(v *viper.Viper, key string) (int, error) {
	raw := v.Get(key)
	if raw == nil {
		return 0, nil
	}
	if _, isBool := raw.(bool); isBool {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, raw)
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, raw)
	}
	return int(f), nil
}

func boolKey(v *viper.Viper, key string) (bool, error) {
	raw := v.Get(key)
	if raw == nil {
		return false, nil
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %v", key, raw)
	}
	return b, nil
}

// durationKey accepts Go duration strings; bare numbers are seconds.
func durationKey(v *viper.Viper, key string) (time.Duration, error) {
	switch raw := v.Get(key).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return raw, nil
	case int, int64, float64:
		secs, _ := cast.ToFloat64E(raw)
		return time.Duration(secs * float64(time.Second)), nil
	case string:
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%s must be a duration such as 30s, got %v", key, raw)
		}
		return d, nil
	default:
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return 0, fmt.Errorf("%s must be a duration such as 30s, got %v", key, raw)
		}
		return d, nil
	}
}

type fileContents struct {
	settings map[string]any
	data     map[string]any
	images   []map[string]any
}

// readFile reads the config file in either shape: a flat sequence of image
// records, or a mapping of global keys with an images sequence. JSON is
// accepted as the YAML subset it is.
func readFile(path string) (*fileContents, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", entity.ErrConfig, err)
	}
	return parseFile(path, raw)
}

func parseFile(path string, raw []byte) (*fileContents, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", entity.ErrConfig, path, err)
	}

	out := &fileContents{settings: map[string]any{}}
	var images any

	switch top := normalize(doc).(type) {
	case nil:
		return out, nil
	case []any:
		images = top
	case map[string]any:
		images = top["images"]
		if data, ok := top["data"]; ok && data != nil {
			m, ok := data.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s: data must be a mapping", entity.ErrConfig, path)
			}
			out.data = m
		}
		for k, val := range top {
			if k == "images" || k == "data" {
				continue
			}
			out.settings[k] = val
		}
	default:
		return nil, fmt.Errorf("%w: %s: top level must be a sequence of images or a mapping", entity.ErrConfig, path)
	}

	if images == nil {
		return out, nil
	}
	list, ok := images.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: images must be a sequence", entity.ErrConfig, path)
	}
	out.images = make([]map[string]any, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: image %d must be a mapping", entity.ErrConfig, path, i+1)
		}
		out.images = append(out.images, rec)
	}
	return out, nil
}

// normalize converts yaml.v2's map[interface{}]interface{} into
// map[string]any, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
