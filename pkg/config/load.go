package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} in input using the process
// environment. Unset variables without a default expand to "".
func ExpandEnv(input string) string {
	return expand(input, os.LookupEnv)
}

func expand(input string, lookup func(string) (string, bool)) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if value, ok := lookup(groups[1]); ok && value != "" {
			return value
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}

// Load reads a YAML configuration file on top of Default. Environment
// references in the file are expanded first. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with ${VAR} references resolved through lookup.
func LoadWithLookup(path string, lookup func(string) (string, bool)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expand(string(data), lookup))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv overlays the environment variables read through lookup on base
// (Default when nil). Unset or empty variables leave base untouched.
func FromEnv(lookup func(string) (string, bool), base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = Default()
	}
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}
	str := func(dst *string, keys ...string) {
		if v, ok := get(keys...); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(dst *bool, key string) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	str(&cfg.RepoID, "REPO_ID")
	str(&cfg.Scheme, "QUANT_SCHEME")
	str(&cfg.SkipListPath, "SKIPLIST_PATH")
	str(&cfg.WorkDir, "WORK_DIR")
	boolean(&cfg.KeepWorkDir, "KEEP_WORK_DIR")
	str(&cfg.MetricsFile, "METRICS_FILE")

	str(&cfg.Source.Kind, "SOURCE_KIND")
	str(&cfg.Source.Endpoint, "SOURCE_ENDPOINT")
	str(&cfg.Source.Token, "HF_TOKEN", "HF_API_KEY")
	str(&cfg.Source.Revision, "SOURCE_REVISION")
	if v, ok := get("SOURCE_IGNORE"); ok {
		cfg.Source.Ignore = splitList(v)
	}

	str(&cfg.Destination.Kind, "DEST_KIND")
	str(&cfg.Destination.Namespace, "DEST_NAMESPACE")
	str(&cfg.Destination.Root, "DEST_ROOT")
	str(&cfg.Destination.Token, "DEST_TOKEN")
	str(&cfg.Destination.Username, "DEST_USERNAME")
	str(&cfg.Destination.Region, "DEST_REGION")
	str(&cfg.Destination.Endpoint, "DEST_ENDPOINT")
	boolean(&cfg.Destination.PathStyle, "DEST_PATH_STYLE")
	boolean(&cfg.Destination.Insecure, "DEST_INSECURE")
	str(&cfg.Destination.Visibility, "VISIBILITY")
	str(&cfg.Destination.License, "LICENSE")
	str(&cfg.Destination.DisplayName, "DISPLAY_NAME")
	str(&cfg.Destination.CommitMessage, "COMMIT_MESSAGE")

	str(&cfg.Tools.Converter, "CONVERTER_CMD")
	str(&cfg.Tools.ConverterArgs, "CONVERTER_ARGS")
	str(&cfg.Tools.Quantizer, "QUANTIZER_CMD")

	str(&cfg.Log.Level, "LOG_LEVEL")
	str(&cfg.Log.Format, "LOG_FORMAT")
	str(&cfg.Log.File, "LOG_FILE")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration for the process: the file named by
// CONFIG_FILE (if any), overlaid by the environment.
func LoadFromEnv(lookup func(string) (string, bool)) (*Config, error) {
	base := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		var err error
		if base, err = LoadWithLookup(path, lookup); err != nil {
			return nil, err
		}
	}
	return FromEnv(lookup, base)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
