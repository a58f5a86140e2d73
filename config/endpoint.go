// Package config loads transport endpoint definitions: a single endpoint
// merged from YAML and environment, or a multi-endpoint profile file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/transport"
)

const SupportedSchema = "v1"

const envPrefix = "ALERTWIRE_ENDPOINT__"

// Endpoint describes one configured transport: where it points, how messages
// are encoded, and the backend parameters to apply.
type Endpoint struct {
	Name        string         `koanf:"name" yaml:"name"`
	URL         string         `koanf:"url" yaml:"url"`
	ContentType string         `koanf:"content_type" yaml:"content_type"`
	Parameters  map[string]any `koanf:"parameters" yaml:"parameters"`
}

func (e Endpoint) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("endpoint %q: url is required", e.Name)
	}
	u, err := url.Parse(e.URL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("endpoint %q: invalid url %q", e.Name, e.URL)
	}
	return nil
}

// LoadEndpoint merges YAML (if present) with env-vars
// (prefix ALERTWIRE_ENDPOINT__, delimiter __).
func LoadEndpoint(path string) (Endpoint, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Endpoint{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Endpoint{}, fmt.Errorf("endpoint schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	// The callback must not touch the "__" separators; the provider splits
	// on them, which is how PARAMETERS__INTERVAL reaches parameters.interval.
	_ = k.Load(env.Provider(envPrefix, "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)

	var e Endpoint
	if err := k.Unmarshal("", &e); err != nil {
		return e, err
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}

// Open constructs the endpoint's transport and applies its parameters in
// deterministic (sorted) order. The returned transport is not yet started.
func (e Endpoint) Open(queue *msgqueue.Queue[message.Message]) (transport.Transport, error) {
	tr, err := transport.Open(e.URL, queue, e.ContentType)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", e.Name, err)
	}
	names := make([]string, 0, len(e.Parameters))
	for name := range e.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := setParameter(tr, name, e.Parameters[name]); err != nil {
			return nil, fmt.Errorf("endpoint %q: parameter %s: %w", e.Name, name, err)
		}
	}
	return tr, nil
}

// setParameter applies one parameter, retrying numeric forms when a string
// value is rejected. Environment overrides always arrive as strings, while
// the backends demand typed values for numeric parameters.
func setParameter(tr transport.Transport, name string, value any) error {
	err := tr.SetParameter(name, value)
	if err == nil || !errors.Is(err, transport.ErrInvalidParameterValue) {
		return err
	}
	s, ok := value.(string)
	if !ok {
		return err
	}
	if n, perr := strconv.ParseInt(s, 10, 64); perr == nil {
		if rerr := tr.SetParameter(name, n); rerr == nil {
			return nil
		}
	}
	if f, perr := strconv.ParseFloat(s, 64); perr == nil {
		if rerr := tr.SetParameter(name, f); rerr == nil {
			return nil
		}
	}
	return err
}
