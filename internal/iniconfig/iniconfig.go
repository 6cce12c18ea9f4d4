// Package iniconfig loads gafferd's INI configuration file: a [gaffer]
// section naming HTTP endpoints, one [endpoint:<name>] section per listener,
// and one [process:<name>] section per managed job.
package iniconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// ProcessSpec is one [process:<name>] section's parsed process directives,
// with defaults applied for any key the section omits.
type ProcessSpec struct {
	Name         string            `yaml:"name"`
	Group        string            `yaml:"group,omitempty"`
	Command      string            `yaml:"command"`
	Args         []string          `yaml:"args,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	UID          string            `yaml:"uid,omitempty"`
	GID          string            `yaml:"gid,omitempty"`
	Dir          string            `yaml:"cwd,omitempty"`
	Detach       bool              `yaml:"detach"`
	NumProcesses int               `yaml:"numprocesses"`
	Start        bool              `yaml:"start"`
}

// EndpointSpec is one [endpoint:<name>] section: a bind URI, optional TLS
// material, and a listen backlog.
type EndpointSpec struct {
	Name     string `yaml:"name"`
	Bind     string `yaml:"bind"` // "tcp:host:port" or "unix:/path/to.sock"
	Backlog  int    `yaml:"backlog"`
	CertFile string `yaml:"certfile,omitempty"`
	KeyFile  string `yaml:"keyfile,omitempty"`
}

// TLSEnabled reports whether both certfile and keyfile were configured.
func (e EndpointSpec) TLSEnabled() bool {
	return e.CertFile != "" && e.KeyFile != ""
}

// Config is the fully parsed configuration: every endpoint named by
// http_endpoints plus every managed process.
type Config struct {
	Endpoints []EndpointSpec `yaml:"endpoints"`
	Processes []ProcessSpec  `yaml:"processes"`
}

// Dump renders cfg as YAML, for the `--dump-config` diagnostic flag: an
// operator can inspect exactly what a gafferd.ini (plus its includes)
// resolved to without starting the daemon.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

// defaultSocketName is the Unix-socket file name of the "default" endpoint
// Load falls back to when no [endpoint:*] section yields an endpoint.
const defaultSocketName = "gaffer.sock"

// Load reads path and every file it includes (via "include" and
// "include_dir" in the [gaffer] section), returning the parsed Config.
func Load(path string) (*Config, error) {
	// "=" is the only key/value delimiter, so "env:<NAME>" keys keep their colon.
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: false, KeyValueDelimiters: "="}, path)
	if err != nil {
		return nil, fmt.Errorf("iniconfig: load %s: %w", path, err)
	}

	gaffer := cfg.Section("gaffer")

	includes := strings.Fields(gaffer.Key("include").String())
	for _, includeDir := range strings.Fields(gaffer.Key("include_dir").String()) {
		matches, err := walkINIFiles(includeDir)
		if err != nil {
			return nil, fmt.Errorf("iniconfig: include_dir %s: %w", includeDir, err)
		}
		includes = append(includes, matches...)
	}

	if len(includes) > 0 {
		if err := cfg.Append(toAny(includes)...); err != nil {
			return nil, fmt.Errorf("iniconfig: include: %w", err)
		}
	}

	endpointNames := splitCSV(gaffer.Key("http_endpoints").String())

	var endpoints []EndpointSpec
	var processes []ProcessSpec

	for _, section := range cfg.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, "endpoint:"):
			epName := strings.TrimPrefix(name, "endpoint:")
			if len(endpointNames) > 0 && !contains(endpointNames, epName) {
				continue
			}
			ep := parseEndpoint(epName, section)
			if ep.Bind != "" {
				endpoints = append(endpoints, ep)
			}

		case strings.HasPrefix(name, "process:"):
			procName := strings.TrimPrefix(name, "process:")
			cmd := section.Key("cmd").String()
			if cmd == "" {
				continue
			}
			processes = append(processes, parseProcess(procName, cmd, section))
		}
	}

	if len(endpoints) == 0 {
		endpoints = []EndpointSpec{{
			Name: "default",
			Bind: "unix:" + filepath.Join(defaultSocketDir(), defaultSocketName),
		}}
	}

	return &Config{Endpoints: endpoints, Processes: processes}, nil
}

func parseEndpoint(name string, section *ini.Section) EndpointSpec {
	ep := EndpointSpec{Name: name, Backlog: 128}
	if section.HasKey("bind") {
		ep.Bind = section.Key("bind").String()
	}
	if section.HasKey("backlog") {
		if n, err := section.Key("backlog").Int(); err == nil {
			ep.Backlog = n
		}
	}
	ep.CertFile = section.Key("certfile").String()
	ep.KeyFile = section.Key("keyfile").String()
	return ep
}

func parseProcess(name, cmd string, section *ini.Section) ProcessSpec {
	p := ProcessSpec{
		Name:         name,
		Command:      cmd,
		Env:          make(map[string]string),
		NumProcesses: 1,
		Start:        true,
	}

	for _, key := range section.Keys() {
		k := key.Name()
		switch {
		case k == "group":
			p.Group = key.String()
		case k == "args":
			p.Args = splitArgs(key.String())
		case strings.HasPrefix(k, "env:"):
			p.Env[strings.TrimPrefix(k, "env:")] = key.String()
		case k == "uid":
			p.UID = key.String()
		case k == "gid":
			p.GID = key.String()
		case k == "cwd":
			p.Dir = key.String()
		case k == "detach":
			p.Detach, _ = key.Bool()
		case k == "numprocesses":
			if n, err := key.Int(); err == nil {
				p.NumProcesses = n
			}
		case k == "start":
			if b, err := key.Bool(); err == nil {
				p.Start = b
			}
		}
	}
	return p
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func toAny(paths []string) []any {
	out := make([]any, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out
}

// IntFromString parses a decimal uid/gid string; empty or invalid returns
// ok=false so callers can skip setting Credential.
func IntFromString(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
