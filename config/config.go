// Package config loads insservgo's own configuration file (traditionally
// /etc/insserv.conf) and its .d drop-in directory: facility group
// declarations and the $interactive membership list.
package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerrors "insservgo/errors"
	"insservgo/facility"
)

// dropInSuffixBlacklist lists file suffixes ignored inside a .d drop-in
// directory: packaging artifacts and editor backups, not real config.
var dropInSuffixBlacklist = []string{
	".rpmnew", ".rpmorig", ".rpmsave", ".dpkg-dist", ".dpkg-old", ".dpkg-new",
	"~", ".bak", ".swp",
}

// Config is the parsed contents of insserv.conf and its .d fragments.
type Config struct {
	Facilities  *facility.Table
	Interactive map[string]bool
}

// New returns an empty Config ready to be populated.
func New() *Config {
	return &Config{
		Facilities:  facility.NewTable(),
		Interactive: make(map[string]bool),
	}
}

// Load reads the primary config file at path, then every eligible fragment
// inside path+".d" (sorted lexically, like a shell glob), merging
// declarations in that order.
func Load(path string) (*Config, error) {
	cfg := New()

	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "load config", path)
	}

	dropInDir := path + ".d"
	entries, err := os.ReadDir(dropInDir)
	if err != nil {
		return cfg, nil // no .d directory is not an error
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isBlacklisted(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := cfg.loadFile(filepath.Join(dropInDir, name)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func isBlacklisted(name string) bool {
	for _, suf := range dropInSuffixBlacklist {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

func (cfg *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cerrors.WrapWithDetail(err, cerrors.ErrFilesystem, "load config", path)
	}
	defer f.Close()
	return cfg.parse(f)
}

// parse reads lines from r, dispatching $group declarations and the
// $interactive membership line into cfg.
func (cfg *Config) parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := cfg.parseLine(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (cfg *Config) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return nil
	}
	name := fields[0]
	if !strings.HasPrefix(name, "$") {
		return cerrors.WrapWithDetail(cerrors.ErrInvalidFacilityGroup, cerrors.ErrInvalidConfig, "parse config", line)
	}

	members := parseMembers(fields[1:])

	if name == "$interactive" {
		for _, m := range members {
			cfg.Interactive[m.Name] = true
		}
		return nil
	}

	cfg.Facilities.Define(name, members)
	return nil
}

func parseMembers(tokens []string) []facility.Member {
	members := make([]facility.Member, 0, len(tokens))
	for _, tok := range tokens {
		opt := false
		if strings.HasPrefix(tok, "+") {
			opt = true
			tok = tok[1:]
		}
		if tok == "" {
			continue
		}
		members = append(members, facility.Member{Name: tok, Optional: opt})
	}
	return members
}
