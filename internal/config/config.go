// Package config loads the stsync configuration: the primary repository, the foreign
// repositories synced from it, and where run state lives.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
	"github.com/imazen/repositext-sub003/internal/idgen"
	"github.com/imazen/repositext-sub003/internal/repository"
	"github.com/imazen/repositext-sub003/internal/utils"
	"github.com/spf13/viper"
)

const EnvPrefix = "STSYNC"

var (
	home, _            = os.UserHomeDir()
	DefaultStateDir    = filepath.Join(home, ".stsync")
	DefaultConfigPath  = filepath.Join(DefaultStateDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultStateDir, "logs", "stsync.log")
)

// Repo locates one content repository.
type Repo struct {
	Name     string `json:"name" mapstructure:"name"`
	Language string `json:"language" mapstructure:"language"`
	Root     string `json:"root" mapstructure:"root"`
	// Journal is the sync metadata database of a foreign repository.
	Journal string `json:"journal,omitempty" mapstructure:"journal"`
}

type Config struct {
	Primary     Repo   `json:"primary" mapstructure:"primary"`
	Foreign     []Repo `json:"foreign" mapstructure:"foreign"`
	ContentGlob string `json:"content_glob,omitempty" mapstructure:"content_glob"`
	// LogsDir holds the persisted operation logs. Defaults to a directory in the primary
	// repository so the logs are versioned with it.
	LogsDir     string `json:"logs_dir,omitempty" mapstructure:"logs_dir"`
	IDInventory string `json:"id_inventory,omitempty" mapstructure:"id_inventory"`
	IDLength    int    `json:"id_length,omitempty" mapstructure:"id_length"`
	Workers     int    `json:"workers,omitempty" mapstructure:"workers"`
	StateDir    string `json:"state_dir,omitempty" mapstructure:"state_dir"`
	LogFile     string `json:"log_file,omitempty" mapstructure:"log_file"`

	Path string `json:"-" mapstructure:"-"`
}

// FromViper decodes the settings held by v. The result still needs Validate.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate checks the config, makes every path absolute and fills in defaults.
func (c *Config) Validate() error {
	if err := c.Primary.validate("primary"); err != nil {
		return err
	}
	if len(c.Foreign) == 0 {
		return errors.New("at least one foreign repository is required")
	}

	names := map[string]bool{c.Primary.Name: true}
	languages := map[string]bool{c.Primary.Language: true}
	for i := range c.Foreign {
		f := &c.Foreign[i]
		if err := f.validate(fmt.Sprintf("foreign[%d]", i)); err != nil {
			return err
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate repository name %q", f.Name)
		}
		if languages[f.Language] {
			return fmt.Errorf("duplicate repository language %q", f.Language)
		}
		names[f.Name] = true
		languages[f.Language] = true
	}

	if c.ContentGlob == "" {
		c.ContentGlob = repository.DefaultContentGlob
	}
	if !doublestar.ValidatePattern(c.ContentGlob) {
		return fmt.Errorf("invalid content glob %q", c.ContentGlob)
	}

	if c.IDLength == 0 {
		c.IDLength = idgen.DefaultLength
	}
	if c.IDLength < 0 {
		return fmt.Errorf("invalid id length: %d", c.IDLength)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}

	var err error
	if c.StateDir, err = absOr(c.StateDir, DefaultStateDir); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	if c.LogsDir, err = absOr(c.LogsDir, filepath.Join(c.Primary.Root, "data", "subtitle_operations")); err != nil {
		return fmt.Errorf("logs dir: %w", err)
	}
	if c.IDInventory, err = absOr(c.IDInventory, filepath.Join(c.Primary.Root, "data", "subtitle_ids.txt")); err != nil {
		return fmt.Errorf("id inventory: %w", err)
	}
	if c.LogFile, err = absOr(c.LogFile, DefaultLogFilePath); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	for i := range c.Foreign {
		f := &c.Foreign[i]
		if f.Journal, err = absOr(f.Journal, filepath.Join(c.StateDir, f.Name+".db")); err != nil {
			return fmt.Errorf("journal of %s: %w", f.Name, err)
		}
	}
	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}
	return nil
}

// Repo returns the repository named name.
func (c *Config) Repo(name string) (Repo, bool) {
	if c.Primary.Name == name {
		return c.Primary, true
	}
	for _, f := range c.Foreign {
		if f.Name == name {
			return f, true
		}
	}
	return Repo{}, false
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (r *Repo) validate(field string) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Language = strings.TrimSpace(r.Language)
	if r.Name == "" {
		return fmt.Errorf("%s: name is required", field)
	}
	if r.Language == "" {
		return fmt.Errorf("%s: language is required", field)
	}
	if r.Root == "" {
		return fmt.Errorf("%s: root is required", field)
	}
	root, err := utils.ResolvePath(r.Root)
	if err != nil {
		return fmt.Errorf("%s: root: %w", field, err)
	}
	r.Root = root
	return nil
}

func absOr(path, fallback string) (string, error) {
	if path == "" {
		path = fallback
	}
	return utils.ResolvePath(path)
}
