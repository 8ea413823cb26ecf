package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Data struct {
	Path          string   `mapstructure:"path" yaml:"path"`
	TargetColumn  string   `mapstructure:"target_column" yaml:"target_column"`
	IDColumns     []string `mapstructure:"id_columns" yaml:"id_columns"`
	PopulationNum int      `mapstructure:"population_ratio_num" yaml:"population_ratio_num"`
	PopulationDen int      `mapstructure:"population_ratio_den" yaml:"population_ratio_den"`
	// PositiveLabel enables textual targets: matching cells become 1, the
	// NegativeLabel (or any other label when empty) becomes 0.
	PositiveLabel string `mapstructure:"positive_label" yaml:"positive_label"`
	NegativeLabel string `mapstructure:"negative_label" yaml:"negative_label"`
}

type Model struct {
	K          int    `mapstructure:"k" yaml:"k"`
	MaxCheck   int    `mapstructure:"max_check" yaml:"max_check"`
	Divisor    string `mapstructure:"divisor" yaml:"divisor"`
	Workers    int    `mapstructure:"workers" yaml:"workers"`
	Partitions int    `mapstructure:"partitions" yaml:"partitions"`
}

// Field is one interactively asked column. Alias is the short name the web
// form posts, e.g. "gender" for CODE_GENDER.
type Field struct {
	Column string `mapstructure:"column" yaml:"column"`
	Alias  string `mapstructure:"alias" yaml:"alias"`
	Prompt string `mapstructure:"prompt" yaml:"prompt"`
}

type Prompt struct {
	Fields []Field `mapstructure:"fields" yaml:"fields"`
}

type Server struct {
	Addr       string        `mapstructure:"addr" yaml:"addr"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst      int           `mapstructure:"burst" yaml:"burst"`
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
	JobTTL     time.Duration `mapstructure:"job_ttl" yaml:"job_ttl"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type S3 struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type Diagnostics struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Compress bool   `mapstructure:"compress" yaml:"compress"`
}

// Global configuration structure.
type Global struct {
	Data        Data        `mapstructure:"data" yaml:"data"`
	Model       Model       `mapstructure:"model" yaml:"model"`
	Prompt      Prompt      `mapstructure:"prompt" yaml:"prompt"`
	Server      Server      `mapstructure:"server" yaml:"server"`
	Log         Log         `mapstructure:"log" yaml:"log"`
	S3          S3          `mapstructure:"s3" yaml:"s3"`
	Diagnostics Diagnostics `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// DefaultFields are the questions of the loan risk web form.
func DefaultFields() []Field {
	return []Field{
		{Column: "CODE_GENDER", Alias: "gender", Prompt: "Gender (M/F/XNA)"},
		{Column: "NAME_CONTRACT_TYPE", Alias: "contract_type", Prompt: "Contract type (Cash loans/Revolving loans)"},
		{Column: "EMERGENCYSTATE_MODE", Alias: "emergency_state", Prompt: "Emergency state (Yes/No)"},
		{Column: "NAME_EDUCATION_TYPE", Alias: "education_level", Prompt: "Education level"},
		{Column: "NAME_INCOME_TYPE", Alias: "income_type", Prompt: "Income type"},
		{Column: "HOUSETYPE_MODE", Alias: "house_type", Prompt: "House type"},
		{Column: "FLAG_OWN_CAR", Alias: "own_car", Prompt: "Own car (Y/N)"},
		{Column: "NAME_FAMILY_STATUS", Alias: "family_status", Prompt: "Family status"},
	}
}

// Default returns the configuration used when nothing overrides it.
func Default() *Global {
	return &Global{
		Data: Data{
			Path:          "application_data.csv",
			TargetColumn:  "TARGET",
			IDColumns:     []string{"SK_ID_CURR"},
			PopulationNum: 29,
			PopulationDen: 30,
		},
		Model: Model{
			K:          30,
			Divisor:    "k",
			Workers:    4,
			Partitions: 1,
		},
		Prompt: Prompt{Fields: DefaultFields()},
		Server: Server{
			Addr:       ":8000",
			RateLimit:  2,
			Burst:      4,
			JobTimeout: 5 * time.Minute,
			JobTTL:     time.Hour,
		},
		Log:         Log{Level: "info", Format: "text"},
		S3:          S3{UseSSL: true},
		Diagnostics: Diagnostics{Dir: "diagnostics"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data.path", d.Data.Path)
	v.SetDefault("data.target_column", d.Data.TargetColumn)
	v.SetDefault("data.id_columns", d.Data.IDColumns)
	v.SetDefault("data.population_ratio_num", d.Data.PopulationNum)
	v.SetDefault("data.population_ratio_den", d.Data.PopulationDen)
	v.SetDefault("data.positive_label", "")
	v.SetDefault("data.negative_label", "")
	v.SetDefault("model.k", d.Model.K)
	v.SetDefault("model.max_check", d.Model.MaxCheck)
	v.SetDefault("model.divisor", d.Model.Divisor)
	v.SetDefault("model.workers", d.Model.Workers)
	v.SetDefault("model.partitions", d.Model.Partitions)
	v.SetDefault("prompt.fields", d.Prompt.Fields)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.burst", d.Server.Burst)
	v.SetDefault("server.job_timeout", d.Server.JobTimeout)
	v.SetDefault("server.job_ttl", d.Server.JobTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", d.S3.UseSSL)
	v.SetDefault("diagnostics.dir", d.Diagnostics.Dir)
	v.SetDefault("diagnostics.compress", d.Diagnostics.Compress)
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Environment keys use the
// LOANMINING_ prefix with dots replaced by underscores, e.g.
// LOANMINING_MODEL_K. Without cfgFile, ./loanmining.yaml and
// ~/.loanmining/config.yaml are tried; a missing file is not an error.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("LOANMINING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("loanmining")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".loanmining"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings no command can run with.
func (c *Global) Validate() error {
	if c.Model.K <= 0 {
		return fmt.Errorf("model.k must be positive, got %d", c.Model.K)
	}
	if c.Data.PopulationDen <= 0 || c.Data.PopulationNum <= 0 || c.Data.PopulationNum > c.Data.PopulationDen {
		return fmt.Errorf("invalid population ratio %d/%d", c.Data.PopulationNum, c.Data.PopulationDen)
	}
	if c.Data.TargetColumn == "" {
		return errors.New("data.target_column is required")
	}
	return nil
}

// Save writes the given configuration as YAML to path, creating the parent
// directory if necessary.
func Save(c *Global, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
