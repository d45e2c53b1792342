// Package config resolves engine settings from flags, environment variables
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissing is wrapped by every validation failure.
var ErrMissing = errors.New("missing configuration")

// MissingError lists the settings a command needs but did not get.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissing, strings.Join(e.Keys, ", "))
}

func (e *MissingError) Unwrap() error { return ErrMissing }

// Backend configures the catalog gateway.
type Backend struct {
	Driver      string
	Host        string
	User        string
	Password    string
	Token       string
	Retries     int
	RPS         float64
	Timeout     time.Duration
	SQLitePath  string
	PostgresDSN string
}

// Cluster configures access to release directories.
type Cluster struct {
	SSHAlias string
	SSHUser  string
	Root     string
}

// Output configures where run artifacts are written.
type Output struct {
	Driver     string
	Dir        string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
}

// Config is the resolved engine configuration.
type Config struct {
	Backend Backend
	Cluster Cluster
	Output  Output

	StopFile           string
	LogLevel           string
	VocabAliases       string
	PhenopacketTimeout time.Duration
	DryRun             bool
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Backend: Backend{
			Driver:  "http",
			Retries: 4,
			Timeout: 5 * time.Minute,
		},
		Output: Output{
			Driver: "fs",
			Dir:    "./rd3-output",
		},
		LogLevel:           "info",
		PhenopacketTimeout: 30 * time.Second,
	}
}

// RegisterFlags defines every setting on fs, storing values into c. Flag
// names map onto environment variables by upper-casing and replacing dashes
// with underscores (backend-host -> BACKEND_HOST).
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Backend.Driver, "backend-driver", c.Backend.Driver, "catalog driver: http, memory, sqlite or postgres")
	fs.StringVar(&c.Backend.Host, "backend-host", c.Backend.Host, "catalog host, with or without scheme")
	fs.StringVar(&c.Backend.User, "backend-usr", c.Backend.User, "catalog user name")
	fs.StringVar(&c.Backend.Password, "backend-pwd", c.Backend.Password, "catalog password")
	fs.StringVar(&c.Backend.Token, "backend-token", c.Backend.Token, "catalog API token (skips login)")
	fs.IntVar(&c.Backend.Retries, "backend-retries", c.Backend.Retries, "retries for failed catalog requests")
	fs.Float64Var(&c.Backend.RPS, "backend-rps", c.Backend.RPS, "catalog requests per second, 0 for unlimited")
	fs.DurationVar(&c.Backend.Timeout, "backend-timeout", c.Backend.Timeout, "timeout of a single catalog request")
	fs.StringVar(&c.Backend.SQLitePath, "backend-sqlite-path", c.Backend.SQLitePath, "database file of the sqlite driver")
	fs.StringVar(&c.Backend.PostgresDSN, "backend-postgres-dsn", c.Backend.PostgresDSN, "connection string of the postgres driver")
	fs.StringVar(&c.Cluster.SSHAlias, "cluster-ssh-alias", c.Cluster.SSHAlias, "cluster host[:port]; empty reads the local filesystem")
	fs.StringVar(&c.Cluster.SSHUser, "cluster-ssh-user", c.Cluster.SSHUser, "cluster user name (default: current user)")
	fs.StringVar(&c.Cluster.Root, "cluster-root", c.Cluster.Root, "directory holding the release folders")
	fs.StringVar(&c.Output.Driver, "output-driver", c.Output.Driver, "artifact store: fs, s3 or memory")
	fs.StringVar(&c.Output.Dir, "output-dir", c.Output.Dir, "directory for reports when output-driver=fs")
	fs.StringVar(&c.Output.S3Bucket, "output-s3-bucket", c.Output.S3Bucket, "bucket for reports when output-driver=s3")
	fs.StringVar(&c.Output.S3Region, "output-s3-region", c.Output.S3Region, "bucket region")
	fs.StringVar(&c.Output.S3Endpoint, "output-s3-endpoint", c.Output.S3Endpoint, "S3-compatible endpoint, e.g. MinIO")
	fs.StringVar(&c.StopFile, "stop-file", c.StopFile, "sentinel file; its presence cancels the run")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.VocabAliases, "vocab-aliases", c.VocabAliases, "YAML file with vocabulary alias overrides")
	fs.DurationVar(&c.PhenopacketTimeout, "phenopacket-timeout", c.PhenopacketTimeout, "read timeout per phenopacket file")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "triage and report without writing to the catalog")
}

// Load applies environment variables and the optional config file to the
// flags that were not set on the command line. Priority: flags, then env,
// then file, then defaults.
func Load(v *viper.Viper, flags *pflag.FlagSet, file string) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	valid := map[string]bool{}
	flags.VisitAll(func(f *pflag.Flag) { valid[f.Name] = true })
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", file, err)
		}
		for _, key := range v.AllKeys() {
			if !valid[key] {
				return fmt.Errorf("invalid option in config file %s: %s", file, key)
			}
		}
	}

	var setErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if setErr != nil || f.Changed || f.Name == "config" {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			setErr = fmt.Errorf("%s: %w", f.Name, err)
		}
	})
	return setErr
}

// Needs selects the settings a command requires beyond the backend.
type Needs struct {
	Cluster bool
}

// Validate checks that the settings needed by a command are present.
func (c Config) Validate(needs Needs) error {
	var missing []string
	switch c.Backend.Driver {
	case "http", "":
		if c.Backend.Host == "" {
			missing = append(missing, "BACKEND_HOST")
		}
		if c.Backend.Token == "" && (c.Backend.User == "" || c.Backend.Password == "") {
			missing = append(missing, "BACKEND_TOKEN or BACKEND_USR/BACKEND_PWD")
		}
	case "sqlite":
		if c.Backend.SQLitePath == "" {
			missing = append(missing, "BACKEND_SQLITE_PATH")
		}
	case "postgres":
		if c.Backend.PostgresDSN == "" {
			missing = append(missing, "BACKEND_POSTGRES_DSN")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown backend driver %q", c.Backend.Driver)
	}
	if needs.Cluster && c.Cluster.Root == "" {
		missing = append(missing, "CLUSTER_ROOT")
	}
	switch c.Output.Driver {
	case "fs", "":
		if c.Output.Dir == "" {
			missing = append(missing, "OUTPUT_DIR")
		}
	case "s3":
		if c.Output.S3Bucket == "" {
			missing = append(missing, "OUTPUT_S3_BUCKET")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown output driver %q", c.Output.Driver)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingError{Keys: missing}
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
