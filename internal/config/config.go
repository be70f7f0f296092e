// Package config layers run options: built-in defaults, then an
// option=value file, then command-line flags.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"lta/internal/jaccard"
	"lta/internal/lipid"
	"lta/internal/models"
)

// DefaultFile is read when no config file is named.
const DefaultFile = "lta_conf.txt"

var (
	ErrInvalid = errors.New("invalid option")
	ErrUnknown = errors.New("unknown option")
)

type Config struct {
	Threshold   float64
	BootReps    int
	Seed        int64
	Levels      models.Levels
	Order       [2]string
	Workers     int
	CacheDir    string
	DatabaseURL string
	NPY         bool
	Verbose     int
	Logfiles    []string
}

func Default() Config {
	return Config{
		Threshold: 0.2,
		BootReps:  jaccard.DefaultReps,
		Seed:      jaccard.DefaultSeed,
		Levels:    models.DefaultLevels(),
		Order:     lipid.DefaultOrder,
		Workers:   runtime.NumCPU(),
	}
}

// Set assigns one option by its long flag name, without dashes.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "threshold", "t":
		c.Threshold, err = strconv.ParseFloat(value, 64)
	case "boot-reps", "b":
		c.BootReps, err = strconv.Atoi(value)
	case "seed":
		c.Seed, err = strconv.ParseInt(value, 10, 64)
	case "phenotype":
		c.Levels.Condition = value
	case "tissue":
		c.Levels.Compartment = value
	case "mode":
		c.Levels.Mode = value
	case "sample":
		c.Levels.SampleID = value
	case "order":
		f := strings.Fields(strings.Trim(value, "[]"))
		if len(f) != 2 {
			return fmt.Errorf("%w: order needs two labels, got %q", ErrInvalid, value)
		}
		c.Order = [2]string{strings.Trim(f[0], `"',`), strings.Trim(f[1], `"',`)}
	case "workers":
		c.Workers, err = strconv.Atoi(value)
	case "cache-dir":
		c.CacheDir = value
	case "database-url":
		c.DatabaseURL = value
	case "npy":
		c.NPY, err = strconv.ParseBool(value)
	case "verbose", "v":
		c.Verbose, err = strconv.Atoi(value)
	case "logfile", "l":
		c.Logfiles = append(c.Logfiles, value)
	default:
		return fmt.Errorf("%w %q", ErrUnknown, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, value, err)
	}
	return nil
}

// Parse reads option=value lines. Blank lines and lines starting with # are
// skipped; keys may carry leading dashes.
func Parse(r io.Reader) ([][2]string, error) {
	var out [][2]string
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected option=value, got %q", n, line)
		}
		out = append(out, [2]string{strings.TrimLeft(strings.TrimSpace(key), "-"), value})
	}
	return out, sc.Err()
}

// LoadFile applies a config file. Unknown keys are ignored. A missing file
// is only an error when required.
func (c *Config) LoadFile(path string, required bool) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	pairs, err := Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, p := range pairs {
		if err := c.Set(p[0], p[1]); err != nil {
			if errors.Is(err, ErrUnknown) {
				continue
			}
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// ApplyFlags applies parsed command-line options keyed by their flag
// ("--threshold"). Unset options (nil, false, empty) leave the value alone.
func (c *Config) ApplyFlags(flags map[string]interface{}) error {
	for flag, v := range flags {
		if !strings.HasPrefix(flag, "-") {
			continue
		}
		key := strings.TrimLeft(flag, "-")
		var values []string
		switch val := v.(type) {
		case nil:
		case string:
			values = []string{val}
		case []string:
			if key == "order" {
				values = []string{strings.Join(val, " ")}
			} else {
				values = val
			}
		case bool:
			if val && key == "npy" {
				values = []string{"true"}
			}
		case int:
			if val > 0 {
				values = []string{strconv.Itoa(val)}
			}
		}
		if key == "logfile" && len(values) > 0 {
			c.Logfiles = nil
		}
		for _, s := range values {
			if err := c.Set(key, s); err != nil {
				if errors.Is(err, ErrUnknown) {
					break
				}
				return err
			}
		}
	}
	return nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.Threshold < 0 || c.Threshold > 1:
		return fmt.Errorf("%w: threshold %v outside [0, 1]", ErrInvalid, c.Threshold)
	case c.BootReps < 1:
		return fmt.Errorf("%w: boot-reps must be positive, got %d", ErrInvalid, c.BootReps)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, c.Workers)
	case c.Order[0] == "" || c.Order[1] == "" || c.Order[0] == c.Order[1]:
		return fmt.Errorf("%w: order needs two distinct labels, got %v", ErrInvalid, c.Order)
	}
	names := c.Levels.Names()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			return fmt.Errorf("%w: level names must be distinct and non-empty, got %v", ErrInvalid, names)
		}
		seen[n] = true
	}
	return nil
}
