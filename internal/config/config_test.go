package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Threshold != 0.2 || c.BootReps != 1000 || c.Seed != 42 {
		t.Fatalf("defaults = %+v", c)
	}
	if c.Order != [2]string{"experimental", "control"} {
		t.Fatalf("order = %v", c.Order)
	}
	if c.Levels.Condition != "Phenotype" || c.Levels.Compartment != "Tissue" || c.Levels.Mode != "Mode" {
		t.Fatalf("levels = %+v", c.Levels)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	in := `# lipid run
threshold=0.5
--boot-reps = 200

order=treated untreated
`
	got, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]string{{"threshold", "0.5"}, {"boot-reps", " 200"}, {"order", "treated untreated"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parsed %q, want %q", got, want)
	}
	if _, err := Parse(strings.NewReader("threshold 0.5")); err == nil {
		t.Fatal("expected an error for a line without =")
	}
}

func TestLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	conf := "threshold=0.5\nboot-reps=200\ntissue=Organ\nsomething-else=1\nlogfile=run.log\n"
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}

	c := Default()
	if err := c.LoadFile(path, true); err != nil {
		t.Fatal(err)
	}
	if c.Threshold != 0.5 || c.BootReps != 200 || c.Levels.Compartment != "Organ" {
		t.Fatalf("after file: %+v", c)
	}

	err := c.ApplyFlags(map[string]interface{}{
		"--threshold": "0.1",
		"--boot-reps": nil,
		"--order":     []string{"treated", "untreated"},
		"--verbose":   2,
		"--npy":       true,
		"--logfile":   []string{"term"},
		"--help":      false,
		"<input>":     "data",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Threshold != 0.1 || c.BootReps != 200 || c.Verbose != 2 || !c.NPY {
		t.Fatalf("after flags: %+v", c)
	}
	if c.Order != [2]string{"treated", "untreated"} {
		t.Fatalf("order = %v", c.Order)
	}
	if !reflect.DeepEqual(c.Logfiles, []string{"term"}) {
		t.Fatalf("logfiles = %v", c.Logfiles)
	}
}

func TestLoadFileMissing(t *testing.T) {
	c := Default()
	missing := filepath.Join(t.TempDir(), "nope.txt")
	if err := c.LoadFile(missing, false); err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if err := c.LoadFile(missing, true); err == nil {
		t.Fatal("expected an error for a required missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"threshold high", func(c *Config) { c.Threshold = 1.5 }},
		{"threshold negative", func(c *Config) { c.Threshold = -0.1 }},
		{"reps", func(c *Config) { c.BootReps = 0 }},
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"order", func(c *Config) { c.Order = [2]string{"control", "control"} }},
		{"levels", func(c *Config) { c.Levels.Mode = c.Levels.Compartment }},
	}
	for _, test := range tests {
		c := Default()
		test.edit(&c)
		if err := c.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: got %v, want ErrInvalid", test.name, err)
		}
	}

	c := Default()
	if err := c.Set("threshold", "abc"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
	if err := c.Set("colour", "blue"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("got %v, want ErrUnknown", err)
	}
}
