package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/docopt/docopt-go"
)

func TestConfigure(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "conf.txt")
	if err := os.WriteFile(conf, []byte("threshold = 0.4\nboot-reps = 50\nlogfile = file.log\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		argv      []string
		threshold float64
		reps      int
		order     [2]string
		verbose   int
		logfiles  []string
	}{
		{
			[]string{"run", "in", "out", "-c", conf},
			0.4, 50, [2]string{"experimental", "control"}, 0, []string{"file.log"},
		},
		{
			[]string{"run", "in", "out", "-c", conf, "-t", "0.1", "--order", "sick healthy", "-vv", "-l", "term"},
			0.1, 50, [2]string{"sick", "healthy"}, 2, []string{"term"},
		},
	}
	for _, test := range tests {
		args, err := docopt.Parse(usage, test.argv, false, version, false, false)
		if err != nil {
			t.Fatalf("%v: %v", test.argv, err)
		}
		cfg, err := configure(args)
		if err != nil {
			t.Fatalf("%v: %v", test.argv, err)
		}
		if cfg.Threshold != test.threshold || cfg.BootReps != test.reps || cfg.Order != test.order ||
			cfg.Verbose != test.verbose || !reflect.DeepEqual(cfg.Logfiles, test.logfiles) {
			t.Errorf("%v: got %+v", test.argv, cfg)
		}
	}
}

func TestConfigureInvalid(t *testing.T) {
	for _, argv := range [][]string{
		{"run", "in", "out", "-t", "2"},
		{"run", "in", "out", "--order", "same same"},
		{"run", "in", "out", "-c", filepath.Join(t.TempDir(), "missing.txt")},
	} {
		args, err := docopt.Parse(usage, argv, false, version, false, false)
		if err != nil {
			t.Fatalf("%v: %v", argv, err)
		}
		if _, err := configure(args); err == nil {
			t.Errorf("%v: expected an error", argv)
		}
	}
}
