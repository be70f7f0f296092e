package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"lta/internal/analysis"
	"lta/internal/cache"
	"lta/internal/config"
	"lta/internal/cpa"
	"lta/internal/jaccard"
	"lta/internal/logging"
	"lta/internal/models"
	"lta/internal/pipeline"
	"lta/internal/report"
	"lta/internal/state"
	"lta/internal/store"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

const version = "LTA 0.4.0"

const usage = `LTA: lipid trafficking analysis

Usage:
  lta run <input> <output> [-v...] [--logfile=<file>...] [options]
  lta cluster <input> [-v...] [--logfile=<file>...] [options]
  lta -h | --help
  lta -V | --version

Options:
  -h --help                   Show this screen.
  -V --version                Show version.
  -c FILE --config=FILE       Config file location (default lta_conf.txt).
  -t T --threshold=T          The '0' threshold, in [0, 1] (default 0.2).
  -b N --boot-reps=N          Number of bootstrap repetitions (default 1000).
  --seed=N                    Bootstrap seed (default 42).
  --phenotype=LEVEL           Metadata label for experimental conditions.
  --tissue=LEVEL              Metadata label for sample compartments.
  --mode=LEVEL                Metadata label for lipidomics mode.
  --sample=LEVEL              Metadata label for sample ids.
  --order=LABELS              Experimental and control labels, e.g. "experimental control".
  --workers=N                 Concurrent bootstraps (default number of CPUs).
  --cache-dir=DIR             Keep bootstrap results in a badger store.
  --database-url=URL          Save the run to PostgreSQL.
  --npy                       Also write class tables as .npy files.
  --clusters=K                Clusters to form [default: 2].
  --linkage=L                 ward, complete, average or single [default: ward].
  --metric=M                  euclidean, manhattan or cosine [default: euclidean].
  --components=N              Project onto N principal components first [default: 0].
  --ion-mode=M                Only cluster samples of this mode.
  -v --verbose                Increase verbosity.
  -l FILE --logfile=FILE      Location of logfile. May also be 'term' for stdout.`

func main() {
	args, err := docopt.Parse(usage, nil, true, version, false)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := configure(args)
	if err != nil {
		log.Fatal(err)
	}
	closeLogs, err := logging.Setup(cfg.Verbose, cfg.Logfiles)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	input, _ := args["<input>"].(string)
	switch {
	case args["run"] == true:
		output, _ := args["<output>"].(string)
		err = run(ctx, cfg, input, output)
	case args["cluster"] == true:
		err = cluster(cfg, input, args)
	}
	if err != nil {
		closeLogs()
		log.Fatal(err)
	}
}

// configure layers defaults, the config file and the command line.
func configure(args map[string]interface{}) (config.Config, error) {
	cfg := config.Default()
	path, required := config.DefaultFile, false
	if c, ok := args["--config"].(string); ok && c != "" {
		path, required = c, true
	}
	if err := cfg.LoadFile(path, required); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyFlags(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, input, output string) error {
	start := time.Now()
	data, err := analysis.NewCSVService(cfg.Levels).LoadFolder(input)
	if err != nil {
		return err
	}

	var est jaccard.Estimator = jaccard.Default
	if cfg.CacheDir != "" {
		c, err := cache.Open(cfg.CacheDir, jaccard.Default)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer func() {
			s := c.Stats()
			log.WithFields(log.Fields{"hits": s.Hits, "misses": s.Misses, "errors": s.Errors}).Info("bootstrap cache")
			c.Close()
		}()
		est = c
	}

	res, err := pipeline.Run(ctx, cfg, data, pipeline.WithEstimator(est))
	if err != nil {
		return err
	}

	files, err := report.Writer{Dir: output, NPY: cfg.NPY}.Write(res)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"dir": output, "files": len(files)}).Info("reports written")

	if cfg.DatabaseURL != "" {
		db, err := store.Connect(ctx, store.DataSourceConfig{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		runID := state.NewID()
		if err := db.SaveRun(ctx, runID, cfg, res); err != nil {
			return err
		}
		log.WithFields(log.Fields{"run": runID}).Info("run saved")
	}

	log.WithFields(log.Fields{
		"modes":        res.Modes(),
		"similarities": len(res.Similarities),
		"elapsed":      time.Since(start).Round(time.Millisecond),
	}).Info("analysis complete")
	return nil
}

func cluster(cfg config.Config, input string, args map[string]interface{}) error {
	m, err := analysis.NewCSVService(cfg.Levels).ReadMatrix(input)
	if err != nil {
		return err
	}
	if mode, _ := args["--ion-mode"].(string); mode != "" {
		split, err := m.SplitBy(models.RoleMode)
		if err != nil {
			return err
		}
		sub, ok := split[mode]
		if !ok {
			return fmt.Errorf("mode %q not in %s", mode, input)
		}
		m = sub
	}

	k, err := intArg(args, "--clusters")
	if err != nil {
		return err
	}
	components, err := intArg(args, "--components")
	if err != nil {
		return err
	}
	linkage, _ := args["--linkage"].(string)
	metric, _ := args["--metric"].(string)

	var obs *mat.Dense
	if components > 0 {
		if obs, err = (cpa.PCA{Components: components}).Normalize(m.Observations()); err != nil {
			return err
		}
	} else {
		obs = cpa.Normalizer{}.Normalize(m.Observations())
	}
	labels, err := cpa.Hierarchical{Clusters: k, Linkage: cpa.Linkage(linkage), Metric: cpa.Metric(metric)}.Cluster(obs)
	if err != nil {
		return err
	}

	for i, s := range m.Samples {
		fmt.Printf("%s\t%s\t%s\t%s\t%d\n", s.ID, s.Compartment, s.Condition, s.Mode, labels[i])
	}
	return nil
}

func intArg(args map[string]interface{}, name string) (int, error) {
	s, _ := args[name].(string)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}
