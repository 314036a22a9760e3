// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// hashtab-stress runs randomized workloads against the hashtab containers,
// checking every result against a simple model built from Go maps and
// slices. It exits with status 1 on the first divergence.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

type options struct {
	table         string
	ops           int
	keys          int
	seed          int64
	validateEvery int
	verbose       bool
	logger        *slog.Logger
}

// stresser runs ops random operations and returns the number of operations
// that changed the container.
type stresser func(rng *rand.Rand, opts options) (mutations int, err error)

var stressers = map[string]stresser{
	"slim":    stressSlim,
	"ordered": stressOrdered,
	"bimap":   stressBiMap,
}

var tableOrder = []string{"slim", "ordered", "bimap"}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func parseFlags(errOut io.Writer, args []string) (options, error) {
	var opts options
	flagSet := flag.NewFlagSet("hashtab-stress", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	flagSet.StringVar(&opts.table, "table", "all", "Table to stress: slim, ordered, bimap or all")
	flagSet.IntVar(&opts.ops, "ops", 100000, "Number of operations per table")
	flagSet.IntVar(&opts.keys, "keys", 1000, "Size of the key space")
	flagSet.Int64Var(&opts.seed, "seed", 0, "Random seed (0 picks one from the clock)")
	flagSet.IntVar(&opts.validateEvery, "validate-every", 1000, "Validate the table every N operations (0 disables)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress at debug level")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	if opts.table != "all" {
		if _, ok := stressers[opts.table]; !ok {
			return opts, fmt.Errorf("unknown table %q", opts.table)
		}
	}
	if opts.ops < 0 || opts.keys <= 0 || opts.validateEvery < 0 {
		return opts, fmt.Errorf("--ops and --validate-every must not be negative, --keys must be positive")
	}
	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}
	return opts, nil
}

func run(args []string, errOut io.Writer) int {
	opts, err := parseFlags(errOut, args)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 2
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
	opts.logger = logger
	logger.Info("starting", "table", opts.table, "ops", opts.ops, "keys", opts.keys, "seed", opts.seed)

	tables := tableOrder
	if opts.table != "all" {
		tables = []string{opts.table}
	}
	for _, name := range tables {
		rng := rand.New(rand.NewSource(opts.seed))
		start := time.Now()
		mutations, err := stressers[name](rng, opts)
		if err != nil {
			logger.Error("divergence", "table", name, "seed", opts.seed, "err", err)
			return 1
		}
		logger.Info("passed", "table", name,
			"ops", opts.ops, "mutations", mutations, "elapsed", time.Since(start))
	}
	return 0
}
