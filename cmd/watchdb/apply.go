package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/viant/watchdb/config"
	"github.com/viant/watchdb/db"
	"github.com/viant/watchdb/natsink"
	"github.com/viant/watchdb/watch"
)

const applyLongDescription = `
Apply a JSON-lines operation script to the instance described by --config.

Every line is one operation:

  {"op":"put","collection":"users","fields":{"key":"ann","age":30}}
  {"op":"update","collection":"users","where":[{"field":"key","op":"=","value":"ann"}],"set":{"age":31}}
  {"op":"delete","collection":"users","ids":[1]}

All operations run in a single write transaction. A failing operation aborts
the transaction. Committed change details are printed to stdout as JSON lines
and, with --publish, forwarded to the configured NATS server. --dry-run aborts
instead of committing, so nothing is printed or published.
`

type cmdApply struct {
	Config  string `long:"config" short:"c" required:"true" description:"Path to the YAML configuration"`
	Input   string `long:"input" short:"i" default:"-" description:"Operation script path. Use '-' for stdin"`
	DryRun  bool   `long:"dry-run" description:"Abort the transaction instead of committing it"`
	Publish bool   `long:"publish" description:"Publish committed batches to the configured NATS server"`
}

type applySummary struct {
	Operations int
	Affected   int
	Details    int
	Bytes      int64
	Committed  bool
	Elapsed    time.Duration
}

func (s applySummary) String() string {
	outcome := "committed"
	if !s.Committed {
		outcome = "aborted"
	}
	return fmt.Sprintf("%s %s operations (%s), %s objects affected, %s change details in %v",
		outcome, humanize.Comma(int64(s.Operations)), humanize.Bytes(uint64(s.Bytes)),
		humanize.Comma(int64(s.Affected)), humanize.Comma(int64(s.Details)), s.Elapsed.Round(time.Microsecond))
}

func (cmd *cmdApply) Execute([]string) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	configureLogging(cfg)

	input := io.Reader(os.Stdin)
	if cmd.Input != "-" {
		file, err := os.Open(cmd.Input)
		if err != nil {
			return errors.Wrap(err, "failed to open script")
		}
		defer file.Close()
		input = file
	}
	summary, err := cmd.run(context.Background(), cfg, input, os.Stdout)
	if err != nil {
		return err
	}
	log.Info(summary.String())
	return nil
}

func (cmd *cmdApply) run(ctx context.Context, cfg *config.Config, input io.Reader, output io.Writer) (applySummary, error) {
	start := time.Now()
	var summary applySummary
	ops, size, err := readOperations(input)
	if err != nil {
		return summary, err
	}
	summary.Bytes = size

	registry := watch.NewRegistry(log.StandardLogger())
	instance, err := db.Open(cfg, db.WithRegistry(registry), db.WithLogger(log.StandardLogger()))
	if err != nil {
		return summary, err
	}
	defer instance.Close()

	var names []string
	for _, c := range instance.Schema().Stored() {
		names = append(names, c.Name)
	}
	encoder := json.NewEncoder(output)
	for _, name := range names {
		registry.WatchDetailed(name, func(batch watch.Batch) {
			for _, detail := range batch.Changes {
				if err := encoder.Encode(detail); err != nil {
					log.WithError(err).Warn("failed to print change")
				}
			}
			summary.Details += len(batch.Changes)
		})
	}
	if cmd.Publish && cfg.NATS.URL != "" {
		publisher, err := natsink.Connect(cfg.NATS, log.StandardLogger())
		if err != nil {
			return summary, err
		}
		defer publisher.Close()
		publisher.Attach(registry, names...)
	}

	txn, err := instance.Begin(ctx, true)
	if err != nil {
		return summary, err
	}
	for n, op := range ops {
		affected, err := op.Apply(txn)
		if err != nil {
			txn.Abort()
			return summary, errors.WithMessagef(err, "operation %d (%s %s)", n+1, op.Op, op.Collection)
		}
		summary.Operations++
		summary.Affected += affected
	}
	if cmd.DryRun {
		txn.Abort()
	} else {
		if err := txn.Commit(); err != nil {
			return summary, err
		}
		summary.Committed = true
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}

func configureLogging(cfg *config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := cfg.LogLevel(); err == nil {
		log.SetLevel(level)
	}
	log.SetOutput(os.Stderr)
}
