// Command watchdb applies JSON-lines operation scripts to a watchdb instance
// and prints the committed change details.
package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

func main() {
	parser := flags.NewParser(nil, flags.Default)
	parser.LongDescription = `watchdb is a tool for applying operation scripts to a watchdb
instance configured by a YAML file and observing the resulting changes.

See --help pages of each sub-command for documentation.`

	mustAddCmd(parser.Command, "apply", "Apply an operation script in one transaction", applyLongDescription, &cmdApply{})
	mustAddCmd(parser.Command, "schema", "Print the configured collections", "", &cmdSchema{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAddCmd(cmd *flags.Command, name, short, long string, cfg interface{}) *flags.Command {
	added, err := cmd.AddCommand(name, short, long, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to add command")
	}
	return added
}
