package main

import (
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/viant/watchdb/config"
	"github.com/viant/watchdb/schema"
)

type cmdSchema struct {
	Config string `long:"config" short:"c" required:"true" description:"Path to the YAML configuration"`
}

func (cmd *cmdSchema) Execute([]string) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	s, err := cfg.Schema()
	if err != nil {
		return err
	}
	return writeSchema(os.Stdout, s)
}

func writeSchema(w io.Writer, s *schema.Schema) error {
	var table = tablewriter.NewWriter(w)
	table.Header("Collection", "Index", "Property", "Type", "Target")
	for _, c := range s.Collections {
		name := c.Name
		if c.Embedded {
			name += " (embedded)"
		} else if err := table.Append([]string{name, "0", c.Identity(), "identity", ""}); err != nil {
			return err
		}
		for i, p := range c.Properties {
			if err := table.Append([]string{name, strconv.Itoa(i + 1), p.Name, p.Type.String(), p.Target}); err != nil {
				return err
			}
		}
	}
	return table.Render()
}
