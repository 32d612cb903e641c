// Command colstore is a thin CLI front-end over the engine package: put,
// get, del, query, and stats subcommands against a directory-backed
// store. It is not part of the library's contract.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/embedkv/colstore/engine"
)

func main() {
	app := &cli.Command{
		Name:  "colstore",
		Usage: "embedded column-family LSM key-value store",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "database directory (WAL + SSTables live here)",
				Value:   "data",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable structured logging to stderr",
				Value: false,
			},
		},

		Commands: []*cli.Command{
			putCommand(),
			getCommand(),
			delCommand(),
			queryCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openEngine(c *cli.Command) (*engine.Engine, error) {
	opts := engine.DefaultOptions()
	opts.Dir = c.String("dir")
	if c.Bool("verbose") {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		opts.Logger = logger
	}
	return engine.Open(opts)
}

func putCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "write a value",
		ArgsUsage: "<column> <key> <value>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 3 {
				return fmt.Errorf("usage: colstore put <column> <key> <value>")
			}
			e, err := openEngine(c)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			column, key, value := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
			if err := e.Put(column, key, value); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "read a value",
		ArgsUsage: "<column> <key>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("usage: colstore get <column> <key>")
			}
			e, err := openEngine(c)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			raw, ok, err := e.Get(c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(not found)")
				os.Exit(1)
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}

func delCommand() *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "delete a value",
		ArgsUsage: "<column> <key>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("usage: colstore del <column> <key>")
			}
			e, err := openEngine(c)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if err := e.Delete(c.Args().Get(0), c.Args().Get(1)); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "range-scan a column",
		ArgsUsage: "<column> <start-key> <end-key>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 3 {
				return fmt.Errorf("usage: colstore query <column> <start-key> <end-key>")
			}
			e, err := openEngine(c)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			results, err := e.Query(c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%s\t%s\n", r.Key, string(r.Value))
			}
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "force a flush of the memtable (level sizes are not reported)",
		Action: func(ctx context.Context, c *cli.Command) error {
			e, err := openEngine(c)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if err := e.Flush(); err != nil {
				return err
			}
			fmt.Println("flushed")
			return nil
		},
	}
}
