package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/samiralibabic/previewd/internal/pin"
	"github.com/spf13/cobra"
)

func newPinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Inspect or change pinned main files in the pin database",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <project>",
			Short: "Print the pinned main file of a project",
			Args:  cobra.ExactArgs(1),
			RunE:  runPinGet,
		},
		&cobra.Command{
			Use:   "set <project> <path>",
			Short: "Pin a main file for a project",
			Args:  cobra.ExactArgs(2),
			RunE:  runPinSet,
		},
		&cobra.Command{
			Use:   "clear <project>",
			Short: "Remove the pin of a project",
			Args:  cobra.ExactArgs(1),
			RunE:  runPinClear,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List every pinned project",
			Args:  cobra.NoArgs,
			RunE:  runPinList,
		},
	)
	return cmd
}

// withPinDB opens the configured database for the duration of fn. The
// running daemon picks up changes on its next lookup.
func withPinDB(cmd *cobra.Command, fn func(*pin.SQLiteStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Pins.DBPath == "" {
		return errors.New("pins.db_path is not configured")
	}
	store, err := pin.OpenSQLite(cfg.Pins.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func absArg(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func runPinGet(cmd *cobra.Command, args []string) error {
	project, err := absArg(args[0])
	if err != nil {
		return err
	}
	return withPinDB(cmd, func(store *pin.SQLiteStore) error {
		path, err := store.Get(project)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not pinned\n", project)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	})
}

func runPinSet(cmd *cobra.Command, args []string) error {
	project, err := absArg(args[0])
	if err != nil {
		return err
	}
	path := args[1]
	if !filepath.IsAbs(path) {
		path = filepath.Join(project, path)
	}
	path = filepath.Clean(path)
	return withPinDB(cmd, func(store *pin.SQLiteStore) error {
		if err := store.Set(project, path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", project, path)
		return nil
	})
}

func runPinClear(cmd *cobra.Command, args []string) error {
	project, err := absArg(args[0])
	if err != nil {
		return err
	}
	return withPinDB(cmd, func(store *pin.SQLiteStore) error {
		return store.Clear(project)
	})
}

func runPinList(cmd *cobra.Command, _ []string) error {
	return withPinDB(cmd, func(store *pin.SQLiteStore) error {
		pins, err := store.List()
		if err != nil {
			return err
		}
		for _, project := range pin.Projects(pins) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", project, pins[project])
		}
		return nil
	})
}
