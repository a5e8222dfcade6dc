// Package schema serializes the CLI command tree so wrappers and docs
// tooling can discover commands and flags without scraping help text.
package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Command struct {
	Path        string    `json:"path"`
	Use         string    `json:"use"`
	Short       string    `json:"short"`
	Aliases     []string  `json:"aliases,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

type Flag struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// Describe walks from root to the command named by path (space-separated
// names or aliases) and serializes it with its visible subcommands. An empty
// path describes the whole tree.
func Describe(root *cobra.Command, path string) (Command, error) {
	cmd, err := find(root, path)
	if err != nil {
		return Command{}, err
	}
	return serialize(cmd), nil
}

func find(root *cobra.Command, path string) (*cobra.Command, error) {
	cmd := root
	for _, part := range strings.Fields(strings.TrimSpace(path)) {
		var next *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == part || hasAlias(c, part) {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("command not found: %s", path)
		}
		cmd = next
	}
	return cmd, nil
}

func serialize(cmd *cobra.Command) Command {
	out := Command{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   flagList(cmd.NonInheritedFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		out.Subcommands = append(out.Subcommands, serialize(sub))
	}
	return out
}

func flagList(set *pflag.FlagSet) []Flag {
	flags := []Flag{}
	set.VisitAll(func(f *pflag.Flag) {
		flags = append(flags, Flag{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return flags
}

func hasAlias(cmd *cobra.Command, name string) bool {
	for _, alias := range cmd.Aliases {
		if alias == name {
			return true
		}
	}
	return false
}
