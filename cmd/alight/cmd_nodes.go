package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/namespace"
)

// openTree opens the knowledge base described by cfg. Callers close it.
func openTree() (*namespace.Tree, error) {
	return namespace.Open(cfg)
}

// withTree runs fn against an open tree and closes it afterwards.
func withTree(fn func(t *namespace.Tree) error) error {
	t, err := openTree()
	if err != nil {
		return err
	}
	defer t.Close() // nolint:errcheck
	return fn(t)
}

// addressArg parses args[i], or returns the root when it is absent.
func addressArg(args []string, i int) (address.Address, error) {
	if len(args) <= i {
		return address.Root(), nil
	}
	return address.Parse(args[i])
}

// leafContent picks the content for put and update: the TEXT argument,
// the --file flag, or stdin, in that order.
func leafContent(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) > 1 && leafFile != "":
		return "", fmt.Errorf("give either TEXT or --file, not both")
	case len(args) > 1:
		return args[1], nil
	case leafFile != "":
		data, err := os.ReadFile(leafFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func displayAddress(a address.Address) string {
	if a.IsRoot() {
		return "."
	}
	return a.String()
}

func printView(w io.Writer, v alight.NodeView) {
	if v.Kind == alight.Leaf {
		fmt.Fprintf(w, "%s\tleaf\t%d bytes\n", displayAddress(v.Address), len(v.Content))
		return
	}
	fmt.Fprintf(w, "%s\t%s\n", displayAddress(v.Address), v.Kind)
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	return withTree(func(t *namespace.Tree) error {
		v, err := t.Resolve(a, createMissing)
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), v)
		return nil
	})
}

func runMkdir(cmd *cobra.Command, args []string) error {
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	if a.IsRoot() {
		return fmt.Errorf("%w: the root always exists", alight.ErrInvalidAddress)
	}
	return withTree(func(t *namespace.Tree) error {
		v, err := t.CreateNode(a.Parent(), a.Name())
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), v)
		return nil
	})
}

func runPut(cmd *cobra.Command, args []string) error {
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	if a.IsRoot() {
		return fmt.Errorf("%w: the root is always a node", alight.ErrConflict)
	}
	content, err := leafContent(cmd, args)
	if err != nil {
		return err
	}
	return withTree(func(t *namespace.Tree) error {
		v, err := t.CreateLeaf(a.Parent(), a.Name(), content)
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), v)
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	content, err := leafContent(cmd, args)
	if err != nil {
		return err
	}
	return withTree(func(t *namespace.Tree) error {
		return t.UpdateLeaf(a, content)
	})
}

func runCat(cmd *cobra.Command, args []string) error {
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	return withTree(func(t *namespace.Tree) error {
		content, err := t.ReadLeaf(a)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), content)
		return err
	})
}

func runLs(cmd *cobra.Command, args []string) error {
	a, err := addressArg(args, 0)
	if err != nil {
		return err
	}
	return withTree(func(t *namespace.Tree) error {
		entries, err := t.Read(a)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintln(w, e)
		}
		return nil
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	a, err := address.Parse(args[0])
	if err != nil {
		return err
	}
	return withTree(func(t *namespace.Tree) error {
		return t.Delete(a)
	})
}

func runTree(cmd *cobra.Command, args []string) error {
	a, err := addressArg(args, 0)
	if err != nil {
		return err
	}
	base := a.Depth()
	w := cmd.OutOrStdout()
	return withTree(func(t *namespace.Tree) error {
		return t.Walk(a, func(v alight.NodeView) error {
			depth := v.Address.Depth() - base
			if depth == 0 {
				fmt.Fprintln(w, displayAddress(v.Address))
				return nil
			}
			line := strings.Repeat("  ", depth-1) + v.Address.Name()
			if v.Kind == alight.Leaf {
				line += fmt.Sprintf(" (%d bytes)", len(v.Content))
			}
			fmt.Fprintln(w, line)
			if walkDepth > 0 && depth >= walkDepth {
				return namespace.SkipChildren
			}
			return nil
		})
	})
}
