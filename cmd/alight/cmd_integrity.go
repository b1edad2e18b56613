package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/internal/util"
	"github.com/lumineer/alight/namespace"
	"github.com/lumineer/alight/requests"
)

// errViolations makes verify exit non-zero on an inconsistent knowledge base.
var errViolations = errors.New("integrity violations found")

func runVerify(cmd *cobra.Command, args []string) error {
	return withTree(func(t *namespace.Tree) error {
		vs, err := t.VerifyIntegrity()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(vs) == 0 {
			fmt.Fprintln(w, "ok")
			return nil
		}
		for _, v := range vs {
			fmt.Fprintln(w, v)
		}
		return fmt.Errorf("%w: %d", errViolations, len(vs))
	})
}

func runRepair(cmd *cobra.Command, args []string) error {
	return withTree(func(t *namespace.Tree) error {
		vs, err := t.Repair()
		printRepairReport(cmd.OutOrStdout(), vs, err)
		return err
	})
}

// printRepairReport lists what repair handled. When repair failed nothing
// is claimed as fixed.
func printRepairReport(w io.Writer, vs []alight.Violation, err error) {
	verb := "repaired"
	if err != nil {
		verb = "found"
	}
	for _, v := range vs {
		fmt.Fprintf(w, "%s %s\n", verb, v)
	}
	if err == nil && len(vs) == 0 {
		fmt.Fprintln(w, "nothing to repair")
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	logger := util.GetLogger("import")
	reqs, err := requests.LoadFile(args[0])
	if err != nil {
		return err
	}
	logger.Debug().Int("requests", len(reqs)).Str("file", args[0]).Msg("Import file loaded")

	return withTree(func(t *namespace.Tree) error {
		var failed int
		for _, req := range reqs {
			if _, err := t.Apply(req); err != nil {
				logger.Error().Err(err).
					Str("type", string(req.GetType())).
					Str("address", req.GetAddress()).
					Msg("Failed to apply request")
				failed++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d of %d requests\n", len(reqs)-failed, len(reqs))
		if failed > 0 {
			return fmt.Errorf("%d request(s) failed", failed)
		}
		return nil
	})
}
