package main

import (
	"github.com/spf13/cobra"

	"github.com/lumineer/alight/config"
	"github.com/lumineer/alight/internal/util"
)

// --- Global Command Variables ---
var (
	configPath  string
	rootDir     string
	backendType string
	verbose     int
	noRepair    bool

	createMissing bool
	leafFile      string
	walkDepth     int
	umount        bool

	// cfg is built by the root command before any subcommand runs
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "alight",
		Short: "Manage an Alight knowledge base",
		Long: `alight edits and inspects a knowledge base: a tree of dotted
addresses whose nodes are directories and whose leaves are text files.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve ADDRESS",
		Short: "Show what exists at an address",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}
	mkdirCmd = &cobra.Command{
		Use:   "mkdir ADDRESS",
		Short: "Create a node, creating missing intermediates",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
	putCmd = &cobra.Command{
		Use:   "put ADDRESS [TEXT]",
		Short: "Create a leaf holding TEXT, --file content, or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}
	updateCmd = &cobra.Command{
		Use:   "update ADDRESS [TEXT]",
		Short: "Replace the content of an existing leaf",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runUpdate,
	}
	catCmd = &cobra.Command{
		Use:   "cat ADDRESS",
		Short: "Print the content of a leaf",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}
	lsCmd = &cobra.Command{
		Use:   "ls [ADDRESS]",
		Short: "List the children of a node (default: the root)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
	rmCmd = &cobra.Command{
		Use:     "rm ADDRESS",
		Short:   "Delete a node or leaf and everything below it",
		Aliases: []string{"delete"},
		Args:    cobra.ExactArgs(1),
		RunE:    runRm,
	}
	treeCmd = &cobra.Command{
		Use:   "tree [ADDRESS]",
		Short: "Print the subtree at an address",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTree,
	}
	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Report integrity violations without changing anything",
		Args:  cobra.NoArgs,
		RunE:  runVerify,
	}
	repairCmd = &cobra.Command{
		Use:   "repair",
		Short: "Verify and repair the knowledge base",
		Args:  cobra.NoArgs,
		RunE:  runRepair,
	}
	importCmd = &cobra.Command{
		Use:   "import FILE",
		Short: "Apply the create requests in a YAML or JSON import file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	mountCmd = &cobra.Command{
		Use:   "mount MOUNTPOINT",
		Short: "Serve a read-only FUSE view of the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE:  runMount,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	pf.StringVarP(&rootDir, "root", "r", "", "Knowledge base directory (overrides config)")
	pf.StringVarP(&backendType, "backend", "b", "", `Backend type: "fs" or "snapshot" (overrides config)`)
	pf.IntVarP(&verbose, "verbose", "v", 0, "Log verbosity between 1 (error) and 5 (trace). Default is 3 (info).")
	pf.BoolVar(&noRepair, "no-repair", false, "Disable verify-and-repair after mutations")

	resolveCmd.Flags().BoolVar(&createMissing, "create", false, "Create missing positions as nodes")
	putCmd.Flags().StringVarP(&leafFile, "file", "f", "", "Read leaf content from a file")
	updateCmd.Flags().StringVarP(&leafFile, "file", "f", "", "Read leaf content from a file")
	treeCmd.Flags().IntVarP(&walkDepth, "depth", "d", 0, "Limit the depth printed (0 = unlimited)")
	mountCmd.Flags().BoolVarP(&umount, "umount", "u", false,
		"Unmount the mountpoint first if needed. Useful for debuggers that don't exit properly.")

	rootCmd.AddCommand(resolveCmd, mkdirCmd, putCmd, updateCmd, catCmd, lsCmd, rmCmd,
		treeCmd, verifyCmd, repairCmd, importCmd, mountCmd)
}

// setup builds the session config from the global flags and initializes
// logging at its level. Flags override the config file.
func setup(cmd *cobra.Command, args []string) error {
	var override config.ConfigOverride
	if rootDir != "" {
		override.Root = &rootDir
	}
	if backendType != "" {
		override.Backend = &backendType
	}
	if verbose != 0 {
		override.LogLvl = &verbose
	}
	if noRepair {
		override.AutoRepair = util.Pointer(false)
	}

	if configPath != "" {
		c, err := config.NewConfigFromFile(configPath)
		if err != nil {
			return err
		}
		c.Merge(&override)
		cfg = c
	} else {
		cfg = config.NewConfig(&override)
	}
	util.InitializeLoggerTo(cmd.ErrOrStderr(), cfg.LogLvl)

	logger := util.GetLogger("cli")
	logger.Debug().
		Str("root", cfg.Root).
		Str("backend", cfg.Backend).
		Bool("autoRepair", cfg.AutoRepair).
		Msg("Configuration loaded")
	return cfg.Validate()
}
