package main

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumineer/alight/internal/util"
	"github.com/lumineer/alight/mount"
)

func runMount(cmd *cobra.Command, args []string) error {
	logger := util.GetLogger("mount")
	mnt := args[0]

	if umount {
		// ignore the error when not already mounted
		exec.Command("fusermount", "-u", mnt).Run() // nolint:errcheck
	}

	t, err := openTree()
	if err != nil {
		return err
	}
	defer t.Close() // nolint:errcheck

	view := mount.New(t, cfg)
	if err := view.Serve(mnt); err != nil {
		logger.Error().Err(err).Str("mountpoint", mnt).Msg("Failed to mount knowledge base")
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(signalChan)

	done := make(chan struct{})
	go func() {
		view.Wait()
		close(done)
	}()

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting")
		if err := view.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount")
			return err
		}
		<-done
	case <-done:
		logger.Info().Msg("Unmounted externally")
	}
	logger.Info().Msg("Knowledge base unmounted")
	return nil
}
