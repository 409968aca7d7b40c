package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"devlinkd/device"
	"devlinkd/devlink"
)

var removeNodeDev deviceFlags

var removeNodeCmd = &cobra.Command{
	Use:   "remove-node",
	Short: "Retract a device's stable links and canonical devnum link",
	Args:  cobra.NoArgs,
	RunE:  runRemoveNode,
}

func init() {
	rootCmd.AddCommand(removeNodeCmd)
	removeNodeDev.register(removeNodeCmd, "")
}

func runRemoveNode(cmd *cobra.Command, args []string) error {
	dev := removeNodeDev.record()

	if DryRun() {
		fmt.Printf("would retract %d stable link(s) for %s\n", len(dev.Devlinks()), dev.DevName())
		return nil
	}

	db := make(device.MapDatabase)
	rootDir := GetRootDir()
	linker := devlink.NewLinker(GetRunRoot(), devlink.EffectiveDevRoot(rootDir), db)
	linker.RootDir = rootDir

	return linker.RemoveNode(GetContext(), dev)
}
