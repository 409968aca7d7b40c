package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"devlinkd/device"
	"devlinkd/devlink"
)

var addNodeDev deviceFlags
var addNodePerm permFlags

var addNodeCmd = &cobra.Command{
	Use:   "add-node",
	Short: "Apply permissions and publish stable links for a device",
	Long: `add-node reconciles a single device's node permissions/labels and then
claims and republishes every stable link it declares, exactly as a device
manager daemon would on an "add" event for this device.`,
	Args: cobra.NoArgs,
	RunE: runAddNode,
}

func init() {
	rootCmd.AddCommand(addNodeCmd)
	addNodeDev.register(addNodeCmd, "")
	addNodePerm.register(addNodeCmd)
}

func runAddNode(cmd *cobra.Command, args []string) error {
	dev := addNodeDev.record()
	opts := addNodePerm.options()

	if DryRun() {
		fmt.Printf("would apply permissions to %s and publish %d stable link(s)\n", dev.DevName(), len(dev.Devlinks()))
		for _, l := range dev.Devlinks() {
			fmt.Printf("  %s\n", l)
		}
		return nil
	}

	db := make(device.MapDatabase)
	db.Put(dev)
	rootDir := GetRootDir()
	linker := devlink.NewLinker(GetRunRoot(), devlink.EffectiveDevRoot(rootDir), db)
	linker.RootDir = rootDir

	return linker.AddNode(GetContext(), dev, opts)
}
