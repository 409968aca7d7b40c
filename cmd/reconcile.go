package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"devlinkd/device"
	"devlinkd/devlink"
)

var reconcileNew deviceFlags
var reconcileOld deviceFlags

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retract stable links a device's previous revision held but its current one does not",
	Long: `reconcile compares a device's new and old declared stable links and
retracts (via remove-mode Update) every old link not present in the new set,
leaving links common to both untouched.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileNew.register(reconcileCmd, "new-")
	reconcileOld.register(reconcileCmd, "old-")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	devNew := reconcileNew.record()
	devOld := reconcileOld.record()

	if DryRun() {
		current := make(map[string]bool, len(devNew.Devlinks()))
		for _, l := range devNew.Devlinks() {
			current[l] = true
		}
		for _, l := range devOld.Devlinks() {
			if !current[l] {
				fmt.Printf("would retract %s\n", l)
			}
		}
		return nil
	}

	db := make(device.MapDatabase)
	rootDir := GetRootDir()
	linker := devlink.NewLinker(GetRunRoot(), devlink.EffectiveDevRoot(rootDir), db)
	linker.RootDir = rootDir

	return linker.ReconcileOldLinks(GetContext(), devNew, devOld)
}
