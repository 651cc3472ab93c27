package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s version %s\n", common.AppName, common.GetFullVersion())
	},
}
