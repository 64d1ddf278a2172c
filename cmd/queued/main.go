// Command queued runs the message-queue broker server. Flags are wired
// through spf13/cobra and spf13/viper: the serve command binds its flags
// into a viper.Viper and its run function reads them back out by key rather
// than closing over *pflag.Flag values directly. Environment variables are
// not consulted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var root = &cobra.Command{
		Use:   "queued",
		Short: "In-memory, network-accessible message-queue broker",
	}
	root.AddCommand(newServeCommand())
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
		panic(err) // programmer error: flag name typo
	}
}
