package main

import (
	"github.com/spf13/cobra"

	"github.com/esdx-scion/esdx/buildinfo"
	"github.com/esdx-scion/esdx/pkg/logging"
)

var cliName = "toolkit"

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "toolkit is a CLI for ESDX broker operators",
	Long:  `toolkit is a CLI for ESDX broker operators executing mundane tasks`,
	Args:  cobra.ExactArgs(0),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetupLogger(buildinfo.GitCommit, false, true)
	},
}

func main() {
	rootCmd.Execute() //nolint
}

func init() {
	rootCmd.PersistentFlags().String("db", "esdx.db", "path to the broker database")

	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(topologyCmd)

	clientCreateCmd.Flags().String("ia", "", "ISD-AS identifier of the client (e.g. 1-ff00:0:110)")
	clientCreateCmd.Flags().String("cert", "", "path to the client PEM certificate")
	clientCreateCmd.Flags().String("name", "", "display name of the client (defaults to the IA)")
	clientCreateCmd.Flags().Bool("force", false, "replace the certificate if the client already exists")
	clientCmd.AddCommand(clientCreateCmd)

	brokerCreateCmd.Flags().String("cert", "", "path to the broker PEM certificate")
	brokerCreateCmd.Flags().String("key", "", "path to the broker PEM private key")
	brokerCmd.AddCommand(brokerCreateCmd)
	brokerCmd.AddCommand(brokerRemoveCmd)
	brokerCmd.AddCommand(brokerExportCmd)

	topologyCmd.PersistentFlags().String("topo", "topology.json", "path to the SCION topology file")
	topologyCmd.PersistentFlags().String("internal-addr", "127.0.0.1:31050", "internal address for the ESDX border router")
	topologyCmd.PersistentFlags().Int64("contract-id", 0, "id of the contract to apply")
	topologyCmd.AddCommand(topologyActivateCmd)
	topologyCmd.AddCommand(topologyDeactivateCmd)
}
