package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esdx-scion/esdx/pkg/crypto"
	"github.com/esdx-scion/esdx/pkg/store"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manages marketplace clients",
	Long:  `Manages the autonomous systems registered as marketplace clients`,
	Args:  cobra.ExactArgs(1),
}

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Registers a client AS with its certificate",
	Long:  `Registers a client AS with its certificate`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ia, err := cmd.Flags().GetString("ia")
		if err != nil || ia == "" {
			return errors.New("an --ia value is required")
		}
		certFile, err := cmd.Flags().GetString("cert")
		if err != nil || certFile == "" {
			return errors.New("a --cert value is required")
		}
		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return errors.New("failed to parse name")
		}
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return errors.New("failed to parse force")
		}

		cert, err := crypto.LoadCert(certFile)
		if err != nil {
			return fmt.Errorf("loading certificate: %s", err)
		}
		as, err := store.NewAS(ia, cert, name)
		if err != nil {
			return fmt.Errorf("building client: %s", err)
		}

		s, closer, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closer() //nolint
		if err := s.CreateAS(cmd.Context(), as, force); err != nil {
			return fmt.Errorf("creating client: %s", err)
		}

		fmt.Printf("Client %s created\n", ia)
		return nil
	},
}
