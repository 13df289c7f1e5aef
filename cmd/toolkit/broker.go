package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esdx-scion/esdx/pkg/crypto"
	"github.com/esdx-scion/esdx/pkg/store"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Manages the broker identity",
	Long:  `Manages the certificate and key the broker signs offers and contracts with`,
	Args:  cobra.ExactArgs(1),
}

var brokerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Installs the broker certificate and key",
	Long:  `Installs the broker certificate and key`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		certFile, err := cmd.Flags().GetString("cert")
		if err != nil || certFile == "" {
			return errors.New("a --cert value is required")
		}
		keyFile, err := cmd.Flags().GetString("key")
		if err != nil || keyFile == "" {
			return errors.New("a --key value is required")
		}

		cert, err := crypto.LoadCert(certFile)
		if err != nil {
			return fmt.Errorf("loading certificate: %s", err)
		}
		key, err := crypto.LoadKey(keyFile)
		if err != nil {
			return fmt.Errorf("loading key: %s", err)
		}
		keyPEM, err := key.PEM()
		if err != nil {
			return fmt.Errorf("encoding key: %s", err)
		}

		s, closer, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closer() //nolint
		b := &store.Broker{
			CertificatePEM: cert.PEM(),
			KeyPEM:         keyPEM,
		}
		if err := s.SetBroker(cmd.Context(), b); err != nil {
			return fmt.Errorf("setting broker: %s", err)
		}

		fmt.Printf("Broker %s installed\n", cert.CommonName())
		return nil
	},
}

var brokerRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Removes the broker identity",
	Long:  `Removes the broker identity`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closer, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closer() //nolint
		if err := s.RemoveBroker(cmd.Context()); err != nil {
			return fmt.Errorf("removing broker: %s", err)
		}

		fmt.Println("Broker removed")
		return nil
	},
}

var brokerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Prints the broker certificate",
	Long:  `Prints the broker certificate so clients can verify broker signatures`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closer, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closer() //nolint
		b, err := s.GetBroker(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting broker: %s", err)
		}

		fmt.Print(string(b.CertificatePEM))
		return nil
	},
}
