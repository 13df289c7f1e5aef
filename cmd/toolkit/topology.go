package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esdx-scion/esdx/pkg/store"
	"github.com/esdx-scion/esdx/pkg/topology"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Splices contracts in and out of a SCION topology file",
	Long:  `Splices contracts in and out of a SCION topology file`,
	Args:  cobra.ExactArgs(1),
}

var topologyActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Adds the interface of a contract to the topology",
	Long:  `Adds the interface of a contract to the topology`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyContract(cmd, func(t *topology.Topology, c *topology.Contract) error {
			return t.Activate(c)
		})
	},
}

var topologyDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Removes the interface of a contract from the topology",
	Long:  `Removes the interface of a contract from the topology`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyContract(cmd, func(t *topology.Topology, c *topology.Contract) error {
			return t.Deactivate(c)
		})
	},
}

func applyContract(cmd *cobra.Command, f func(*topology.Topology, *topology.Contract) error) error {
	topofile, err := cmd.Flags().GetString("topo")
	if err != nil || topofile == "" {
		return errors.New("a --topo value is required")
	}
	internalAddr, err := cmd.Flags().GetString("internal-addr")
	if err != nil || internalAddr == "" {
		return errors.New("an --internal-addr value is required")
	}
	contractID, err := cmd.Flags().GetInt64("contract-id")
	if err != nil || contractID == 0 {
		return errors.New("a --contract-id value is required")
	}

	s, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer() //nolint
	c, err := loadContract(cmd, s, contractID)
	if err != nil {
		return err
	}

	t, err := topology.New(topofile, internalAddr)
	if err != nil {
		return fmt.Errorf("opening topology: %s", err)
	}
	if err := f(t, c); err != nil {
		return fmt.Errorf("mutating topology: %s", err)
	}

	fmt.Printf("Topology %s updated with contract %d\n", topofile, contractID)
	return nil
}

// loadContract projects a stored contract onto the fields the topology needs.
func loadContract(cmd *cobra.Command, s store.Store, id int64) (*topology.Contract, error) {
	contract, err := s.GetContract(cmd.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("getting contract %d: %s", id, err)
	}
	po, err := s.GetPurchaseOrder(cmd.Context(), contract.PurchaseOrderID)
	if err != nil {
		return nil, fmt.Errorf("getting purchase order: %s", err)
	}
	offer, err := s.GetOffer(cmd.Context(), po.OfferID)
	if err != nil {
		return nil, fmt.Errorf("getting offer: %s", err)
	}
	return &topology.Contract{
		SellerIAID: offer.IAID,
		BuyerIAID:  po.BuyerIAID,
		BrAddress:  contract.BrAddress,
		MTU:        offer.BrMTU,
		LinkTo:     offer.BrLinkTo,
	}, nil
}
