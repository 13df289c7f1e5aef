package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esdx-scion/esdx/pkg/database"
	"github.com/esdx-scion/esdx/pkg/store"
	storeimpl "github.com/esdx-scion/esdx/pkg/store/impl"
)

// openStore opens the broker database named by the --db flag.
func openStore(cmd *cobra.Command) (store.Store, func() error, error) {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse db path")
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database %s: %s", path, err)
	}
	return storeimpl.New(db), db.Close, nil
}
