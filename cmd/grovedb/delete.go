package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/grovedb-sub006/storage"
)

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete PATH KEY",
		Short: "Delete the element at PATH/KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			path, key := splitPath(args[0]), []byte(args[1])
			err = db.Update(func(tx storage.Tx) error {
				return db.Delete(context.Background(), tx, path, key, nil)
			})
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			fmt.Printf("deleted %s/%s\n", args[0], args[1])
			return nil
		},
	}
	return cmd
}
