package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
)

func putCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put PATH KEY VALUE",
		Short: "Insert or overwrite an Item element at PATH/KEY",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			path, key, value := splitPath(args[0]), []byte(args[1]), []byte(args[2])
			err = db.Update(func(tx storage.Tx) error {
				return db.Insert(context.Background(), tx, path, key, element.NewItem(value), nil)
			})
			if err != nil {
				return fmt.Errorf("put: %w", err)
			}
			fmt.Printf("put %s/%s\n", args[0], args[1])
			return nil
		},
	}
	return cmd
}
