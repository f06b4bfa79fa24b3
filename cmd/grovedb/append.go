package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/grovedb-sub006/storage"
)

func appendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append PATH VALUE...",
		Short: "Append one or more values to the non-Merk tree at PATH",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			path := splitPath(args[0])
			b := newBatch(db)
			for _, v := range args[1:] {
				b.Append(path, []byte(v))
			}

			err = db.Update(func(tx storage.Tx) error {
				return b.Apply(context.Background(), tx, nil)
			})
			if err != nil {
				return fmt.Errorf("append: %w", err)
			}
			fmt.Printf("appended %d value(s) to %s\n", len(args[1:]), args[0])
			return nil
		},
	}
	return cmd
}
