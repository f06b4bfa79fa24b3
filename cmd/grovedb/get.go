package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
)

func getCmd() *cobra.Command {
	var resolve bool

	cmd := &cobra.Command{
		Use:   "get PATH KEY",
		Short: "Fetch the element at PATH/KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			path, key := splitPath(args[0]), []byte(args[1])

			var el element.Element
			err = db.View(func(tx storage.Tx) error {
				var getErr error
				if resolve {
					_, _, el, getErr = db.GetResolved(context.Background(), tx, path, key, nil)
				} else {
					el, getErr = db.Get(context.Background(), tx, path, key, nil)
				}
				return getErr
			})
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}

			printElement(el)
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolve, "resolve", false, "follow a Reference chain to its terminal element")
	return cmd
}

func printElement(el element.Element) {
	fmt.Printf("tag: %s\n", el.Tag)
	switch {
	case el.Tag == element.TagItem || el.Tag == element.TagItemWithSumItem:
		fmt.Printf("value: %q\n", el.Bytes)
	case el.Tag == element.TagSumItem:
		fmt.Printf("sum_value: %d\n", el.SumItemValue)
	case el.Tag == element.TagReference:
		fmt.Printf("max_hop: %d\n", el.MaxHop)
	case el.Tag.IsTree():
		fmt.Printf("has_child: %v\n", el.HasChild())
	}
}
