package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/grovedb-sub006/grove/proof"
	"github.com/dashpay/grovedb-sub006/grove/query"
	"github.com/dashpay/grovedb-sub006/storage"
)

func proveCmd() *cobra.Command {
	var mmrLeaf uint64

	cmd := &cobra.Command{
		Use:   "prove PATH KEY",
		Short: "Build and self-verify an authenticated proof for PATH/KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			path, key := splitPath(args[0]), []byte(args[1])
			pq := query.PathQuery{Path: path, SizedQuery: query.SizedQuery{Query: &query.Query{
				Items: []query.Item{{Kind: query.ItemKey, Key: key}},
			}}}

			var requests map[string]proof.NonMerkRequest
			if cmd.Flags().Changed("mmr-leaf") {
				requests = map[string]proof.NonMerkRequest{
					proof.RequestKey(path, key): {Positions: []uint64{mmrLeaf}},
				}
			}

			var p *proof.Proof
			err = db.View(func(tx storage.Tx) error {
				var buildErr error
				p, buildErr = proof.Build(context.Background(), tx, pq, requests, nil)
				return buildErr
			})
			if err != nil {
				return fmt.Errorf("build proof: %w", err)
			}

			root, err := proof.Verify(p, nil)
			if err != nil {
				return fmt.Errorf("proof built but failed self-verification: %w", err)
			}

			fmt.Printf("version: %d\n", p.Version)
			fmt.Printf("root: %x\n", root)
			fmt.Printf("root layer ops: %d, children: %d\n", len(p.Root.MerkOps), len(p.Root.Children))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&mmrLeaf, "mmr-leaf", 0, "also disclose this MMR leaf position at PATH/KEY, if it names an MmrTree")
	return cmd
}
