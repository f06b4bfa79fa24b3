package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/grovedb-sub006/element"
	"github.com/dashpay/grovedb-sub006/storage"
)

func mktreeCmd() *cobra.Command {
	var tagName string
	var chunkPower uint8
	var denseHeight uint8

	cmd := &cobra.Command{
		Use:   "mktree PATH KEY",
		Short: "Create a subtree (Merk-owning or non-Merk) at PATH/KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := parseTag(tagName)
			if err != nil {
				return err
			}

			el := element.Element{Tag: tag}
			switch tag {
			case element.TagCommitmentTree:
				el.ChunkPower = chunkPower
			case element.TagBulkAppendTree:
				el.BulkChunkPower = chunkPower
			case element.TagDenseFixedSizeTree:
				el.DenseHeight = denseHeight
			}

			db, store, err := openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			path, key := splitPath(args[0]), []byte(args[1])
			err = db.Update(func(tx storage.Tx) error {
				return db.CreateSubtree(context.Background(), tx, path, key, el, nil)
			})
			if err != nil {
				return fmt.Errorf("creating subtree: %w", err)
			}
			fmt.Printf("created %s subtree at %s/%s\n", tag, args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&tagName, "tag", "tree", "tree kind: tree, sumtree, bigsumtree, counttree, countsumtree, mmrtree, bulkappendtree, densetree, commitmenttree")
	cmd.Flags().Uint8Var(&chunkPower, "chunk-power", 10, "log2 chunk size, for bulkappendtree/commitmenttree")
	cmd.Flags().Uint8Var(&denseHeight, "dense-height", 10, "fixed capacity height, for densetree")
	return cmd
}
