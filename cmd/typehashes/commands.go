package main

import (
	"encoding/json"
	"fmt"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/GoPolymarket/bulkgate/internal/model"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
)

func tableCmd(c *cli.Context) error {
	max := c.Int("max")
	hashes, err := bulkorder.BulkOrderTypeHashes(max)
	if err != nil {
		return err
	}
	out := c.App.Writer

	if c.Bool("json") {
		resp := model.TypeHashesResponse{Hashes: make([]model.TypeHashEntry, len(hashes))}
		for i, h := range hashes {
			resp.Hashes[i] = model.TypeHashEntry{Height: i + 1, TypeHash: h.Hex()}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	for i, h := range hashes {
		fmt.Fprintf(out, "%2d  %s\n", i+1, h.Hex())
	}
	return nil
}

func directoryCmd(c *cli.Context) error {
	hashes, err := bulkorder.BulkOrderTypeHashes(c.Int("max"))
	if err != nil {
		return err
	}
	code := bulkorder.DirectoryCode(hashes)
	fmt.Fprintf(c.App.Writer, "code:     %s\n", hexutil.Encode(code))
	fmt.Fprintf(c.App.Writer, "codehash: %s\n", crypto.Keccak256Hash(code).Hex())
	return nil
}

func typeStringCmd(c *cli.Context) error {
	s, err := bulkorder.TypeStringForHeight(bulkorder.Registry, bulkorder.OrderComponentsType, bulkorder.BulkOrderType, c.Int("height"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, s)
	return nil
}
