package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	idx2 "github.com/hoang-dt/idx2"
	"github.com/hoang-dt/idx2/internal/metadata"
)

var (
	decodeRoot   string
	decodeField  string
	decodeOutput string
)

func init() {
	f := decodeCmd.Flags()
	f.StringVar(&decodeRoot, "root", "", "store tree root directory")
	f.StringVar(&decodeField, "field", "", "field name")
	f.StringVar(&decodeOutput, "output", "", "raw binary file to write the decoded volume to")
	rootCmd.AddCommand(decodeCmd)
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "decode a field from an IDX2 store tree into a raw binary volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		metaPath := filepath.Join(decodeRoot, decodeField, "metadata.txt")
		mf, err := os.Open(metaPath)
		if err != nil {
			return err
		}
		desc, err := metadata.Read(mf)
		mf.Close()
		if err != nil {
			return err
		}

		var f idx2.File
		p := idx2.Params{
			Root:       decodeRoot,
			Field:      decodeField,
			Dims3:      desc.Dims3,
			DataType:   desc.DataType,
			BrickDims3: desc.BrickDims3,
			Template:   desc.Template,
		}
		if err := idx2.Init(&f, p); err != nil {
			return err
		}
		defer f.Destroy()

		size := desc.Dims3.Prod()
		if desc.DataType == metadata.Float32 {
			size *= 4
		} else {
			size *= 8
		}
		out := make([]byte, size)
		if err := idx2.Decode(&f, p, out); err != nil {
			return err
		}
		if err := os.WriteFile(decodeOutput, out, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "decoded %s/%s -> %s (%d bytes)\n", decodeRoot, decodeField, decodeOutput, len(out))
		return nil
	},
}
