package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/assetbundle/cli/output"
	"github.com/fluxbase-eu/assetbundle/internal/bundle"
)

var hashAlgorithm string

// FileHash is the cache-busting hash of one file
type FileHash struct {
	File      string `json:"file" yaml:"file"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Hash      string `json:"hash" yaml:"hash"`
}

var hashCmd = &cobra.Command{
	Use:   "hash FILE...",
	Short: "Print the cache-busting hash of files",
	Long: `Print the hash bundle URLs would carry for the given content. Use "-" to
read standard input.

Examples:
  bundlectl hash dist/site.js
  bundlectl hash --algorithm blake3 dist/*.css`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	hashCmd.Flags().StringVarP(&hashAlgorithm, "algorithm", "a", "md5", "hash algorithm: md5, sha256, blake3")
}

func runHash(cmd *cobra.Command, args []string) error {
	hasher, err := bundle.NewHasher(hashAlgorithm)
	if err != nil {
		return err
	}

	hashes := make([]FileHash, 0, len(args))
	for _, file := range args {
		var data []byte
		if file == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		hashes = append(hashes, FileHash{File: file, Algorithm: hasher.Name(), Hash: hasher.Sum(data)})
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(hashes)
	}
	data := output.TableData{Headers: []string{"FILE", "HASH"}}
	for _, h := range hashes {
		data.Rows = append(data.Rows, []string{h.File, h.Hash})
	}
	return formatter.PrintTable(data)
}
