// ufdp-client fetches content from a node over the Ursa Fair Delivery
// Protocol, paying for and verifying each chunk as it arrives, and writes
// the decrypted plaintext to stdout or a file.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ursa-labs/ufdp/client"
	"github.com/ursa-labs/ufdp/frame"
)

func main() {
	cmd := &cli.Command{
		Name:   "ufdp-client",
		Usage:  "fetch content over the Ursa Fair Delivery Protocol",
		Flags:  flags(),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "node-addr",
			Usage:    "TCP address of the node to connect to",
			Required: true,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_CLIENT_NODE_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:     "content-id",
			Usage:    "hex-encoded 32-byte content id to fetch",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "identity-file",
			Usage: "path to the client's BLS identity key (generated on first run)",
			Value: "ufdp-client.key",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_CLIENT_IDENTITY_FILE"),
			),
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "output file; defaults to stdout",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "must match the node's configured chunk size",
			Value: 256 * 1024,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_CLIENT_CHUNK_SIZE"),
			),
		},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	hashBytes, err := hex.DecodeString(cmd.String("content-id"))
	if err != nil || len(hashBytes) != 32 {
		return fmt.Errorf("content-id must be 64 hex characters (32 bytes)")
	}
	var hash frame.ContentID
	copy(hash[:], hashBytes)

	key, err := loadOrCreateIdentity(cmd.String("identity-file"))
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	identity := client.Identity{
		PublicKey: key.PublicKey(),
		Signer:    key,
	}
	cfg := client.Config{ChunkSize: cmd.Int("chunk-size")}

	sess, err := client.Dial(ctx, "tcp", cmd.String("node-addr"), identity, cfg)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cmd.String("node-addr"), err)
	}
	defer sess.Close()

	out := os.Stdout
	if path := cmd.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	return writeContent(out, sess, hash)
}

func writeContent(out io.Writer, sess *client.Session, hash frame.ContentID) error {
	blocks, errc := sess.FetchContent(hash)
	for block := range blocks {
		if _, err := out.Write(block.Plaintext); err != nil {
			return err
		}
	}
	return <-errc
}
