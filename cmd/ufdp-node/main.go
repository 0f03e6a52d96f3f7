// ufdp-node runs the server side of the Ursa Fair Delivery Protocol: it
// listens for client connections, serves requested content chunk by chunk,
// and only ever releases a chunk's decryption key once the lane ledger has
// recorded a verified payment for it.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/ursa-labs/ufdp/lane"
	"github.com/ursa-labs/ufdp/node"
)

func main() {
	cmd := &cli.Command{
		Name:   "ufdp-node",
		Usage:  "serve content over the Ursa Fair Delivery Protocol",
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
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "human-readable console logging, instead of JSON",
		},
		&cli.StringFlag{
			Name:  "listen-addr",
			Usage: "TCP address to accept client connections on",
			Value: "0.0.0.0:7654",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_NODE_LISTEN_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "identity-file",
			Usage: "path to the node's secp256k1 identity key (generated on first run)",
			Value: "ufdp-node.key",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_NODE_IDENTITY_FILE"),
			),
		},
		&cli.StringFlag{
			Name:  "ledger-file",
			Usage: "path to the lane ledger's JSON state file",
			Value: "ufdp-ledger.json",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_NODE_LEDGER_FILE"),
			),
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "maximum plaintext size, in bytes, of one content chunk",
			Value: 256 * 1024,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_NODE_CHUNK_SIZE"),
			),
		},
		&cli.StringFlag{
			Name:  "content-dir",
			Usage: "directory of content files, named by hex content id, served whole in fixed-size chunks",
			Value: "content",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("UFDP_NODE_CONTENT_DIR"),
			),
		},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(cmd.Bool("dev"))

	secret, err := loadOrCreateIdentity(cmd.String("identity-file"))
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	pub := secret.PublicKey()
	log.Info().Str("pubkey", hex.EncodeToString(pub[:])).Msg("node identity ready")

	store, err := lane.OpenFileStore(cmd.String("ledger-file"))
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}

	cfg := node.Config{
		MaxBlockSize: cmd.Int("chunk-size"),
		Content:      newDirContentSource(cmd.String("content-dir"), cmd.Int("chunk-size")),
		Ledger:       lane.New(store),
		Epoch:        newFixedEpoch(),
		Logger:       log,
	}

	ln, err := net.Listen("tcp", cmd.String("listen-addr"))
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cmd.String("listen-addr"), err)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("accepting connections")

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = node.Serve(sigCtx, ln, node.Identity{Secret: secret}, cfg)
	log.Info().Msg("shut down")
	return err
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
