package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"github.com/ursa-labs/ufdp/frame"
	"github.com/ursa-labs/ufdp/podcrypto"
	"github.com/ursa-labs/ufdp/session"
	"github.com/zeebo/blake3"
)

// Serve accepts connections on ln until ctx is canceled, handling each on
// its own goroutine, then waits for every in-flight connection to finish
// before returning — the same accept-loop-plus-WaitGroup shape as the
// teacher's obfs4-server acceptLoop/handler pair, adapted to stop on
// context cancellation instead of a SIGINT/SIGTERM channel.
func Serve(ctx context.Context, ln net.Listener, identity Identity, cfg Config) error {
	cfg = cfg.withDefaults()

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(conn, identity, cfg)
		}()
	}
}

func handleConn(raw net.Conn, identity Identity, cfg Config) {
	defer raw.Close()

	sessionID := shortuuid.New()
	log := cfg.Logger.With().Str("session", sessionID).Str("remote_addr", raw.RemoteAddr().String()).Logger()

	conn := session.New(raw)

	f, err := conn.ReadFrame()
	if err != nil {
		log.Warn().Err(err).Msg("reading handshake request")
		return
	}
	if f == nil {
		return
	}
	req, ok := f.(frame.HandshakeRequest)
	if !ok {
		log.Warn().Stringer("got", tagOf(f)).Msg("expected handshake request")
		sendTermination(conn, frame.ReasonUnexpectedFrame)
		return
	}

	laneID := selectLane(req)
	logCtx := log.With().Uint8("lane", laneID)
	log = logCtx.Logger()

	entry, found, err := cfg.Ledger.Lookup(req.Pubkey, laneID)
	if err != nil {
		log.Warn().Err(err).Msg("lane lookup")
		sendTermination(conn, frame.ReasonUnknown)
		return
	}

	epoch := cfg.Epoch.Current()
	resp := frame.HandshakeResponse{
		Pubkey:     identity.PublicKey(),
		EpochNonce: epoch,
		Lane:       laneID,
	}
	if found {
		resp.Last = &frame.LastLaneData{
			BytesDelivered:     entry.BytesDelivered,
			Epoch:              entry.Epoch,
			Commitment:         entry.Commitment,
			AggregateSignature: entry.AggregateSignature,
		}
	}
	if err := conn.WriteFrame(resp); err != nil {
		log.Warn().Err(err).Msg("writing handshake response")
		return
	}

	clientID := blake3.Sum256(req.Pubkey[:])
	s := &connSession{
		conn:      conn,
		cfg:       cfg,
		identity:  identity,
		client:    req.Pubkey,
		clientID:  clientID,
		lane:      laneID,
		delivered: entry.BytesDelivered,
		epoch:     epoch,
		log:       log,
	}

	if err := s.run(); err != nil {
		log.Warn().Err(err).Msg("session ended")
	}
}

func tagOf(f frame.Frame) frame.Tag {
	t, _ := f.Tag()
	return t
}

// selectLane honors an explicit lane request (reduced modulo MaxLanes, so an
// out-of-range lane id maps onto a valid one) and otherwise derives a
// stable lane from the client's public key, so the same client
// reconnecting without specifying a lane lands back on the one it was
// using (lane assignment policy proper — load balancing across lanes,
// eviction, and so on — is left to a future node config hook).
func selectLane(req frame.HandshakeRequest) uint8 {
	if req.Lane != nil {
		return *req.Lane % frame.MaxLanes
	}
	return req.Pubkey[0] % frame.MaxLanes
}

func sendTermination(conn *session.Conn, reason frame.Reason) {
	_ = conn.WriteFrame(frame.TerminationSignal{Reason: reason})
}

// connSession drives one handshaken connection's request/response loop.
type connSession struct {
	conn      *session.Conn
	cfg       Config
	identity  Identity
	client    frame.BlsPublicKey
	clientID  [32]byte
	lane      uint8
	delivered uint64
	// epoch is the epoch nonce this session most recently advertised to the
	// client, either at handshake or via a later UpdateEpochSignal. Every
	// delivery acknowledgment verified against this session must be signed
	// under this value.
	epoch frame.EpochNonce
	log   zerolog.Logger
}

func (s *connSession) run() error {
	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			return err
		}
		if f == nil {
			return nil
		}

		switch req := f.(type) {
		case frame.ContentRequest:
			if err := s.serveRange(req.Hash, 0, 0, true); err != nil {
				return err
			}
		case frame.ContentRangeRequest:
			if err := s.serveRange(req.Hash, req.ChunkStart, uint64(req.Chunks), false); err != nil {
				return err
			}
		default:
			sendTermination(s.conn, frame.ReasonUnexpectedFrame)
			return fmt.Errorf("node: unexpected frame %s", tagOf(f))
		}
	}
}

// serveRange streams chunks [start, start+count) of hash, or every chunk
// the node has if whole is true. Each chunk is settled in full (header,
// raw bytes, decryption-key request, ledger advance, decryption-key
// response) before the next chunk's header is ever written, which is what
// makes the per-block pay-per-key backpressure hold.
func (s *connSession) serveRange(hash frame.ContentID, start, count uint64, whole bool) error {
	total, found, err := s.cfg.Content.TotalChunks(hash)
	if err != nil {
		return err
	}
	if !found {
		sendTermination(s.conn, frame.ReasonUnknown)
		return fmt.Errorf("node: content %x not found", hash)
	}

	end := start + count
	if whole {
		start, end = 0, total
	}
	if end > total {
		end = total
	}

	for i := start; i < end; i++ {
		if err := s.syncEpoch(); err != nil {
			return err
		}
		if err := s.serveOneChunk(hash, i); err != nil {
			return err
		}
	}
	return s.conn.WriteFrame(frame.EndOfRequestSignal{})
}

// syncEpoch tells the client about an epoch rotation before the next
// block is served, so every delivery acknowledgment it signs from here on
// uses the nonce this session will actually verify against.
func (s *connSession) syncEpoch() error {
	current := s.cfg.Epoch.Current()
	if current == s.epoch {
		return nil
	}
	if err := s.conn.WriteFrame(frame.UpdateEpochSignal{EpochNonce: current}); err != nil {
		return err
	}
	s.epoch = current
	return nil
}

func (s *connSession) serveOneChunk(hash frame.ContentID, index uint64) error {
	plaintext, proof, err := s.cfg.Content.Chunk(hash, index)
	if err != nil {
		return err
	}
	if len(plaintext) > s.cfg.MaxBlockSize {
		sendTermination(s.conn, frame.ReasonUnknown)
		return fmt.Errorf("node: chunk %d of content exceeds MaxBlockSize", index)
	}

	reqInfo := podcrypto.RequestInfo{
		ContentID: hash,
		Client:    s.clientID,
		Time:      uint64(index),
		FromBytes: index * uint64(s.cfg.MaxBlockSize),
		ToBytes:   index*uint64(s.cfg.MaxBlockSize) + uint64(len(plaintext)),
	}

	ciphertext, tag, key, err := podcrypto.EncryptBlock(s.identity.Secret, reqInfo, plaintext)
	if err != nil {
		return err
	}

	header := frame.ContentResponse{
		ProofLen:  uint64(len(proof)),
		BlockLen:  uint64(len(ciphertext)),
		Signature: tag,
	}
	if err := s.conn.WriteFrame(header); err != nil {
		return err
	}
	payload := make([]byte, 0, len(proof)+len(ciphertext))
	payload = append(append(payload, proof...), ciphertext...)
	for len(payload) > 0 {
		n := s.cfg.BufferChunkSize
		if n <= 0 || n > len(payload) {
			n = len(payload)
		}
		if err := s.conn.WriteFrame(frame.Buffer{Data: payload[:n]}); err != nil {
			return err
		}
		payload = payload[n:]
	}

	f, err := s.conn.ReadFrame()
	if err != nil {
		return err
	}
	dkr, ok := f.(frame.DecryptionKeyRequest)
	if !ok {
		sendTermination(s.conn, frame.ReasonUnexpectedFrame)
		return fmt.Errorf("node: expected decryption key request, got %s", tagOf(f))
	}

	newTotal := s.delivered + uint64(len(ciphertext))
	if err := s.cfg.Ledger.Advance(s.client, s.lane, newTotal, s.epoch, tag, dkr.DeliveryAcknowledgment); err != nil {
		sendTermination(s.conn, frame.ReasonUnknown)
		return err
	}
	s.delivered = newTotal

	return s.conn.WriteFrame(frame.DecryptionKeyResponse{DecryptionKey: key})
}
