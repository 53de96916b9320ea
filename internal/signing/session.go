package signing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mselser95/predict-trader/internal/order"
	"github.com/mselser95/predict-trader/pkg/types"
	"go.uber.org/zap"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateAwaitingSignature
	StateSigned
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingSignature:
		return "AWAITING_SIGNATURE"
	case StateSigned:
		return "SIGNED"
	case StateRejected:
		return "REJECTED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrSessionUsed is returned when Sign is called on a session that is not idle.
	ErrSessionUsed = errors.New("signing session already used")
	// ErrSignatureMismatch is returned when the signature does not recover to the order signer.
	ErrSignatureMismatch = errors.New("signature does not recover to order signer")
)

// Gate decides whether a flow may be signed.
type Gate interface {
	Permit(ctx context.Context, flow types.Flow) error
}

// Signer produces EIP-712 signatures.
type Signer interface {
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

// Request is the order to sign and the flow it belongs to.
type Request struct {
	Order   *types.UnsignedOrder
	NegRisk bool
	Flow    types.Flow
}

// Session acquires exactly one signature. Create a new session per attempt.
type Session struct {
	encoder *order.Encoder
	signer  Signer
	gate    Gate
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	started bool
}

// Config holds session configuration.
type Config struct {
	Encoder *order.Encoder
	Signer  Signer
	Gate    Gate
	Logger  *zap.Logger
}

// NewSession creates an idle session.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Encoder == nil {
		return nil, errors.New("encoder cannot be nil")
	}

	if cfg.Signer == nil {
		return nil, errors.New("signer cannot be nil")
	}

	if cfg.Gate == nil {
		return nil, errors.New("gate cannot be nil")
	}

	return &Session{
		encoder: cfg.Encoder,
		signer:  cfg.Signer,
		gate:    cfg.Gate,
		logger:  cfg.Logger,
	}, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()

	SessionsTotal.WithLabelValues(to.String()).Inc()
}

// Sign runs the session once. If the gate refuses, the session stays IDLE and may be
// retried once approvals are in place; every other outcome is terminal.
func (s *Session) Sign(ctx context.Context, req Request) (*types.SignedOrder, error) {
	if req.Order == nil {
		return nil, errors.New("order cannot be nil")
	}

	s.mu.Lock()
	if s.state != StateIdle || s.started {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	s.started = true
	s.mu.Unlock()

	err := s.gate.Permit(ctx, req.Flow)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return nil, fmt.Errorf("permit %s: %w", req.Flow.Action, err)
	}

	frozen := req.Order.Clone()

	hash, err := s.encoder.Hash(&frozen, req.NegRisk)
	if err != nil {
		s.transition(StateFailed)
		return nil, fmt.Errorf("hash order: %w", err)
	}

	s.transition(StateAwaitingSignature)
	s.logger.Info("awaiting-signature",
		zap.String("order-hash", hash.Hex()),
		zap.Bool("neg-risk", req.NegRisk))

	signature, err := s.signer.SignTypedData(ctx, s.encoder.TypedData(&frozen, req.NegRisk))
	if err != nil {
		if types.IsUserRejection(err) {
			s.transition(StateRejected)
			s.logger.Info("signature-rejected", zap.String("order-hash", hash.Hex()))
			if errors.Is(err, types.ErrSigningRejected) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", types.ErrSigningRejected, err)
		}

		s.transition(StateFailed)
		s.logger.Error("signature-failed", zap.String("order-hash", hash.Hex()), zap.Error(err))
		return nil, fmt.Errorf("sign order: %w", err)
	}

	signature = normalizeV(signature)

	recovered, err := order.RecoverSigner(hash, signature)
	if err != nil {
		s.transition(StateFailed)
		return nil, fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	if recovered != frozen.Signer {
		s.transition(StateFailed)
		s.logger.Error("signature-mismatch",
			zap.String("order-hash", hash.Hex()),
			zap.String("recovered", recovered.Hex()),
			zap.String("signer", frozen.Signer.Hex()))
		return nil, ErrSignatureMismatch
	}

	verify, err := s.encoder.Hash(&frozen, req.NegRisk)
	if err != nil || verify != hash {
		s.transition(StateFailed)
		return nil, errors.New("order changed while signing")
	}

	s.transition(StateSigned)
	s.logger.Info("order-signed",
		zap.String("order-hash", hash.Hex()),
		zap.String("signer", recovered.Hex()))

	return &types.SignedOrder{
		Order:     frozen,
		Hash:      hash,
		Signature: signature,
	}, nil
}

func normalizeV(signature []byte) []byte {
	out := make([]byte, len(signature))
	copy(out, signature)
	if len(out) == 65 && out[64] < 27 {
		out[64] += 27
	}
	return out
}
