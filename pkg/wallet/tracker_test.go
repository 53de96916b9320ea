package wallet

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type fakeReader struct {
	native    *big.Int
	balance   *big.Int
	allowance *big.Int
	err       error
}

func (f *fakeReader) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.native, nil
}

func (f *fakeReader) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}

	switch {
	case bytes.HasPrefix(msg.Data, ERC20ABI.Methods["balanceOf"].ID):
		return ERC20ABI.Methods["balanceOf"].Outputs.Pack(f.balance)
	case bytes.HasPrefix(msg.Data, ERC20ABI.Methods["allowance"].ID):
		return ERC20ABI.Methods["allowance"].Outputs.Pack(f.allowance)
	}
	return nil, errors.New("unexpected call")
}

func TestNew(t *testing.T) {
	logger := zap.NewNop()
	address := common.HexToAddress("0x1234567890123456789012345678901234567890")
	reader := &fakeReader{}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "valid_config",
			cfg: &Config{
				Reader:       reader,
				Address:      address,
				PollInterval: 1 * time.Minute,
				Logger:       logger,
			},
			wantErr: false,
		},
		{
			name:    "nil_config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name: "nil_logger",
			cfg: &Config{
				Reader:       reader,
				Address:      address,
				PollInterval: 1 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "nil_reader",
			cfg: &Config{
				Address:      address,
				PollInterval: 1 * time.Minute,
				Logger:       logger,
			},
			wantErr: true,
		},
		{
			name: "zero_poll_interval",
			cfg: &Config{
				Reader:  reader,
				Address: address,
				Logger:  logger,
			},
			wantErr: true,
		},
		{
			name: "negative_poll_interval",
			cfg: &Config{
				Reader:       reader,
				Address:      address,
				PollInterval: -1 * time.Second,
				Logger:       logger,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if tracker.address != tt.cfg.Address {
					t.Errorf("New() address = %v, want %v", tracker.address, tt.cfg.Address)
				}
				if tracker.pollInterval != tt.cfg.PollInterval {
					t.Errorf("New() pollInterval = %v, want %v", tracker.pollInterval, tt.cfg.PollInterval)
				}
			}
		})
	}
}

func TestTracker_Run_ContextCancellation(t *testing.T) {
	tracker, err := New(&Config{
		Reader:       &fakeReader{err: errors.New("rpc down")},
		PollInterval: 100 * time.Millisecond,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err = tracker.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if tracker.Latest() != nil {
		t.Error("Latest() should stay nil when every poll fails")
	}
}

func TestTracker_poll(t *testing.T) {
	reader := &fakeReader{
		native:    new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)),
		balance:   new(big.Int).Mul(big.NewInt(150), big.NewInt(1e18)),
		allowance: new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
	}

	tracker, err := New(&Config{
		Reader:       reader,
		PollInterval: time.Minute,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	err = tracker.poll(context.Background())
	if err != nil {
		t.Fatalf("poll() error = %v", err)
	}

	latest := tracker.Latest()
	if latest == nil {
		t.Fatal("Latest() = nil after successful poll")
	}
	if latest.Collateral.Cmp(reader.balance) != 0 {
		t.Errorf("Collateral = %s, want %s", latest.Collateral, reader.balance)
	}

	if got := testutil.ToFloat64(CollateralBalance); got != 150 {
		t.Errorf("CollateralBalance = %v, want 150", got)
	}
	if got := testutil.ToFloat64(NativeBalance); got != 2 {
		t.Errorf("NativeBalance = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CollateralAllowance); got != 1000 {
		t.Errorf("CollateralAllowance = %v, want 1000", got)
	}
}

func TestToUnits(t *testing.T) {
	if !ToUnits(nil).IsZero() {
		t.Error("ToUnits(nil) should be zero")
	}

	half := new(big.Int).Div(big.NewInt(1e18), big.NewInt(2))
	if got := ToUnits(half).String(); got != "0.5" {
		t.Errorf("ToUnits(0.5e18) = %s, want 0.5", got)
	}
}
