package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// MessageSigner produces personal_sign signatures.
type MessageSigner interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Account is the authenticated account as the backend reports it.
type Account struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// GetAuthMessage fetches the challenge to sign. The backend may omit it, in which case
// a timestamped default is used.
func (c *Client) GetAuthMessage(ctx context.Context) (string, error) {
	var data struct {
		Message string `json:"message"`
	}

	err := c.get(ctx, "auth-message", "/auth/message", false, &data)
	if err != nil {
		return "", fmt.Errorf("get auth message: %w", err)
	}

	if data.Message == "" {
		return fmt.Sprintf("Sign in to Predict.fun\nTimestamp: %d", time.Now().UnixMilli()), nil
	}
	return data.Message, nil
}

// Authenticate exchanges a signed challenge for a bearer token and stores it.
func (c *Client) Authenticate(ctx context.Context, signer common.Address, signature []byte, message string) (string, error) {
	body := map[string]string{
		"signer":    signer.Hex(),
		"signature": hexutil.Encode(signature),
		"message":   message,
	}

	var data struct {
		Token string `json:"token"`
	}

	err := c.do(ctx, "auth", http.MethodPost, "/auth", false, body, &data)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	if data.Token == "" {
		return "", errors.New("authenticate: response carried no token")
	}

	c.SetToken(data.Token)
	c.logger.Info("authenticated", zap.String("signer", signer.Hex()))

	return data.Token, nil
}

// Login runs the full challenge flow with signer.
func (c *Client) Login(ctx context.Context, signer MessageSigner) (string, error) {
	message, err := c.GetAuthMessage(ctx)
	if err != nil {
		return "", err
	}

	signature, err := signer.SignMessage(ctx, []byte(message))
	if err != nil {
		return "", fmt.Errorf("sign auth message: %w", err)
	}

	return c.Authenticate(ctx, signer.Address(), signature, message)
}

// GetAccount returns the authenticated account.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	err := c.get(ctx, "account", "/account", true, &account)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}
