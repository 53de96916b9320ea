package cmd

import (
	"errors"
	"fmt"

	"github.com/mselser95/predict-trader/internal/app"
	"github.com/mselser95/predict-trader/internal/submission"
	"github.com/mselser95/predict-trader/pkg/config"
	"github.com/mselser95/predict-trader/pkg/types"
)

// bootstrap loads configuration, builds the logger and wires the application. The
// returned cleanup flushes the logger and releases connections.
func bootstrap(opts *app.Options, needWallet bool) (*app.App, func(), error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if needWallet {
		err = cfg.RequireWallet()
		if err != nil {
			return nil, nil, err
		}
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("create app: %w", err)
	}

	cleanup := func() {
		_ = application.Shutdown()
		_ = logger.Sync()
	}

	return application, cleanup, nil
}

// describeError renders an error for the terminal. Backend rejections are shown in the
// configured locale; everything else keeps its message.
func describeError(err error, translator *submission.Translator) string {
	var rejected *types.SubmissionRejectedError
	if errors.As(err, &rejected) {
		return translator.Translate(rejected.Description)
	}

	switch {
	case errors.Is(err, types.ErrSigningRejected):
		return "signature request rejected in wallet"
	case errors.Is(err, types.ErrApprovalRequired):
		return "token approvals missing; run with --approve or use the approve command"
	case errors.Is(err, types.ErrSettlementNotReady):
		return "market is resolved but not yet settled on-chain; try again later"
	default:
		return err.Error()
	}
}
