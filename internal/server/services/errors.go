package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/logging"
)

// translate returns err unchanged when it matches one of known (or already
// is an internal error) and otherwise logs it and returns common.ErrorInternal,
// so storage detail never reaches callers.
func translate(ctx context.Context, log logging.Logger, op string, err error, known ...error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, common.ErrorInternal) {
		return err
	}
	log.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}
