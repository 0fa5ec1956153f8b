package mrr

import "errors"

var ErrInvalidMerchant = errors.New("invalid_merchant")
