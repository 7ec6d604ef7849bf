package esim

import coreerrors "esimchain/core/errors"

var (
	ErrInvalidBandwidth      = coreerrors.Validation("esim: invalid bandwidth")
	ErrInvalidValidityPeriod = coreerrors.Validation("esim: invalid validity period")
	ErrInvalidTheme          = coreerrors.Validation("esim: invalid theme")
	ErrInvalidRarity         = coreerrors.Validation("esim: invalid rarity")
	ErrInvalidOwner          = coreerrors.Validation("esim: invalid owner")
	ErrInvalidSignature      = coreerrors.Validation("esim: proof signature required")
	ErrDuplicateProof        = coreerrors.Conflict("esim: duplicate proof")
	ErrNotActive             = coreerrors.Conflict("esim: token not active")
	ErrNotSuspended          = coreerrors.Conflict("esim: token not suspended")
	ErrNotOwner              = coreerrors.Authorization("esim: caller is not the owner")
	ErrExpired               = coreerrors.Temporal("esim: token expired")
	ErrNotExpired            = coreerrors.Temporal("esim: token not yet expired")
	ErrTokenNotFound         = coreerrors.NotFound("esim: token not found")
)
