package domain

import "errors"

var (
	ErrMissingTag         = errors.New("tap missing tag id")
	ErrMissingPortal      = errors.New("tap missing portal")
	ErrZoneNotRedeemable  = errors.New("zone not redeemable")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrTeamRequired       = errors.New("team id required")
)
