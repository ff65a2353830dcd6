package domain

import "errors"

var (
	ErrCorruptState        = errors.New("more than one IP record stored")
	ErrNoServicesAvailable = errors.New("no public IP services available")
	ErrAllServicesFailed   = errors.New("all public IP services failed")
	ErrUnknownSource       = errors.New("unknown IP source")
	ErrWrongFamily         = errors.New("address is not IPv4")
	ErrInvalidAddress      = errors.New("response is not an IP address")
	ErrFieldMissing        = errors.New("expected field missing from response")
	ErrNoIPv4              = errors.New("no IPv4 address resolved")
)
