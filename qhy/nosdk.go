//go:build !qhyccd
// +build !qhyccd

package qhy

import "errors"

// ErrNoSDK is returned by NewSDK in builds without the qhyccd tag
var ErrNoSDK = errors.New("qhy: built without libqhyccd, rebuild with -tags qhyccd or use the simulator")

// NewSDK returns ErrNoSDK; the native Library needs the qhyccd build tag
func NewSDK() (Library, error) {
	return nil, ErrNoSDK
}
