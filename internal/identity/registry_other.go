//go:build !windows

package identity

import "errors"

func machineGUID() (string, error) {
	return "", errors.New("registry not available on this platform")
}
