//go:build windows

package identity

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const cryptographyKey = `SOFTWARE\Microsoft\Cryptography`

func machineGUID() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, cryptographyKey, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", cryptographyKey, err)
	}
	defer k.Close()

	guid, _, err := k.GetStringValue("MachineGuid")
	if err != nil {
		return "", fmt.Errorf("read MachineGuid: %w", err)
	}
	return guid, nil
}
