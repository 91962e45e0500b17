package vault

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	crypt32           = windows.NewLazySystemDLL("crypt32.dll")
	procProtectData   = crypt32.NewProc("CryptProtectData")
	procUnprotectData = crypt32.NewProc("CryptUnprotectData")
)

// dataBlob mirrors the Win32 DATA_BLOB structure.
type dataBlob struct {
	cbData uint32
	pbData *byte
}

// dpapiProtect encrypts data for the current Windows user account via
// CryptProtectData, generalized directly from pkg/storage/encryption.go's
// EncryptionManager.dpapiEncrypt (same blob marshaling, same
// windows.LocalFree cleanup of the CryptoAPI-owned output buffer).
func dpapiProtect(data []byte) ([]byte, error) {
	var in dataBlob
	if len(data) > 0 {
		in.cbData = uint32(len(data))
		in.pbData = &data[0]
	}
	var out dataBlob

	ret, _, err := procProtectData.Call(
		uintptr(unsafe.Pointer(&in)),
		0, 0, 0, 0, 0,
		uintptr(unsafe.Pointer(&out)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("vault: CryptProtectData failed: %w", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.pbData)))
	if out.cbData == 0 {
		return nil, fmt.Errorf("vault: CryptProtectData returned empty data")
	}
	protected := make([]byte, out.cbData)
	copy(protected, unsafe.Slice(out.pbData, out.cbData))
	return protected, nil
}

// dpapiUnprotect reverses dpapiProtect via CryptUnprotectData.
func dpapiUnprotect(data []byte) ([]byte, error) {
	var in dataBlob
	if len(data) > 0 {
		in.cbData = uint32(len(data))
		in.pbData = &data[0]
	}
	var out dataBlob

	ret, _, err := procUnprotectData.Call(
		uintptr(unsafe.Pointer(&in)),
		0, 0, 0, 0, 0,
		uintptr(unsafe.Pointer(&out)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("vault: CryptUnprotectData failed: %w", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.pbData)))
	if out.cbData == 0 {
		return []byte{}, nil
	}
	plain := make([]byte, out.cbData)
	copy(plain, unsafe.Slice(out.pbData, out.cbData))
	return plain, nil
}
