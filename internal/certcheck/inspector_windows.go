//go:build windows

package certcheck

import (
	"crypto/x509"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modWintrust                        = windows.NewLazySystemDLL("wintrust.dll")
	procWTHelperProvDataFromStateData  = modWintrust.NewProc("WTHelperProvDataFromStateData")
	procWTHelperGetProvSignerFromChain = modWintrust.NewProc("WTHelperGetProvSignerFromChain")
)

var (
	errNoProviderData = errors.New("no verification state for the signature")
	errNoSigner       = errors.New("no primary signer found")
)

// providerCert is the head of CRYPT_PROVIDER_CERT.
type providerCert struct {
	Size uint32
	Cert *windows.CertContext
}

// providerSigner is the head of CRYPT_PROVIDER_SGNR.
type providerSigner struct {
	Size         uint32
	VerifyAsOf   windows.Filetime
	CertChainLen uint32
	CertChain    *providerCert
}

// AuthenticodeInspector validates Authenticode signatures with WinVerifyTrust.
type AuthenticodeInspector struct{}

// NewInspector returns the host Inspector.
func NewInspector() Inspector {
	return AuthenticodeInspector{}
}

// Signer implements Inspector. The certificate comes from the chain
// WinVerifyTrust built for the primary signer, never from the certificates
// the file happens to carry.
func (AuthenticodeInspector) Signer(path string) (*x509.Certificate, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	file := &windows.WinTrustFileInfo{
		Size:     uint32(unsafe.Sizeof(windows.WinTrustFileInfo{})),
		FilePath: name,
	}

	data := &windows.WinTrustData{
		Size:                            uint32(unsafe.Sizeof(windows.WinTrustData{})),
		UIChoice:                        windows.WTD_UI_NONE,
		RevocationChecks:                windows.WTD_REVOKE_WHOLECHAIN,
		UnionChoice:                     windows.WTD_CHOICE_FILE,
		StateAction:                     windows.WTD_STATEACTION_VERIFY,
		FileOrCatalogOrBlobOrSgnrOrCert: unsafe.Pointer(file),
	}

	// The verification state stays open until the signer is copied out.
	defer func() {
		data.StateAction = windows.WTD_STATEACTION_CLOSE
		_ = windows.WinVerifyTrustEx(windows.InvalidHWND, &windows.WINTRUST_ACTION_GENERIC_VERIFY_V2, data)
	}()

	err = windows.WinVerifyTrustEx(windows.InvalidHWND, &windows.WINTRUST_ACTION_GENERIC_VERIFY_V2, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsigned, err)
	}

	return primarySigner(data.StateData)
}

func primarySigner(state windows.Handle) (*x509.Certificate, error) {
	if err := procWTHelperGetProvSignerFromChain.Find(); err != nil {
		return nil, err
	}

	providerData, _, _ := procWTHelperProvDataFromStateData.Call(uintptr(state))
	if providerData == 0 {
		return nil, errNoProviderData
	}

	raw, _, _ := procWTHelperGetProvSignerFromChain.Call(providerData, 0, 0, 0)
	if raw == 0 {
		return nil, errNoSigner
	}

	signer := (*providerSigner)(unsafe.Pointer(raw))
	if signer.CertChainLen == 0 || signer.CertChain == nil || signer.CertChain.Cert == nil {
		return nil, errNoSigner
	}

	leaf := signer.CertChain.Cert
	encoded := unsafe.Slice(leaf.EncodedCert, leaf.Length)

	cert, err := x509.ParseCertificate(append([]byte(nil), encoded...))
	if err != nil {
		return nil, fmt.Errorf("parse signer: %w", err)
	}

	return cert, nil
}
