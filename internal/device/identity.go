// Package device derives the virtual set-top-box identity a portal expects from a MAC address.
package device

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Model is the STB model the portal sees in headers and profile requests.
const Model = "MAG250"

// Identity is the deterministic identity of a virtual STB. Every field is a pure function
// of the uppercased MAC; nothing here is persisted.
type Identity struct {
	MAC        string // uppercased
	SerialHash string // upper(hex(md5(MAC)))
	SerialCut  string // first 13 chars of SerialHash; sent as sn=
	DeviceID   string // upper(hex(sha256(MAC)))
	Signature  string // upper(hex(sha256(SerialCut + MAC)))
}

// FromMAC derives the identity for mac.
func FromMAC(mac string) Identity {
	upper := strings.ToUpper(mac)
	sn := md5Upper(upper)
	cut := sn
	if len(cut) > 13 {
		cut = cut[:13]
	}
	return Identity{
		MAC:        upper,
		SerialHash: sn,
		SerialCut:  cut,
		DeviceID:   sha256Upper(upper),
		Signature:  sha256Upper(cut + upper),
	}
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func sha256Upper(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
