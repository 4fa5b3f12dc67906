package output

import (
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
	"rsc.io/qr"
)

// PaymentURI returns the EIP-681 URI wallets scan to pay addr on chainID.
// A nil chainID leaves the chain to the scanning wallet.
func PaymentURI(addr common.Address, chainID *big.Int) string {
	if chainID == nil {
		return "ethereum:" + addr.Hex()
	}
	return fmt.Sprintf("ethereum:%s@%s", addr.Hex(), chainID.String())
}

// CanRenderQR reports whether w is a terminal.
func CanRenderQR(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}

// RenderQR draws data as a compact QR code. Non-terminal writers get
// nothing, so piped output stays machine readable.
func RenderQR(w io.Writer, data string) {
	if !CanRenderQR(w) {
		return
	}
	WriteQR(w, data)
}

// WriteQR draws data as a QR code on any writer.
func WriteQR(w io.Writer, data string) {
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          qr.L,
		Writer:         w,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
}
