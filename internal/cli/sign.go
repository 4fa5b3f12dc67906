package cli

import (
	"encoding/json"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"github.com/mrz1836/tether/internal/app"
	"github.com/mrz1836/tether/internal/output"
	"github.com/mrz1836/tether/internal/signer"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// signCmd is the parent command for signing.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign messages and typed data with the wallet",
	Long: `Ask the connected wallet to sign, then verify the signature straight away.

Plain messages use EIP-191 personal_sign. Typed data uses EIP-712 v4, with
the domain chain id taken from the wallet's active chain. Signatures from
smart-contract wallets are verified through EIP-1271.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var signMessageCmd = &cobra.Command{
	Use:   "message [text]",
	Short: "Sign a plain text message",
	Long: `Sign a plain text message with EIP-191 and report whether it verifies.

The message is taken from the argument, from standard input when the
argument is "-", or from a built-in poem with --demo.`,
	Example: `  tether sign message "hello"
  echo hello | tether sign message -
  tether sign message --demo`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSignMessage,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var signTypedCmd = &cobra.Command{
	Use:   "typed",
	Short: "Sign EIP-712 typed data",
	Long: `Sign EIP-712 typed data and report whether it verifies.

The payload is read from a JSON file with domain, types, primaryType and
message keys, or the "Ether Mail" sample is used with --demo. A domain
without chainId gets the active chain; a different chainId is refused.`,
	Example: `  tether sign typed --demo
  tether sign typed --file order.json`,
	Args: cobra.NoArgs,
	RunE: runSignTyped,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	signDemo      bool
	signTypedFile string
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	signCmd.GroupID = "actions"
	rootCmd.AddCommand(signCmd)
	signCmd.AddCommand(signMessageCmd)
	signCmd.AddCommand(signTypedCmd)
	enrichParentLong(signCmd)

	signMessageCmd.Flags().BoolVar(&signDemo, "demo", false, "sign the built-in demo message")
	signTypedCmd.Flags().BoolVar(&signDemo, "demo", false, "sign the built-in Ether Mail payload")
	signTypedCmd.Flags().StringVar(&signTypedFile, "file", "", "JSON file with the typed data payload")
	signTypedCmd.MarkFlagsMutuallyExclusive("demo", "file")
	signTypedCmd.MarkFlagsOneRequired("demo", "file")
}

// signView is the printable result of a signing trigger.
type signView struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Valid     bool   `json:"isValid"`
	Message   string `json:"message,omitempty"`
	ChainID   string `json:"chainId,omitempty"`
}

func viewSignResult(r *app.SignResult) signView {
	v := signView{
		Signer:    r.Signer.Hex(),
		Signature: hexutil.Encode(r.Signature),
		Valid:     r.Valid,
	}
	if r.TypedData != nil && r.TypedData.Domain.ChainId != nil {
		v.ChainID = (*big.Int)(r.TypedData.Domain.ChainId).String()
	} else {
		v.Message = string(r.Message)
	}
	return v
}

func (v signView) fields() output.Fields {
	fs := output.Fields{{Label: "Signer", Value: v.Signer}}
	if v.ChainID != "" {
		fs = append(fs, output.Field{Label: "Chain ID", Value: v.ChainID})
	}
	return append(fs,
		output.Field{Label: "Signature", Value: v.Signature},
		output.Field{Label: "Valid", Value: v.Valid},
	)
}

func runSignMessage(cmd *cobra.Command, args []string) error {
	text, err := messageText(cmd.InOrStdin(), args, signDemo)
	if err != nil {
		return err
	}

	cc := GetCmdContext(cmd)
	ctx := cmd.Context()
	a, err := cc.App(ctx)
	if err != nil {
		return err
	}

	if !cc.Fmt.IsJSON() {
		output.Info(cmd.ErrOrStderr(), "Approve the signature request in your wallet...")
	}
	res, err := a.SignMessage(ctx, text)
	if err != nil {
		return err
	}
	v := viewSignResult(res)
	return cc.Fmt.Result(v, v.fields())
}

// messageText picks the message to sign from the flags and arguments.
func messageText(in io.Reader, args []string, demo bool) (string, error) {
	switch {
	case demo && len(args) > 0:
		return "", tethererr.WithSuggestion(tethererr.ErrInvalidInput, "Pass either a message or --demo, not both")
	case demo:
		return signer.DemoMessage, nil
	case len(args) == 0:
		return "", tethererr.WithSuggestion(tethererr.ErrInvalidInput, "Pass a message, '-' for standard input, or --demo")
	case args[0] == "-":
		data, err := io.ReadAll(in)
		if err != nil {
			return "", tethererr.Wrap(err, "reading message from standard input")
		}
		return strings.TrimSuffix(string(data), "\n"), nil
	}
	return args[0], nil
}

func runSignTyped(cmd *cobra.Command, _ []string) error {
	in, err := typedInput(signDemo, signTypedFile)
	if err != nil {
		return err
	}

	cc := GetCmdContext(cmd)
	ctx := cmd.Context()
	a, err := cc.App(ctx)
	if err != nil {
		return err
	}

	if !cc.Fmt.IsJSON() {
		output.Info(cmd.ErrOrStderr(), "Approve the typed data request in your wallet...")
	}
	res, err := a.SignTypedData(ctx, *in)
	if err != nil {
		return err
	}
	v := viewSignResult(res)
	return cc.Fmt.Result(v, v.fields())
}

// typedPayload is the on-disk typed data format.
type typedPayload struct {
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	PrimaryType string                    `json:"primaryType"`
	Message     apitypes.TypedDataMessage `json:"message"`
}

func typedInput(demo bool, path string) (*app.TypedDataInput, error) {
	if demo {
		domain, types, primary, message := signer.DemoTypedData()
		return &app.TypedDataInput{Domain: domain, Types: types, PrimaryType: primary, Message: message}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path is supplied by the user on purpose
	if err != nil {
		return nil, tethererr.WithDetails(tethererr.ErrInvalidInput, map[string]string{"file": path, "reason": err.Error()})
	}
	return parseTypedData(data)
}

// parseTypedData decodes a typed data payload. A caller-supplied
// EIP712Domain type is dropped; it is rebuilt from the domain.
func parseTypedData(data []byte) (*app.TypedDataInput, error) {
	var p typedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, tethererr.WithCause(tethererr.ErrInvalidInput, err)
	}
	delete(p.Types, "EIP712Domain")

	return &app.TypedDataInput{
		Domain:      p.Domain,
		Types:       p.Types,
		PrimaryType: p.PrimaryType,
		Message:     p.Message,
	}, nil
}
