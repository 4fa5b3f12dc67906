package signer

import (
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DemoMessage is signed by `sign message --demo`.
const DemoMessage = `Two roads diverged in a yellow wood,
Robert Frost poet

And sorry I could not travel both
And be one traveler, long I stood
And looked down one as far as I could
To where it bent in the undergrowth;

Then took the other, as just as fair,
And having perhaps the better claim,
Because it was grassy and wanted wear;
Though as for that the passing there
Had worn them really about the same,

And both that morning equally lay
In leaves no step had trodden black.
Oh, I kept the first for another day!
Yet knowing how way leads on to way,
I doubted if I should ever come back.

I shall be telling this with a sigh
Somewhere ages and ages hence:
Two roads diverged in a wood, and I-
I took the one less traveled by,
And that has made all the difference.`

// DemoTypedData returns the "Ether Mail" payload. The chain id is left
// empty so SignTypedData fills it from the active chain.
func DemoTypedData() (apitypes.TypedDataDomain, apitypes.Types, string, apitypes.TypedDataMessage) {
	domain := apitypes.TypedDataDomain{
		Name:              "Ether Mail",
		Version:           "1",
		VerifyingContract: "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC",
	}
	types := apitypes.Types{
		"Person": {
			{Name: "name", Type: "string"},
			{Name: "wallet", Type: "address"},
		},
	}
	message := apitypes.TypedDataMessage{
		"name":   "Bob",
		"wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
	}
	return domain, types, "Person", message
}
