package wallet

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// ProjectIDHeader carries the relay project id on every request.
const ProjectIDHeader = "X-Project-Id"

// AppMetadata is shown by the remote wallet when it is asked to pair.
type AppMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// RelayConnector pairs with a remote wallet through a relay service.
// The relay connection stays bound to the pairing, so every later request
// on the same transport reaches the paired wallet.
type RelayConnector struct {
	URL       string
	ProjectID string
	App       AppMetadata
}

type relayApproval struct {
	Topic    string           `json:"topic"`
	Accounts []common.Address `json:"accounts"`
	ChainID  *hexutil.Big     `json:"chainId"`
	Peer     PeerMetadata     `json:"peer"`
}

// Kind implements Connector.
func (c *RelayConnector) Kind() Kind { return KindRelay }

// Connect implements Connector. Interactive mode proposes a new pairing
// the user approves on the remote wallet; silent mode resumes the pairing
// named by req.Resume.
func (c *RelayConnector) Connect(ctx context.Context, req ConnectRequest) (Handle, error) {
	if req.Mode == Silent && req.Resume == "" {
		return nil, tethererr.WithDetails(tethererr.ErrConnectionUnavailable, map[string]string{
			"reason": "no relay pairing to resume",
		})
	}

	headers := http.Header{}
	if c.ProjectID != "" {
		headers.Set(ProjectIDHeader, c.ProjectID)
	}

	t, err := Dial(ctx, c.URL, headers)
	if err != nil {
		return nil, err
	}

	var approval relayApproval
	if req.Mode == Silent {
		err = t.Call(ctx, &approval, "wc_sessionResume", req.Resume)
	} else {
		err = t.Call(ctx, &approval, "wc_sessionPropose", c.App)
	}
	if err != nil {
		t.Close()
		return nil, classifyConnect(err)
	}

	if approval.Topic == "" || len(approval.Accounts) == 0 {
		t.Close()
		return nil, tethererr.WithDetails(tethererr.ErrConnectionRejected, map[string]string{
			"reason": "relay approval carried no accounts",
		})
	}

	return &RelayHandle{
		baseHandle: baseHandle{transport: t, accounts: approval.Accounts},
		Session: &RelaySession{
			Topic:     approval.Topic,
			Peer:      approval.Peer,
			transport: t,
		},
	}, nil
}
