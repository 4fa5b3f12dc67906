package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// SessionConnector signs in to a smart-contract wallet session service.
type SessionConnector struct {
	URL            string
	AppName        string
	DefaultNetwork string
}

type sessionOpenParams struct {
	AppName string `json:"appName"`
	Network string `json:"network,omitempty"`
}

type sessionGrant struct {
	SessionID string         `json:"sessionId"`
	Address   common.Address `json:"address"`
	ChainID   *hexutil.Big   `json:"chainId"`
	Network   string         `json:"network"`
}

// Kind implements Connector.
func (c *SessionConnector) Kind() Kind { return KindSession }

// Connect implements Connector. Interactive mode runs the service's sign-in
// flow; silent mode resumes the session id in req.Resume.
func (c *SessionConnector) Connect(ctx context.Context, req ConnectRequest) (Handle, error) {
	if req.Mode == Silent && req.Resume == "" {
		return nil, tethererr.WithDetails(tethererr.ErrConnectionUnavailable, map[string]string{
			"reason": "no wallet session to resume",
		})
	}

	t, err := Dial(ctx, c.URL, nil)
	if err != nil {
		return nil, err
	}

	var grant sessionGrant
	if req.Mode == Silent {
		err = t.Call(ctx, &grant, "session_resume", req.Resume)
	} else {
		err = t.Call(ctx, &grant, "session_open", sessionOpenParams{AppName: c.AppName, Network: c.DefaultNetwork})
	}
	if err != nil {
		t.Close()
		return nil, classifyConnect(err)
	}

	if grant.SessionID == "" || grant.Address == (common.Address{}) {
		t.Close()
		return nil, tethererr.WithDetails(tethererr.ErrConnectionRejected, map[string]string{
			"reason": "session service returned no wallet",
		})
	}

	network := grant.Network
	if network == "" {
		network = c.DefaultNetwork
	}

	return &SessionHandle{
		baseHandle: baseHandle{transport: t, accounts: []common.Address{grant.Address}},
		Session: &SmartSession{
			ID:        grant.SessionID,
			Network:   network,
			transport: t,
		},
	}, nil
}
