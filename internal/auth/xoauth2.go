package auth

import "github.com/emersion/go-sasl"

// XOAuth2String builds the SASL initial response for the XOAUTH2 mechanism.
// The \x01 separators and the trailing pair are part of the wire format.
func XOAuth2String(account, accessToken string) string {
	return "user=" + account + "\x01auth=Bearer " + accessToken + "\x01\x01"
}

type xoauth2Client struct {
	account string
	token   string
}

// NewXOAuth2 returns a sasl.Client for the XOAUTH2 mechanism.
func NewXOAuth2(account, accessToken string) sasl.Client {
	return &xoauth2Client{account: account, token: accessToken}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	return "XOAUTH2", []byte(XOAuth2String(c.account, c.token)), nil
}

// Next is only invoked when the server rejects the initial response; the
// empty reply lets it finish the exchange with its error.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return nil, nil
}
