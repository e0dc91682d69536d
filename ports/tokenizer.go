package ports

import "github.com/layer-3/planclient/core"

// Tokenizer issues and parses the bearer tokens used by the mock backend
type Tokenizer interface {
	IssueAccessToken(subject, refreshID string) (string, core.TokenInfo, error)
	IssueRefreshToken(subject string) (string, core.TokenInfo, error)
	ParseAccessToken(token string) (core.TokenInfo, error)
	ParseRefreshToken(token string) (core.TokenInfo, error)

	// Inspect decodes claims without verifying the signature
	Inspect(token string) (core.TokenInfo, error)
}
