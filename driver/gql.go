package driver

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/whisper-darkly/twitch-recorder/stream"
)

var validate = validator.New()

type gqlRequest struct {
	OperationName string        `json:"operationName"`
	Extensions    gqlExtensions `json:"extensions"`
	Variables     gqlVariables  `json:"variables"`
}

type gqlExtensions struct {
	PersistedQuery gqlPersistedQuery `json:"persistedQuery"`
}

type gqlPersistedQuery struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

type gqlVariables struct {
	IsLive     bool   `json:"isLive"`
	Login      string `json:"login"`
	IsVod      bool   `json:"isVod"`
	VodID      string `json:"vodID"`
	PlayerType string `json:"playerType"`
}

func newTokenRequest(channel string) gqlRequest {
	return gqlRequest{
		OperationName: twitchTokenOperation,
		Extensions: gqlExtensions{PersistedQuery: gqlPersistedQuery{
			Version:    1,
			SHA256Hash: twitchTokenQueryHash,
		}},
		Variables: gqlVariables{
			IsLive:     true,
			Login:      channel,
			IsVod:      false,
			VodID:      "",
			PlayerType: "embed",
		},
	}
}

// tokenResponse mirrors one element of the GQL batch response. Pointers let
// validation tell a missing field from a zero value.
type tokenResponse struct {
	Data *struct {
		StreamPlaybackAccessToken *struct {
			Typename  *string `json:"__typename" validate:"required,eq=PlaybackAccessToken"`
			Value     *string `json:"value" validate:"required"`
			Signature *string `json:"signature" validate:"required"`
		} `json:"streamPlaybackAccessToken" validate:"required"`
	} `json:"data" validate:"required"`
	Extensions *struct {
		DurationMilliseconds *float64 `json:"durationMilliseconds" validate:"required"`
		OperationName        *string  `json:"operationName" validate:"required,eq=PlaybackAccessToken"`
		RequestID            *string  `json:"requestID" validate:"required"`
	} `json:"extensions" validate:"required"`
}

// decodeTokenResponse validates the whole response shape before accepting
// anything from it. Any mismatch is stream.ErrToken.
func decodeTokenResponse(body []byte) (*stream.PlaybackAccessToken, error) {
	var resp []tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", stream.ErrToken, err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: empty response", stream.ErrToken)
	}
	for i := range resp {
		if err := validate.Struct(&resp[i]); err != nil {
			return nil, fmt.Errorf("%w: response[%d]: %w", stream.ErrToken, i, err)
		}
	}

	tok := resp[0].Data.StreamPlaybackAccessToken
	return &stream.PlaybackAccessToken{
		Value:     *tok.Value,
		Signature: *tok.Signature,
	}, nil
}
