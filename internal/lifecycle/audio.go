package lifecycle

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// AudioResolver turns a recording id into a URL the provider can fetch.
type AudioResolver interface {
	AudioURL(ctx context.Context, recordingID string) (string, error)
}

// URLAudioResolver serves recordings from <base>/recordings/<id>.
// Base is read on every call so a base configured at runtime is picked up.
type URLAudioResolver struct {
	Base func() string
}

func (r URLAudioResolver) AudioURL(_ context.Context, recordingID string) (string, error) {
	if strings.TrimSpace(recordingID) == "" {
		return "", errors.New("lifecycle: recording id required")
	}
	base := ""
	if r.Base != nil {
		base = strings.TrimRight(strings.TrimSpace(r.Base()), "/")
	}
	if base == "" {
		return "", errors.New("lifecycle: media base url not configured")
	}
	return base + "/recordings/" + url.PathEscape(recordingID), nil
}
