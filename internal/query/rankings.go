package query

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/flate"

	"stract/internal/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxRankingsBytes bounds the inflated size of an encoded rankings value.
const maxRankingsBytes = 1 << 20

// EncodeHostRankings packs rankings into the compact form carried by the
// "sr" parameter: base64url of deflate-compressed JSON.
func EncodeHostRankings(h api.HostRankings) (string, error) {
	data, err := json.Marshal(h.Normalized())
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeHostRankings reverses EncodeHostRankings. Padded input is accepted.
func DecodeHostRankings(s string) (api.HostRankings, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
	if err != nil {
		return api.NewHostRankings(), fmt.Errorf("invalid rankings encoding: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(raw))
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(io.LimitReader(r, maxRankingsBytes))
	if err != nil {
		return api.NewHostRankings(), fmt.Errorf("invalid rankings compression: %w", err)
	}

	var h api.HostRankings
	if err := json.Unmarshal(data, &h); err != nil {
		return api.NewHostRankings(), fmt.Errorf("invalid rankings payload: %w", err)
	}
	return h.Normalized(), nil
}
