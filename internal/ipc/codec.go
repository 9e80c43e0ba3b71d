package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var errEmpty = errors.New("empty response")

// DecodeLogin decodes a Login or LoginTV response: either a bare URL,
// a JSON string, or a {url, userCode} record.
func DecodeLogin(data []byte) (LoginResponse, error) {
	var resp LoginResponse
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return resp, errEmpty
	}
	switch trimmed[0] {
	case '{':
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return LoginResponse{}, fmt.Errorf("decode login record: %w", err)
		}
	case '"':
		if err := json.Unmarshal(trimmed, &resp.URL); err != nil {
			return LoginResponse{}, fmt.Errorf("decode login url: %w", err)
		}
	default:
		resp.URL = string(trimmed)
	}
	if resp.URL == "" {
		return LoginResponse{}, errors.New("login response has no url")
	}
	return resp, nil
}

// DecodeLoginDiagnostic decodes an IsLoginComplete response.
func DecodeLoginDiagnostic(data []byte) (LoginDiagnostic, error) {
	var d LoginDiagnostic
	if err := decodeRecord(data, &d); err != nil {
		return LoginDiagnostic{}, fmt.Errorf("decode login diagnostic: %w", err)
	}
	return d, nil
}

// DecodeStatus decodes a Status response.
func DecodeStatus(data []byte) (StatusSnapshot, error) {
	var s StatusSnapshot
	if err := decodeRecord(data, &s); err != nil {
		return StatusSnapshot{}, fmt.Errorf("decode status: %w", err)
	}
	return s, nil
}

// DecodeRoutes decodes a GetRoutes response.
func DecodeRoutes(data []byte) (RouteSelection, error) {
	var r RouteSelection
	if err := decodeRecord(data, &r); err != nil {
		return RouteSelection{}, fmt.Errorf("decode routes: %w", err)
	}
	return r, nil
}

// DecodeAck decodes a boolean acknowledgement. Anything other than a
// true value, quoted or not, is false.
func DecodeAck(data []byte) bool {
	s := string(bytes.TrimSpace(data))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	ok, err := strconv.ParseBool(s)
	return err == nil && ok
}

func decodeRecord(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errEmpty
	}
	return json.Unmarshal(trimmed, v)
}

func encodeAck(ok bool) []byte {
	return []byte(strconv.FormatBool(ok))
}

func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}
