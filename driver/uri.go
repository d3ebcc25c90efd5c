// File: driver/uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidChannel reports a channel string the driver cannot parse
// or serve.
var ErrInvalidChannel = errors.New("driver: invalid channel")

// Channel URI parameter names.
const (
	ParamTermLength = "term-length"
	ParamMTU        = "mtu"
	ParamInitTermID = "init-term-id"
	ParamTermID     = "term-id"
	ParamTermOffset = "term-offset"
	ParamSessionID  = "session-id"
)

// positionParams pin a publication to an explicit stream position and
// identity. They are stripped from channels before they are used as
// recording identity.
var positionParams = []string{ParamInitTermID, ParamTermID, ParamTermOffset, ParamSessionID}

// ChannelURI is the parsed form of a channel string:
//
//	scheme:name?key=value|key=value
type ChannelURI struct {
	Scheme string
	Name   string
	Params map[string]string
}

// ParseChannelURI parses channel into its scheme, name and parameters.
func ParseChannelURI(channel string) (*ChannelURI, error) {
	scheme, rest, ok := strings.Cut(channel, ":")
	if !ok || scheme == "" || rest == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	name, query, _ := strings.Cut(rest, "?")
	if name == "" {
		return nil, fmt.Errorf("%w: empty stream name in %q", ErrInvalidChannel, channel)
	}
	u := &ChannelURI{Scheme: scheme, Name: name, Params: map[string]string{}}
	if query == "" {
		return u, nil
	}
	for _, kv := range strings.Split(query, "|") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: bad parameter %q in %q", ErrInvalidChannel, kv, channel)
		}
		u.Params[k] = v
	}
	return u, nil
}

// String renders the URI in canonical form with sorted parameters.
func (u *ChannelURI) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteByte(':')
	b.WriteString(u.Name)
	if len(u.Params) > 0 {
		keys := make([]string, 0, len(u.Params))
		for k := range u.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('|')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(u.Params[k])
		}
	}
	return b.String()
}

// Stripped renders the URI without position and identity parameters.
// Recordings are keyed by this form, so one logical channel maps to
// the same recording identity regardless of where a publication joins.
func (u *ChannelURI) Stripped() string {
	stripped := &ChannelURI{Scheme: u.Scheme, Name: u.Name, Params: map[string]string{}}
	for k, v := range u.Params {
		stripped.Params[k] = v
	}
	for _, k := range positionParams {
		delete(stripped.Params, k)
	}
	return stripped.String()
}

// Int32Param returns the parameter as int32 or def when absent.
func (u *ChannelURI) Int32Param(key string, def int32) (int32, error) {
	raw, ok := u.Params[key]
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %s=%q", ErrInvalidChannel, key, raw)
	}
	return int32(v), nil
}
