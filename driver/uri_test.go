// File: driver/uri_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package driver

import (
	"errors"
	"testing"
)

func TestParseChannelURI_Basic(t *testing.T) {
	u, err := ParseChannelURI("mem:events")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "mem" || u.Name != "events" || len(u.Params) != 0 {
		t.Fatalf("parsed = %+v", u)
	}
}

func TestParseChannelURI_Params(t *testing.T) {
	u, err := ParseChannelURI("mem:rec?term-length=4096|mtu=1024|session-id=5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tl, err := u.Int32Param(ParamTermLength, 0)
	if err != nil || tl != 4096 {
		t.Fatalf("term-length = (%d, %v)", tl, err)
	}
	mtu, _ := u.Int32Param(ParamMTU, 0)
	if mtu != 1024 {
		t.Fatalf("mtu = %d", mtu)
	}
	if def, _ := u.Int32Param(ParamTermID, 42); def != 42 {
		t.Fatalf("default param = %d, want 42", def)
	}
}

func TestParseChannelURI_Invalid(t *testing.T) {
	for _, channel := range []string{
		"",
		"events",
		"mem:",
		":events",
		"mem:rec?term-length",
		"mem:rec?=5",
		"mem:rec?term-length=",
	} {
		if _, err := ParseChannelURI(channel); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("ParseChannelURI(%q) = %v, want ErrInvalidChannel", channel, err)
		}
	}
	u, _ := ParseChannelURI("mem:rec?mtu=abc")
	if u != nil {
		if _, err := u.Int32Param(ParamMTU, 0); !errors.Is(err, ErrInvalidChannel) {
			t.Errorf("non-numeric param accepted")
		}
	}
}

func TestChannelURI_StringIsCanonical(t *testing.T) {
	u, err := ParseChannelURI("mem:rec?term-id=3|mtu=1024|init-term-id=1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := "mem:rec?init-term-id=1|mtu=1024|term-id=3"
	if got := u.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestChannelURI_StrippedDropsPositionParams(t *testing.T) {
	u, err := ParseChannelURI("mem:rec?session-id=9|term-length=4096|term-id=3|init-term-id=1|term-offset=64|mtu=1024")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := "mem:rec?mtu=1024|term-length=4096"
	if got := u.Stripped(); got != want {
		t.Fatalf("Stripped() = %q, want %q", got, want)
	}
	// The original params survive stripping.
	if _, ok := u.Params[ParamSessionID]; !ok {
		t.Fatal("Stripped mutated the source URI")
	}
}
