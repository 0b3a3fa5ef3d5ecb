package topology

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePeerAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: "ws://10.166.25.8:4431"},
		{addr: "wss://player.example.org"},
		{addr: "http://[::1]:8080/sync"},
		{addr: "", wantErr: true},
		{addr: "   ", wantErr: true},
		{addr: "10.0.0.1:4431", wantErr: true},
		{addr: "ws://", wantErr: true},
		{addr: "ws://:4431", wantErr: true},
		{addr: "ws://host:", wantErr: true},
		{addr: "/relative/path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			u, err := ValidatePeerAddress(tt.addr)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ValidatePeerAddress(%q) error = %v, want ErrValidation", tt.addr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidatePeerAddress(%q) error = %v", tt.addr, err)
			}
			if u.String() != tt.addr {
				t.Errorf("String() = %q, want %q", u.String(), tt.addr)
			}
		})
	}
}

func TestValidateEntry(t *testing.T) {
	deep := map[string]any{}
	cur := deep
	for i := 0; i < maxNestingDepth+2; i++ {
		next := map[string]any{}
		cur["n"] = next
		cur = next
	}

	tooMany := map[string]any{}
	for i := 0; i <= maxAttrKeys; i++ {
		tooMany[strings.Repeat("k", i+1)] = i
	}

	tests := []struct {
		name    string
		alias   string
		kind    string
		attrs   map[string]any
		wantErr bool
	}{
		{name: "minimal", alias: "dvbstreamer", kind: "dvblast"},
		{
			name:  "with multicast pool",
			alias: "dvbstreamer",
			kind:  "dvblast",
			attrs: map[string]any{"name": "DVBlast", "mcast": map[string]any{"id": "mcastPool", "alias": "mediaControl"}},
		},
		{
			name:  "mixed values",
			alias: "tuner",
			kind:  "dvb-t",
			attrs: map[string]any{"freq": int64(474000000), "enabled": true, "gain": 0.5, "pids": []any{int64(100), int64(101)}},
		},
		{name: "empty alias", kind: "dvblast", wantErr: true},
		{name: "empty kind", alias: "dvbstreamer", wantErr: true},
		{name: "long alias", alias: strings.Repeat("a", maxNameLength+1), kind: "dvblast", wantErr: true},
		{name: "name not string", alias: "x", kind: "k", attrs: map[string]any{"name": 1}, wantErr: true},
		{name: "mcast not mapping", alias: "x", kind: "k", attrs: map[string]any{"mcast": "mcastPool"}, wantErr: true},
		{name: "unsupported type", alias: "x", kind: "k", attrs: map[string]any{"ch": make(chan int)}, wantErr: true},
		{name: "too deep", alias: "x", kind: "k", attrs: deep, wantErr: true},
		{name: "too many keys", alias: "x", kind: "k", attrs: tooMany, wantErr: true},
		{
			name:    "long string value",
			alias:   "x",
			kind:    "k",
			attrs:   map[string]any{"note": strings.Repeat("v", maxStringValueLen+1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(tt.alias, tt.kind, tt.attrs)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ValidateEntry() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateEntry() error = %v", err)
			}
		})
	}
}

func TestAttributes_MulticastPool(t *testing.T) {
	tests := []struct {
		name   string
		attrs  Attributes
		want   PoolRef
		wantOK bool
	}{
		{
			name:   "present",
			attrs:  Attributes{"mcast": map[string]any{"id": "mcastPool", "alias": "mediaControl"}},
			want:   PoolRef{ID: "mcastPool", Alias: "mediaControl"},
			wantOK: true,
		},
		{name: "absent", attrs: Attributes{"name": "DVBlast"}},
		{name: "empty mapping", attrs: Attributes{"mcast": map[string]any{}}},
		{name: "wrong type", attrs: Attributes{"mcast": "mcastPool"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.attrs.MulticastPool()
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("MulticastPool() = %+v, %v; want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestVersions(t *testing.T) {
	var nilSet Versions
	if nilSet.Has(0) {
		t.Error("nil set reports membership")
	}
	cpy := nilSet.Clone()
	cpy.Add(2)
	cpy.Add(0)
	if !cpy.Has(2) || !cpy.Has(0) || cpy.Has(1) {
		t.Errorf("Clone().Add() = %v", cpy.Sorted())
	}
	if got := cpy.Sorted(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("Sorted() = %v, want [0 2]", got)
	}

	orig := NewVersions(1)
	clone := orig.Clone()
	clone.Add(5)
	if orig.Has(5) {
		t.Error("Clone() shares storage with original")
	}
}
