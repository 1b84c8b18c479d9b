package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder/envelopetest"
)

func TestDecodeInput(t *testing.T) {
	raw := []byte{0x0a, 0x02, 0x01, 0xff}
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"hex", hex.EncodeToString(raw), false},
		{"hex with prefix", "0x" + hex.EncodeToString(raw), false},
		{"base64", base64.StdEncoding.EncodeToString(raw), false},
		{"empty", "  ", true},
		{"garbage", "not an envelope!", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeInput(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeInput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, raw) {
				t.Errorf("decodeInput() = %x, want %x", got, raw)
			}
		})
	}
}

func TestPrintDecoded(t *testing.T) {
	to := domain.MustAddress("8f31e9fa14266c5da7f63bfc96811e08b7c09183")
	body := envelopetest.Body{
		Payer:      domain.EntityID{Num: 1500},
		ValidStart: domain.Position(1700000000_000000000),
		Memo:       "deposit",
		Transfers:  []envelopetest.Credit{envelopetest.ToAlias(to, 25)},
	}.Marshal()
	tx, err := decoder.New(nil).Decode(envelopetest.Signed(body))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	printDecoded(&out, tx)
	s := out.String()
	for _, want := range []string{"0.0.1500", "signed", `"deposit"`, "alias:" + to.String(), "25"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}
