// Package iso8583 carries the ACS collaborator calls over an ISO 8583 link:
// 0600/0610 for challenges and 0620/0630 for PARes verification.
package iso8583

import (
	"fmt"
	"io"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/network"
	"github.com/moov-io/iso8583/prefix"
)

const (
	mtiChallengeRequest  = "0600"
	mtiChallengeResponse = "0610"
	mtiVerifyRequest     = "0620"
	mtiVerifyResponse    = "0630"

	codeApproved = "00"
	codeDeclined = "05"
	codeError    = "96"
)

const (
	fieldPAN         = 2
	fieldAmount      = 4
	fieldSTAN        = 11
	fieldExpiry      = 14
	fieldResponse    = 39
	fieldDescription = 43
	fieldReason      = 44
	fieldMD          = 48
	fieldCurrency    = 49
	fieldPayload     = 62
	fieldACSURL      = 63
	fieldOrderID     = 47
)

var spec *iso8583.MessageSpec = &iso8583.MessageSpec{
	Name: "PayTrust ACS Link ASCII Specification",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		fieldPAN: field.NewString(&field.Spec{
			Length:      19,
			Description: "Primary Account Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldAmount: field.NewString(&field.Spec{
			Length:      12,
			Description: "Amount, Transaction (minor units)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldSTAN: field.NewString(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldExpiry: field.NewString(&field.Spec{
			Length:      4,
			Description: "Date, Expiration (YYMM)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldResponse: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldDescription: field.NewString(&field.Spec{
			Length:      99,
			Description: "Order Description",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldReason: field.NewString(&field.Spec{
			Length:      99,
			Description: "Additional Response Data",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldMD: field.NewString(&field.Spec{
			Length:      999,
			Description: "Merchant Data (MD)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		fieldCurrency: field.NewString(&field.Spec{
			Length:      3,
			Description: "Currency Code, Transaction",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldPayload: field.NewString(&field.Spec{
			Length:      999,
			Description: "PAReq / PARes",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		fieldACSURL: field.NewString(&field.Spec{
			Length:      999,
			Description: "ACS URL",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		fieldOrderID: field.NewString(&field.Spec{
			Length:      99,
			Description: "Merchant Order ID",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
	},
}

func readMessageLength(r io.Reader) (int, error) {
	header := network.NewBinary2BytesHeader()
	n, err := header.ReadFrom(r)
	if err != nil {
		return n, err
	}

	return header.Length(), nil
}

func writeMessageLength(w io.Writer, length int) (int, error) {
	header := network.NewBinary2BytesHeader()
	header.SetLength(length)

	n, err := header.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("writing message header: %w", err)
	}

	return n, nil
}

// setFields sets the non-empty values on message.
func setFields(message *iso8583.Message, values map[int]string) error {
	for id, v := range values {
		if v == "" {
			continue
		}
		if err := message.Field(id, v); err != nil {
			return fmt.Errorf("setting field %d: %w", id, err)
		}
	}
	return nil
}

// getField returns the value of a field or an empty string if it is not set.
func getField(message *iso8583.Message, id int) string {
	v, err := message.GetString(id)
	if err != nil {
		return ""
	}
	return v
}
