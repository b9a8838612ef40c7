package offer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// RawProduct is one ProductList entry as the vendor API returns it. Only the
// fields the transformer reads are decoded.
type RawProduct struct {
	OfferType      string          `json:"OfferType"`
	OfferText      Text            `json:"OfferText"`
	Image          Text            `json:"Image"`
	ProductDetails *ProductDetails `json:"ProductDetails"`
}

type ProductDetails struct {
	Category    Text  `json:"GROUP_3"`
	Description Text  `json:"PART_DESCRIPTION"`
	PartNumber  Text  `json:"PART_NUMBER"`
	NormalPrice Price `json:"SALES_PRICE_RRP"`
}

// Details never returns nil, so a record without ProductDetails reads as
// zero values.
func (r RawProduct) Details() ProductDetails {
	if r.ProductDetails == nil {
		return ProductDetails{}
	}
	return *r.ProductDetails
}

// Derived is the display-ready offer written to the snapshot file.
type Derived struct {
	Category    string `json:"Category"`
	Product     string `json:"Product"`
	Image       string `json:"Image"`
	NormalPrice string `json:"NormalPrice"`
	Discount    string `json:"Discount"`
	ActualPrice string `json:"ActualPrice"`
	Savings     string `json:"Savings"`
}

// Text decodes a JSON string, number or null into a string. Objects and
// arrays decode to "".
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '{' || data[0] == '[':
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string {
	return string(t)
}

// Price decodes a JSON number or numeric string. Anything else becomes 0.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*p = 0
		return nil
	}
	*p = Price(v)
	return nil
}
