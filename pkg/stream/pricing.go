package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// MarketHours is the session a price was printed in.
type MarketHours int32

const (
	PreMarket     MarketHours = 0
	RegularMarket MarketHours = 1
	PostMarket    MarketHours = 2
	ExtendedHours MarketHours = 3
)

// PricingData is one live price update. Field numbers follow the upstream
// PricingData protobuf message; absent fields stay zero.
type PricingData struct {
	ID                string      `json:"id"`
	Price             float32     `json:"price"`
	Time              int64       `json:"time"`
	Currency          string      `json:"currency,omitempty"`
	Exchange          string      `json:"exchange,omitempty"`
	QuoteType         int32       `json:"quote_type,omitempty"`
	MarketHours       MarketHours `json:"market_hours"`
	ChangePercent     float32     `json:"change_percent"`
	DayVolume         int64       `json:"day_volume,omitempty"`
	DayHigh           float32     `json:"day_high,omitempty"`
	DayLow            float32     `json:"day_low,omitempty"`
	Change            float32     `json:"change"`
	ShortName         string      `json:"short_name,omitempty"`
	ExpireDate        int64       `json:"expire_date,omitempty"`
	OpenPrice         float32     `json:"open_price,omitempty"`
	PreviousClose     float32     `json:"previous_close,omitempty"`
	StrikePrice       float32     `json:"strike_price,omitempty"`
	UnderlyingSymbol  string      `json:"underlying_symbol,omitempty"`
	OpenInterest      int64       `json:"open_interest,omitempty"`
	OptionsType       int32       `json:"options_type,omitempty"`
	MiniOption        int64       `json:"mini_option,omitempty"`
	LastSize          int64       `json:"last_size,omitempty"`
	Bid               float32     `json:"bid,omitempty"`
	BidSize           int64       `json:"bid_size,omitempty"`
	Ask               float32     `json:"ask,omitempty"`
	AskSize           int64       `json:"ask_size,omitempty"`
	PriceHint         int64       `json:"price_hint,omitempty"`
	Vol24Hr           int64       `json:"vol_24hr,omitempty"`
	VolAllCurrencies  int64       `json:"vol_all_currencies,omitempty"`
	FromCurrency      string      `json:"from_currency,omitempty"`
	LastMarket        string      `json:"last_market,omitempty"`
	CirculatingSupply float64     `json:"circulating_supply,omitempty"`
	MarketCap         float64     `json:"market_cap,omitempty"`
}

// ErrEmptyFrame is returned for frames that carry no pricing payload, such
// as heartbeats.
var ErrEmptyFrame = errors.New("stream: empty frame")

// envelope is the JSON wrapper used by protocol version 2.
type envelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DecodeFrame decodes one websocket text frame. Both the JSON envelope
// {"type":"pricing","message":"<base64>"} and a bare base64 payload are
// accepted.
func DecodeFrame(frame []byte) (PricingData, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return PricingData{}, ErrEmptyFrame
	}
	payload := frame
	if frame[0] == '{' {
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			return PricingData{}, fmt.Errorf("stream: decode envelope: %w", err)
		}
		if env.Type != "" && env.Type != "pricing" {
			return PricingData{}, ErrEmptyFrame
		}
		if env.Message == "" {
			return PricingData{}, ErrEmptyFrame
		}
		payload = []byte(env.Message)
	}
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(raw, payload)
	if err != nil {
		return PricingData{}, fmt.Errorf("stream: decode base64: %w", err)
	}
	return DecodePricing(raw[:n])
}

// DecodePricing parses the protobuf wire form of PricingData. Unknown
// fields are skipped.
func DecodePricing(b []byte) (PricingData, error) {
	var p PricingData
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("stream: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("stream: field %d: %w", num, protowire.ParseError(n))
			}
			p.setString(num, string(v))
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return p, fmt.Errorf("stream: field %d: %w", num, protowire.ParseError(n))
			}
			p.setFloat32(num, math.Float32frombits(v))
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return p, fmt.Errorf("stream: field %d: %w", num, protowire.ParseError(n))
			}
			p.setFloat64(num, math.Float64frombits(v))
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("stream: field %d: %w", num, protowire.ParseError(n))
			}
			p.setVarint(num, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("stream: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if p.ID == "" {
		return p, errors.New("stream: pricing message without id")
	}
	return p, nil
}

func (p *PricingData) setString(num protowire.Number, v string) {
	switch num {
	case 1:
		p.ID = v
	case 4:
		p.Currency = v
	case 5:
		p.Exchange = v
	case 13:
		p.ShortName = v
	case 18:
		p.UnderlyingSymbol = v
	case 30:
		p.FromCurrency = v
	case 31:
		p.LastMarket = v
	}
}

func (p *PricingData) setFloat32(num protowire.Number, v float32) {
	switch num {
	case 2:
		p.Price = v
	case 8:
		p.ChangePercent = v
	case 10:
		p.DayHigh = v
	case 11:
		p.DayLow = v
	case 12:
		p.Change = v
	case 15:
		p.OpenPrice = v
	case 16:
		p.PreviousClose = v
	case 17:
		p.StrikePrice = v
	case 23:
		p.Bid = v
	case 25:
		p.Ask = v
	}
}

func (p *PricingData) setFloat64(num protowire.Number, v float64) {
	switch num {
	case 32:
		p.CirculatingSupply = v
	case 33:
		p.MarketCap = v
	}
}

// setVarint handles the enum (plain int32) and sint64 (zigzag) fields.
func (p *PricingData) setVarint(num protowire.Number, v uint64) {
	s := protowire.DecodeZigZag(v)
	switch num {
	case 3:
		p.Time = s
	case 6:
		p.QuoteType = int32(v)
	case 7:
		p.MarketHours = MarketHours(int32(v))
	case 9:
		p.DayVolume = s
	case 14:
		p.ExpireDate = s
	case 19:
		p.OpenInterest = s
	case 20:
		p.OptionsType = int32(v)
	case 21:
		p.MiniOption = s
	case 22:
		p.LastSize = s
	case 24:
		p.BidSize = s
	case 26:
		p.AskSize = s
	case 27:
		p.PriceHint = s
	case 28:
		p.Vol24Hr = s
	case 29:
		p.VolAllCurrencies = s
	}
}
