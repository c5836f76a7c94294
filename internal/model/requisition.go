package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RequisitionType selects the shape of a requisition's line items.
type RequisitionType string

const (
	// TypeFactory is a factory service request.
	TypeFactory RequisitionType = "factory"
	// TypeProduction is a production service request; only these carry delivery items.
	TypeProduction RequisitionType = "production"
)

// ParseRequisitionType normalizes a wire value. Unknown values are returned
// lower-cased with ok=false.
func ParseRequisitionType(s string) (RequisitionType, bool) {
	t := RequisitionType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeFactory, TypeProduction:
		return t, true
	}
	return t, false
}

// UnmarshalJSON accepts any casing of the type name.
func (t *RequisitionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("requisition type: %w", err)
	}
	*t, _ = ParseRequisitionType(s)
	return nil
}

// Quantity is a decimal amount that tolerates empty spreadsheet cells.
type Quantity struct {
	decimal.Decimal
}

// NewQuantity parses a decimal string such as "2.5".
func NewQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Quantity{}, fmt.Errorf("quantity %q: %w", s, err)
	}
	return Quantity{Decimal: d}, nil
}

// QuantityOf builds a whole-number quantity.
func QuantityOf(n int64) Quantity {
	return Quantity{Decimal: decimal.NewFromInt(n)}
}

// UnmarshalJSON reads numbers and numeric strings; null and "" read as zero.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		q.Decimal = decimal.Zero
		return nil
	}
	return q.Decimal.UnmarshalJSON(data)
}

// ServiceItem is one line of a requisition. Factory lines use Code and Unit;
// production lines use Environment and Color.
type ServiceItem struct {
	Code        string   `json:"code,omitempty"`
	Environment string   `json:"environment,omitempty"`
	Description string   `json:"description" validate:"required"`
	Quantity    Quantity `json:"quantity"`
	Unit        string   `json:"unit,omitempty"`
	Color       string   `json:"color,omitempty"`
}

// DeliveryItem is one line of a production requisition's delivery list.
type DeliveryItem struct {
	Description string   `json:"description" validate:"required"`
	Quantity    Quantity `json:"quantity"`
	Delivered   bool     `json:"delivered,omitempty"`
}

// Photo references an image either remotely (URL) or inline (DataURL).
type Photo struct {
	URL     string `json:"url,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// minInlineImage is the shortest data URL treated as real image content.
const minInlineImage = 100

// Usable reports whether the photo has any image reference at all.
func (p Photo) Usable() bool {
	return p.URL != "" || p.DataURL != ""
}

// NeedsDownload reports whether the inline image is missing but a remote
// reference exists to fetch it from.
func (p Photo) NeedsDownload() bool {
	return len(p.DataURL) < minInlineImage && p.URL != ""
}

// Requisition is one work request.
type Requisition struct {
	ID                string          `json:"id" validate:"required"`
	RequisitionNumber string          `json:"requisitionNumber" validate:"required,requisition_number"`
	Type              RequisitionType `json:"type" validate:"oneof=factory production"`
	CreatedAt         string          `json:"createdAt,omitempty"`
	CreatedBy         string          `json:"createdBy,omitempty"`
	Fitter            string          `json:"fitter,omitempty"`
	ClientName        string          `json:"clientName,omitempty"`
	OrderNumber       string          `json:"orderNumber,omitempty"`
	Status            string          `json:"status,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	UpdatedAt         string          `json:"updatedAt,omitempty"`
	Services          []ServiceItem   `json:"services,omitempty" validate:"dive"`
	DeliveryItems     []DeliveryItem  `json:"deliveryItems,omitempty" validate:"dive"`
	Photos            []Photo         `json:"photos,omitempty"`

	// Extra holds fields this client does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// requisitionFields are the JSON keys owned by Requisition's struct fields.
var requisitionFields = []string{
	"id", "requisitionNumber", "type", "createdAt", "createdBy", "fitter",
	"clientName", "orderNumber", "status", "notes", "updatedAt",
	"services", "deliveryItems", "photos",
}

// textFields are read as strings even when the sheet serialized them as numbers.
var textFields = []string{
	"id", "requisitionNumber", "createdBy", "fitter", "clientName",
	"orderNumber", "status", "notes",
}

type requisitionJSON Requisition

// MarshalJSON writes the modelled fields plus any preserved extras.
func (r Requisition) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(requisitionJSON(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, owned := merged[k]; !owned && !isRequisitionField(k) {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes leniently and keeps unknown fields in Extra.
func (r *Requisition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range textFields {
		if v, ok := raw[k]; ok {
			raw[k] = quoteScalar(v)
		}
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var base requisitionJSON
	if err := json.Unmarshal(normalized, &base); err != nil {
		return err
	}
	for _, k := range requisitionFields {
		delete(raw, k)
	}
	*r = Requisition(base)
	r.Extra = nil
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

func isRequisitionField(k string) bool {
	for _, f := range requisitionFields {
		if f == k {
			return true
		}
	}
	return false
}

// quoteScalar turns a bare JSON number or boolean into a JSON string.
func quoteScalar(v json.RawMessage) json.RawMessage {
	t := bytes.TrimSpace(v)
	if len(t) == 0 {
		return v
	}
	switch t[0] {
	case '"', '{', '[', 'n':
		return v
	}
	return json.RawMessage(strconv.Quote(string(t)))
}

// createdLayouts are the timestamp shapes the sheet has been seen to produce.
var createdLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CreatedTime parses CreatedAt. ok is false when it is missing or invalid.
func (r Requisition) CreatedTime() (time.Time, bool) {
	s := strings.TrimSpace(r.CreatedAt)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortKey is CreatedAt in Unix milliseconds, 0 when it does not parse.
func (r Requisition) sortKey() int64 {
	t, ok := r.CreatedTime()
	if !ok {
		return 0
	}
	return t.UnixMilli()
}
