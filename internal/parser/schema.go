package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const billSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["lineItems"],
  "properties": {
    "provider": {
      "type": ["object", "null"],
      "properties": {
        "name": {"type": ["string", "null"]},
        "type": {"type": ["string", "null"]}
      }
    },
    "dates": {
      "type": ["object", "null"],
      "properties": {
        "billDate": {"type": ["string", "null"]},
        "serviceDate": {"type": ["string", "null"]}
      }
    },
    "lineItems": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description", "billedAmount"],
        "properties": {
          "description": {"type": ["string", "null"]},
          "cptCode": {"type": ["string", "number", "null"]},
          "quantity": {"type": ["number", "null"]},
          "billedAmount": {"type": ["number", "null"]},
          "category": {"type": ["string", "null"]}
        }
      }
    },
    "totals": {
      "type": ["object", "null"],
      "properties": {
        "totalBilled": {"type": ["number", "null"]},
        "insurancePaid": {"type": ["number", "null"]},
        "patientResponsibility": {"type": ["number", "null"]}
      }
    }
  }
}`

var billSchema = jsonschema.MustCompileString("bill.json", billSchemaJSON)

// rawBill mirrors the JSON shape the model is asked to return.
type rawBill struct {
	Provider *struct {
		Name *string `json:"name"`
		Type *string `json:"type"`
	} `json:"provider"`
	Dates *struct {
		BillDate    *string `json:"billDate"`
		ServiceDate *string `json:"serviceDate"`
	} `json:"dates"`
	LineItems []rawLineItem `json:"lineItems"`
	Totals    *struct {
		TotalBilled           *float64 `json:"totalBilled"`
		InsurancePaid         *float64 `json:"insurancePaid"`
		PatientResponsibility *float64 `json:"patientResponsibility"`
	} `json:"totals"`
}

type rawLineItem struct {
	Description  *string         `json:"description"`
	CPTCode      json.RawMessage `json:"cptCode"`
	Quantity     *float64        `json:"quantity"`
	BilledAmount *float64        `json:"billedAmount"`
	Category     *string         `json:"category"`
}

// code returns the item's code as text. Models sometimes emit it as a number.
func (r rawLineItem) code() string {
	if len(r.CPTCode) == 0 || string(r.CPTCode) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.CPTCode, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(r.CPTCode, &n); err == nil {
		return n.String()
	}
	return ""
}

// decodeBill validates payload against the bill schema and decodes it.
func decodeBill(payload []byte) (*rawBill, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := billSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	var bill rawBill
	if err := json.Unmarshal(payload, &bill); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &bill, nil
}
