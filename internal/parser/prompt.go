package parser

import (
	"strings"

	"billscope/internal/port"
)

const systemPrompt = `You are a medical billing expert extracting structured charge data from healthcare bills.
Return ONLY a single valid JSON object. No markdown, no code fences, no commentary.`

// BuildBillPrompt returns the extraction prompt for raw bill text. Hints
// found by the text extractor are listed so the model can cross-check them.
func BuildBillPrompt(rawText string, hints port.ParseHints) string {
	var b strings.Builder
	b.WriteString(`Extract the billing data from the bill text below.

PERSONAL IDENTIFIERS MUST NOT APPEAR IN THE OUTPUT:
- no patient names
- no dates of birth
- no medical record, chart or account numbers
- no social security numbers
- no diagnoses, only service descriptions

BILL TEXT:
`)
	b.WriteString(rawText)
	b.WriteString("\n")

	if len(hints.Amounts) > 0 {
		b.WriteString("\nAMOUNTS FOUND IN TEXT: ")
		b.WriteString(strings.Join(hints.Amounts, ", "))
	}
	if len(hints.Dates) > 0 {
		b.WriteString("\nDATES FOUND IN TEXT: ")
		b.WriteString(strings.Join(hints.Dates, ", "))
	}
	if len(hints.Codes) > 0 {
		b.WriteString("\nPROCEDURE CODES FOUND IN TEXT: ")
		b.WriteString(strings.Join(hints.Codes, ", "))
	}

	b.WriteString(`

Return JSON with exactly this shape:
{
  "provider": {
    "name": "provider or facility name, no NPI or tax id",
    "type": "hospital|clinic|lab|imaging_center|pharmacy|therapy|other"
  },
  "dates": {
    "billDate": "YYYY-MM-DD or null",
    "serviceDate": "YYYY-MM-DD or null"
  },
  "lineItems": [
    {
      "description": "generic service description",
      "cptCode": "5 digit code or null",
      "quantity": 1,
      "billedAmount": 0.00,
      "category": "lab|imaging|office_visit|procedure|medication|emergency|surgery|therapy|other"
    }
  ],
  "totals": {
    "totalBilled": 0.00,
    "insurancePaid": null,
    "patientResponsibility": null
  }
}

RULES:
1. Descriptions use generic terms: "Complete Blood Count (CBC)", never "John's CBC".
2. Categories:
   - lab: blood tests, urinalysis, pathology
   - imaging: x-ray, CT, MRI, ultrasound
   - office_visit: consultations, exams
   - procedure: minor procedures, injections, biopsies
   - medication: prescriptions, IV drugs
   - emergency: ER and urgent care visits
   - surgery: major surgical procedures
   - therapy: physical, occupational and speech therapy
   - other: anything else
3. Leave cptCode null unless a 5 digit code is printed for the line.
4. If a description embeds a code ("99213 - Office visit"), put the code in cptCode and keep the description.
5. Amounts are plain numbers: $1,234.56 becomes 1234.56.
6. billedAmount is the charge per unit; quantity defaults to 1.
7. Use null for anything unclear or missing, never empty strings.
8. Skip headers, payments, adjustments and disclaimers. They are not charges.`)
	return b.String()
}
