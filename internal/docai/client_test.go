package docai

import (
	"testing"

	documentai "google.golang.org/api/documentai/v1"
)

func TestFromDocument(t *testing.T) {
	doc := &documentai.GoogleCloudDocumentaiV1Document{
		Text: "ACME\nTotal 120.50 EUR",
		Entities: []*documentai.GoogleCloudDocumentaiV1DocumentEntity{
			{Type: "supplier_name", MentionText: " ACME ", Confidence: 0.93},
			{
				Type:        "total_amount",
				MentionText: "120.50",
				NormalizedValue: &documentai.GoogleCloudDocumentaiV1DocumentEntityNormalizedValue{
					MoneyValue: &documentai.GoogleTypeMoney{CurrencyCode: "EUR", Units: 120, Nanos: 500000000},
				},
				Properties: []*documentai.GoogleCloudDocumentaiV1DocumentEntity{
					{Type: "line_item/amount", MentionText: "100.00"},
				},
			},
			{
				Type:        "invoice_date",
				MentionText: "1 March 2024",
				NormalizedValue: &documentai.GoogleCloudDocumentaiV1DocumentEntityNormalizedValue{
					DateValue: &documentai.GoogleTypeDate{Year: 2024, Month: 3, Day: 1},
				},
			},
		},
	}
	got := FromDocument(doc)
	if got.Text != doc.Text {
		t.Fatalf("text not carried over")
	}
	if len(got.Entities) != 4 {
		t.Fatalf("expected 4 entities, got %d", len(got.Entities))
	}
	if got.Entities[0].Mention != "ACME" {
		t.Fatalf("mention not trimmed: %q", got.Entities[0].Mention)
	}
	if got.Entities[1].Normalized != "120.5" || got.Entities[1].Currency != "EUR" {
		t.Fatalf("money not normalized: %+v", got.Entities[1])
	}
	if got.Entities[2].Normalized != "2024-03-01" {
		t.Fatalf("date not normalized: %+v", got.Entities[2])
	}
	if got.Entities[3].Type != "line_item/amount" {
		t.Fatalf("properties should follow top-level entities: %+v", got.Entities[3])
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[[2]int64]string{
		{120, 0}:         "120",
		{0, 50000000}:    "0.05",
		{-3, -250000000}: "-3.25",
		{7, 1}:           "7.000000001",
	}
	for in, want := range cases {
		if got := moneyString(in[0], in[1]); got != want {
			t.Fatalf("moneyString(%d, %d) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestNilDocument(t *testing.T) {
	if got := FromDocument(nil); got.Text != "" || got.Entities != nil {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
