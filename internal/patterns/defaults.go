package patterns

import (
	"sync"
	"time"
)

// Shared sub-expressions. Each rule below wraps one of these in its single
// capture group.
const (
	numberExpr  = `([0-9][0-9.,]*)`
	moneyPrefix = `\s*[:\-]?\s*(?:[A-Za-z]{3}\s+)?[$€£¥₹]?\s*`
	idExpr      = `([A-Za-z0-9][A-Za-z0-9_\-]*)`
	dateExpr    = `(\d{4}-\d{1,2}-\d{1,2}` +
		`|\d{1,2}[./\-]\d{1,2}[./\-]\d{2,4}` +
		`|\d{1,2}(?:\s+de)?\s+\p{L}{3,}\.?(?:\s+de)?,?\s+\d{4}` +
		`|\p{L}{3,}\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`
	labelTail = `[ \t]*[:\-][ \t]*(\S[^\n]*?)[ \t]*$`
)

var defaultRules = []RuleSpec{
	// vendor: first capture longer than three characters wins
	{Field: FieldVendor, Lang: "en", Pattern: `(?im)^[ \t]*(?:vendor|supplier|seller|sold\s+by|billed\s+by|issued\s+by|from|company)` + labelTail},
	{Field: FieldVendor, Lang: "es", Pattern: `(?im)^[ \t]*(?:proveedor|emisor|emitido\s+por|raz[oó]n\s+social|empresa|vendedor)` + labelTail},
	{Field: FieldVendor, Lang: "pt", Pattern: `(?im)^[ \t]*(?:fornecedor|emitente|prestador|empresa|vendedor)` + labelTail},
	{Field: FieldVendor, Lang: "it", Pattern: `(?im)^[ \t]*(?:fornitore|cedente|emittente|ragione\s+sociale|venditore)` + labelTail},
	{Field: FieldVendor, Lang: "fr", Pattern: `(?im)^[ \t]*(?:fournisseur|vendeur|[ée]metteur|soci[ée]t[ée]|raison\s+sociale)` + labelTail},
	{Field: FieldVendor, Lang: "any", Fallback: true, Pattern: `(?m)^[ \t]*([\p{Lu}0-9][^\n]{1,60}?[ \t,]+(?:LLC|L\.L\.C\.|Inc\.?|Ltd\.?|Limited|Corp\.?|Corporation|GmbH|S\.L\.U?\.?|S\.A\.S?\.?|LDA|Lda\.?|S\.r\.l\.|S\.p\.A\.|SARL|SAS|B\.V\.|PLC))(?:[ \t,]|$)`},

	// invoice number: first match containing a digit wins
	{Field: FieldInvoiceNumber, Lang: "en", Pattern: `(?i)\binvoice\s*(?:number|num\.?|no\.?|nr\.?|#)\s*[:#.]?\s*` + idExpr},
	{Field: FieldInvoiceNumber, Lang: "en", Pattern: `(?i)\b(?:inv|bill)\s*(?:#|no\.?|number)\s*[:#]?\s*` + idExpr},
	{Field: FieldInvoiceNumber, Lang: "es", Pattern: `(?i)\b(?:n[uú]mero\s+de\s+factura|factura\s*(?:n[ºo°.]*|n[uú]m(?:ero)?\.?|#))\s*[:#.]?\s*` + idExpr},
	{Field: FieldInvoiceNumber, Lang: "pt", Pattern: `(?i)\b(?:n[uú]mero\s+da\s+fatura|fatura\s*(?:n[ºo°.]*|#))\s*[:#.]?\s*` + idExpr},
	{Field: FieldInvoiceNumber, Lang: "it", Pattern: `(?i)\b(?:numero\s+(?:fattura|documento)|fattura\s*(?:n[ºo°.]*|#))\s*[:#.]?\s*` + idExpr},
	{Field: FieldInvoiceNumber, Lang: "fr", Pattern: `(?i)\b(?:num[ée]ro\s+de\s+facture|facture\s*(?:n[ºo°.]*|#))\s*[:#.]?\s*` + idExpr},
	{Field: FieldInvoiceNumber, Lang: "any", Pattern: `(?i)\b(?:invoice|factura|fattura|fatura|facture|rechnung)\s*[:#]\s*` + idExpr},

	// amount: every match of every rule is a candidate, the largest wins
	{Field: FieldAmount, Lang: "en", Pattern: `(?i)\b(?:grand\s+total|total\s+(?:due|amount|payable)|amount\s+(?:due|payable)|balance\s+due|sub\s*total|total|amount)` + moneyPrefix + numberExpr},
	{Field: FieldAmount, Lang: "es", Pattern: `(?i)\b(?:importe\s+total|total\s+a\s+pagar|total\s+factura|base\s+imponible|importe|total)` + moneyPrefix + numberExpr},
	{Field: FieldAmount, Lang: "pt", Pattern: `(?i)\b(?:valor\s+total|total\s+a\s+pagar|valor\s+a\s+pagar|valor)` + moneyPrefix + numberExpr},
	{Field: FieldAmount, Lang: "it", Pattern: `(?i)\b(?:totale\s+(?:documento|fattura|da\s+pagare)|importo\s+totale|totale|importo)` + moneyPrefix + numberExpr},
	{Field: FieldAmount, Lang: "fr", Pattern: `(?i)\b(?:montant\s+(?:total|ttc|d[uû])|total\s+ttc|net\s+[àa]\s+payer|montant|total)` + moneyPrefix + numberExpr},
	{Field: FieldAmount, Lang: "any", Pattern: `[$€£¥₹]\s*` + numberExpr},
	{Field: FieldAmount, Lang: "any", Pattern: `(?i)([0-9][0-9.,]*)\s*(?:€|EUR\b|USD\b|GBP\b)`},

	{Field: FieldTaxAmount, Lang: "any", Pattern: `(?i)\b(?:total\s+tax|sales\s+tax|tax|vat|iva|tva|igic|mwst|imposta|imposto)(?:\s*\(?\s*\d{1,2}(?:[.,]\d{1,2})?\s*%\s*\)?)?` + moneyPrefix + numberExpr},

	{Field: FieldCurrency, Lang: "any", Pattern: `(?i)\b(?:currency|moneda|moeda|divisa|valuta|devise)\s*[:\-]?\s*([A-Za-z]{3})\b`},

	{Field: FieldIssueDate, Lang: "en", Pattern: `(?i)\b(?:invoice\s+date|date\s+of\s+issue|issue\s+date|issued\s+on|billing\s+date)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldIssueDate, Lang: "en", Pattern: `(?im)^[ \t]*date[ \t]*[:\-]?[ \t]*` + dateExpr},
	{Field: FieldIssueDate, Lang: "es", Pattern: `(?i)\bfecha(?:\s+de)?(?:\s+(?:emisi[oó]n|factura|expedici[oó]n))?\s*[:\-]?\s*` + dateExpr},
	{Field: FieldIssueDate, Lang: "pt", Pattern: `(?i)\bdata(?:\s+de)?\s+(?:emiss[aã]o|fatura)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldIssueDate, Lang: "it", Pattern: `(?i)\bdata(?:\s+(?:fattura|emissione|documento|del\s+documento))?\s*[:\-]?\s*` + dateExpr},
	{Field: FieldIssueDate, Lang: "fr", Pattern: `(?i)\bdate(?:\s+de)?\s+(?:facture|facturation|[ée]mission)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldIssueDate, Lang: "any", Fallback: true, DateOrder: MonthFirst, Pattern: `\b(\d{4}-\d{2}-\d{2}|\d{1,2}[./\-]\d{1,2}[./\-]\d{4})\b`},
	{Field: FieldIssueDate, Lang: "en", Fallback: true, Pattern: `(?i)\b(\p{L}{3,}\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4})`},

	{Field: FieldDueDate, Lang: "en", Pattern: `(?i)\b(?:due\s+date|payment\s+due(?:\s+date)?|due\s+by|due\s+on|pay\s+by)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldDueDate, Lang: "es", Pattern: `(?i)\b(?:fecha\s+de\s+vencimiento|vencimiento|fecha\s+l[ií]mite(?:\s+de\s+pago)?)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldDueDate, Lang: "pt", Pattern: `(?i)\b(?:data\s+de\s+vencimento|vencimento)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldDueDate, Lang: "it", Pattern: `(?i)\b(?:data\s+(?:di\s+)?scadenza|scadenza)\s*[:\-]?\s*` + dateExpr},
	{Field: FieldDueDate, Lang: "fr", Pattern: `(?i)(?:date\s+d['’]\s*[ée]ch[ée]ance|[ée]ch[ée]ance|payable\s+avant\s+le|date\s+limite\s+de\s+paiement)\s*[:\-]?\s*` + dateExpr},
}

var defaultInvoiceKeywords = []string{
	"invoice", "factura", "fattura", "fatura", "facture", "rechnung",
	"bill", "receipt", "recibo", "ricevuta", "reçu", "nota fiscal", "quittung",
}

// Matched on word boundaries, so "eur" does not fire on "europe".
var defaultIndicators = []string{
	"total", "subtotal", "amount", "due", "balance", "tax", "vat",
	"iva", "tva", "mwst", "importe", "importo", "montant", "valor", "totale",
	"usd", "eur", "gbp", "jpy", "inr",
}

var defaultCurrencies = []Currency{
	{Code: "EUR", Symbols: []string{"€"}},
	{Code: "USD", Symbols: []string{"US$", "$"}},
	{Code: "GBP", Symbols: []string{"£"}},
	{Code: "JPY", Symbols: []string{"¥"}},
	{Code: "INR", Symbols: []string{"₹"}},
}

var defaultMonths = map[string]time.Month{
	// en
	"january": time.January, "february": time.February, "march": time.March, "april": time.April,
	"may": time.May, "june": time.June, "july": time.July, "august": time.August,
	"september": time.September, "october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "apr": time.April, "jun": time.June, "jul": time.July,
	"aug": time.August, "sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December, "mar": time.March,
	// es
	"enero": time.January, "febrero": time.February, "marzo": time.March, "abril": time.April,
	"mayo": time.May, "junio": time.June, "julio": time.July, "agosto": time.August,
	"septiembre": time.September, "setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
	"ene": time.January, "abr": time.April, "ago": time.August, "dic": time.December,
	// pt
	"janeiro": time.January, "fevereiro": time.February, "março": time.March, "marco": time.March,
	"maio": time.May, "junho": time.June, "julho": time.July, "setembro": time.September,
	"outubro": time.October, "novembro": time.November, "dezembro": time.December,
	"fev": time.February, "mai": time.May, "set": time.September, "out": time.October, "dez": time.December,
	// it
	"gennaio": time.January, "febbraio": time.February, "aprile": time.April, "maggio": time.May,
	"giugno": time.June, "luglio": time.July, "settembre": time.September, "ottobre": time.October,
	"novembre": time.November, "dicembre": time.December,
	"gen": time.January, "mag": time.May, "giu": time.June, "lug": time.July, "ott": time.October,
	// fr
	"janvier": time.January, "février": time.February, "fevrier": time.February, "mars": time.March,
	"avril": time.April, "juin": time.June, "juillet": time.July, "août": time.August, "aout": time.August,
	"septembre": time.September, "octobre": time.October, "décembre": time.December, "decembre": time.December,
	"janv": time.January, "févr": time.February, "fevr": time.February, "avr": time.April,
	"juil": time.July, "déc": time.December,
}

var (
	defaultOnce sync.Once
	defaultBank *Bank
)

// Default returns the built-in bank. It panics if a built-in rule fails to
// compile, which is a programming error.
func Default() *Bank {
	defaultOnce.Do(func() {
		base := &Bank{rules: map[Field][]Rule{}, months: map[string]time.Month{}}
		bank, err := base.Extend(Extension{
			Rules:           defaultRules,
			InvoiceKeywords: defaultInvoiceKeywords,
			Indicators:      defaultIndicators,
			Currencies:      defaultCurrencies,
			Months:          defaultMonths,
		})
		if err != nil {
			panic("patterns: built-in bank: " + err.Error())
		}
		defaultBank = bank
	})
	return defaultBank
}
