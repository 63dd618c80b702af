// Package schema decides which columns of an arbitrary spreadsheet hold
// phone numbers, email addresses, and person names.
package schema

import (
	"regexp"
	"strings"

	"github.com/vnnovate/relations-cli/internal/normalize"
	"github.com/vnnovate/relations-cli/internal/table"
)

// MergedPhone is the synthetic column created when several phone-like
// columns are coalesced into one.
const MergedPhone = "__merged_phone__"

// Phone keywords are matched with word-boundary logic (see IsPhoneColumn):
// 'phone' must match 'phone1', 'res_phone', 'phone_no' but not 'curphone1'
// or 'busphone2'.
var phoneKeywords = []string{
	"phone", "mobile", "mobileno", "mob",
	"cell", "telephone",
	"whatsapp", "contact_no", "contactno", "contact_num",
	"phone_no", "phoneno", "phone_num", "phone_number",
	"mobile_no", "mob_no", "mob_num",
	"tel_no", "telno", "tel_num",
	"cell_no", "cellno",
	"resphone", "res_phone", "alt_phone",
	"landline", "phn", "ph_no", "phno",
}

var phoneExcludes = []string{
	"zip", "pin_code", "pincode", "postal", "bus_pin",
	"emp_id", "employee_id", "empid",
	"customer_id", "cust_id", "custid",
	"order_id", "orderid",
	"invoice", "inv_no",
	"account_no", "accountno", "acc_no",
	"loan_id", "loanid",
	"ref_no", "refno", "reference",
	"serial_no", "serialno", "sr_no", "srno",
	"two_wheeler", "four_wheeler",
	"income", "salary", "credit_lim", "amount", "price",
	"qty", "quantity", "age", "year", "month",
	"date", "time", "rating", "score", "rank",
}

var emailKeywords = []string{
	"email", "e_mail", "emailid", "email_id", "email_address",
	"emailadd", "mail", "e-mail",
}

var emailExcludes = []string{
	"email_verified", "email_opt", "email_bounce", "email_status",
}

var nameKeywords = []string{
	"name", "user", "customer", "client", "person", "candidate", "applicant",
}

var nameExcludes = []string{
	"file", "user_name", "username",
}

var phonePatterns = buildPhonePatterns()

func buildPhonePatterns() []*regexp.Regexp {
	pats := make([]*regexp.Regexp, len(phoneKeywords))
	for i, kw := range phoneKeywords {
		// Keyword at start or after underscore, followed by end, underscore,
		// or a digit.
		pats[i] = regexp.MustCompile(`(^|_)` + regexp.QuoteMeta(kw) + `(_|$|\d)`)
	}
	return pats
}

// IsPhoneColumn reports whether a column name designates a phone column.
func IsPhoneColumn(name string) bool {
	c := strings.ToLower(strings.TrimSpace(name))
	for _, ex := range phoneExcludes {
		if strings.Contains(c, ex) {
			return false
		}
	}
	for _, pat := range phonePatterns {
		if pat.MatchString(c) {
			return true
		}
	}
	return false
}

// IsEmailColumn reports whether a column name designates an email column.
func IsEmailColumn(name string) bool {
	c := strings.ToLower(strings.TrimSpace(name))
	for _, ex := range emailExcludes {
		if strings.Contains(c, ex) {
			return false
		}
	}
	for _, kw := range emailKeywords {
		if strings.Contains(c, kw) {
			return true
		}
	}
	return false
}

func isNameColumn(name string) bool {
	for _, ex := range nameExcludes {
		if strings.Contains(name, ex) {
			return false
		}
	}
	for _, kw := range nameKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Columns is the outcome of classifying one table's header.
type Columns struct {
	Phone string // "" when no phone column; MergedPhone when coalesced
	Email string // first matching email column
	Names []string

	// All candidates, for diagnostics. More than one email candidate is a
	// known limitation: only the first is used.
	PhoneCandidates []string
	EmailCandidates []string
}

// Detect classifies t's columns and, when several phone columns exist,
// appends the coalesced MergedPhone column to t (first non-empty value per
// row, in original column order).
func Detect(t *table.Table) Columns {
	var c Columns
	for _, col := range t.Columns {
		if strings.HasPrefix(col, "__") && strings.HasSuffix(col, "__") {
			// Synthetic marker from a previous Detect pass.
			continue
		}
		if IsPhoneColumn(col) {
			c.PhoneCandidates = append(c.PhoneCandidates, col)
		}
		if IsEmailColumn(col) {
			c.EmailCandidates = append(c.EmailCandidates, col)
		}
		if isNameColumn(col) {
			c.Names = append(c.Names, col)
		}
	}

	switch len(c.PhoneCandidates) {
	case 0:
	case 1:
		c.Phone = c.PhoneCandidates[0]
	default:
		if t.ColumnIndex(MergedPhone) < 0 {
			// First non-empty candidate wins, in original column order.
			merged := make([]string, len(t.Rows))
			for _, pc := range c.PhoneCandidates {
				for i, v := range t.Column(pc) {
					if merged[i] == "" && !normalize.EmptyCell(v) {
						merged[i] = strings.TrimSpace(v)
					}
				}
			}
			t.AddColumn(MergedPhone, merged)
		}
		c.Phone = MergedPhone
	}

	if len(c.EmailCandidates) > 0 {
		c.Email = c.EmailCandidates[0]
	}
	return c
}

var nameSkipTokens = map[string]struct{}{
	"nan": {}, "none": {}, "null": {},
}

// DisplayName joins the row's non-empty name column values in column order.
func DisplayName(t *table.Table, nameCols []string, row int) string {
	var parts []string
	for _, nc := range nameCols {
		v := strings.TrimSpace(t.Cell(row, nc))
		if v == "" {
			continue
		}
		if _, skip := nameSkipTokens[strings.ToLower(v)]; skip {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}
