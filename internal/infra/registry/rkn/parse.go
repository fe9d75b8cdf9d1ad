package rkn

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryanwahyu/pdaudit/internal/domain/registry"
)

var (
	reRegNumber = regexp.MustCompile(`\d{2}-\d+-\d+`)
	reRegDate   = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)

	notFoundMarkers = []string{"найдено: 0", "не найдено", "нет данных", "ничего не найдено"}
	entityMarkers   = []string{"ООО", "АО", "ИП", "ПАО"}
)

func isBotWall(page string) bool {
	return strings.Contains(page, "Проверка безопасности") || strings.Contains(strings.ToLower(page), "captcha")
}

// parse reads one registry search page for taxID.
func parse(page, taxID string) registry.Result {
	res := registry.Result{TaxID: taxID}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		res.Confidence = registry.ConfidenceLow
		res.Details = "The registry page could not be parsed."
		return res
	}

	if row, ok := matchingRow(doc, taxID); ok {
		res.IsRegistered = true
		res.Confidence = registry.ConfidenceHigh
		res.RegistrationNumber = reRegNumber.FindString(row)
		res.RegistrationDate = reRegDate.FindString(row)
		res.CompanyName = companyName(row)
		res.Details = "The operator is listed in the registry of personal data operators."
		return res
	}

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	lower := strings.ToLower(text)
	for _, m := range notFoundMarkers {
		if strings.Contains(lower, m) {
			res.Confidence = registry.ConfidenceMedium
			res.Details = "The registry search returned no operator for this tax identifier."
			return res
		}
	}
	if strings.Contains(text, taxID) {
		res.IsRegistered = true
		res.Confidence = registry.ConfidenceMedium
		res.Details = "The tax identifier appears on the registry page, details unavailable."
		return res
	}

	res.Confidence = registry.ConfidenceLow
	res.Details = "The registry page did not mention this tax identifier."
	return res
}

// matchingRow returns the cell texts of the first result row mentioning
// taxID, joined with " | " so numbers in adjacent cells stay apart.
func matchingRow(doc *goquery.Document, taxID string) (string, bool) {
	var found string
	doc.Find("table tr, .result-item, .operator-card").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td, th, .field, dd")
		var parts []string
		if cells.Length() == 0 {
			parts = strings.Split(row.Text(), "\n")
		} else {
			cells.Each(func(_ int, c *goquery.Selection) {
				parts = append(parts, c.Text())
			})
		}
		for i := range parts {
			parts[i] = strings.Join(strings.Fields(parts[i]), " ")
		}
		joined := strings.Join(parts, " | ")
		if !strings.Contains(joined, taxID) {
			return true
		}
		found = joined
		return false
	})
	return found, found != ""
}

func companyName(row string) string {
	for _, cell := range strings.Split(row, " | ") {
		if utf8.RuneCountInString(cell) <= 10 {
			continue
		}
		for _, m := range entityMarkers {
			if strings.Contains(cell, m) {
				return cell
			}
		}
	}
	if name, ok := registry.ExtractCompanyName(row); ok {
		return name
	}
	return ""
}
