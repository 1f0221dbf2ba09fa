package registry

import (
	"github.com/lighthouse-labs/policywatch/pkg/fetch"
	"github.com/lighthouse-labs/policywatch/pkg/source"
)

// standardRoutes mirrors the per-country/visa fetcher roster in
// original_source/fetchers/ (de_bmi_work.py, de_arbeitsagentur_work.py,
// de_bamf_work.py, de_daad_student.py, ca_ircc_*.py,
// uk_home_office_*.py): each is a plain HTML fetch followed by
// enrichment metadata stamped only on success, exactly as those
// modules do.
func standardRoutes() []Entry {
	return []Entry{
		{
			Country: "Germany", VisaType: source.VisaWork, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Germany BMI", "BMI", "Work", "India -> Germany", ""),
		},
		{
			Country: "Germany", VisaType: source.VisaWork, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Germany Arbeitsagentur", "Arbeitsagentur", "Work", "India -> Germany", ""),
		},
		{
			Country: "Germany", VisaType: source.VisaWork, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Germany BAMF", "BAMF", "Work", "India -> Germany", ""),
		},
		{
			Country: "Germany", VisaType: source.VisaStudent, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Germany DAAD", "DAAD", "Student", "India -> Germany", ""),
		},
		{
			Country: "Canada", VisaType: source.VisaStudent, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Canada IRCC", "IRCC", "Student", "India -> Canada", ""),
		},
		{
			Country: "Canada", VisaType: source.VisaWork, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Canada IRCC", "IRCC", "Work", "India -> Canada", ""),
		},
		{
			Country: "Canada", VisaType: source.VisaBoth, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("Canada IRCC Operational Bulletins", "IRCC", "Both", "India -> Canada", ""),
		},
		{
			Country: "UK", VisaType: source.VisaWork, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("UK Home Office", "UKVI", "Work", "India -> UK", "work"),
		},
		{
			Country: "UK", VisaType: source.VisaStudent, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("UK Home Office", "UKVI", "Student", "India -> UK", "student"),
		},
		{
			Country: "UK", VisaType: source.VisaBoth, SourceType: source.KindHTML,
			Handler: fetchHTML,
			Enrich:  enrichWith("UK Home Office Immigration Rules", "UKVI", "Both", "India -> UK", "rules"),
		},
	}
}

// enrichWith builds an EnrichFunc that stamps the same fields the
// original per-agency fetchers add to result.metadata after a
// successful fetch.
func enrichWith(sourceName, agency, visaCategory, route, contentScope string) EnrichFunc {
	return func(result *fetch.Result, _ source.Source) {
		result.Metadata["source"] = sourceName
		result.Metadata["agency"] = agency
		result.Metadata["visa_category"] = visaCategory
		result.Metadata["route"] = route
		if contentScope != "" {
			result.Metadata["content_scope"] = contentScope
		}
	}
}
