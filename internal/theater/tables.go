package theater

import "strings"

// countryNames is the static set of entities treated as theaters.
// Blocs and institutions (NATO, EU, UN) are deliberately absent:
// they are strategic entities but not theaters.
var countryNames = []string{
	"Afghanistan", "Argentina", "Armenia", "Australia", "Austria",
	"Azerbaijan", "Bangladesh", "Belarus", "Belgium", "Brazil",
	"Canada", "Chile", "China", "Colombia", "Cuba", "Czech Republic",
	"Denmark", "Egypt", "Estonia", "Ethiopia", "Finland", "France",
	"Georgia", "Germany", "Greece", "Hungary", "India", "Indonesia",
	"Iran", "Iraq", "Ireland", "Israel", "Italy", "Japan", "Jordan",
	"Kazakhstan", "Kenya", "Kuwait", "Latvia", "Lebanon", "Libya",
	"Lithuania", "Malaysia", "Mexico", "Moldova", "Mongolia",
	"Morocco", "Myanmar", "Netherlands", "New Zealand", "Nigeria",
	"North Korea", "Norway", "Pakistan", "Palestine", "Philippines",
	"Poland", "Portugal", "Qatar", "Romania", "Russia",
	"Saudi Arabia", "Serbia", "Singapore", "Slovakia", "South Africa",
	"South Korea", "Spain", "Sudan", "Sweden", "Switzerland", "Syria",
	"Taiwan", "Thailand", "Turkey", "Ukraine", "United Arab Emirates",
	"United Kingdom", "United States", "Venezuela", "Vietnam", "Yemen",
}

// bilateralTheaters maps canonical country pairs to named theaters.
// Lookup is unordered; keys are built by pairKey.
var bilateralTheaters = map[string]string{
	pairKey("Russia", "Ukraine"):            "Russia-Ukraine Conflict",
	pairKey("China", "Taiwan"):              "China-Taiwan Strait",
	pairKey("United States", "China"):       "US-China Strategic Competition",
	pairKey("United States", "Russia"):      "US-Russia Relations",
	pairKey("United States", "Iran"):        "US-Iran Tensions",
	pairKey("Israel", "Iran"):               "Israel-Iran Conflict",
	pairKey("Israel", "Palestine"):          "Israel-Palestine Conflict",
	pairKey("India", "Pakistan"):            "India-Pakistan Tensions",
	pairKey("India", "China"):               "India-China Border Dispute",
	pairKey("North Korea", "South Korea"):   "Korean Peninsula",
	pairKey("North Korea", "United States"): "US-North Korea Standoff",
	pairKey("Armenia", "Azerbaijan"):        "Armenia-Azerbaijan Conflict",
	pairKey("Serbia", "Kosovo"):             "Serbia-Kosovo Tensions",
	pairKey("Greece", "Turkey"):             "Greece-Turkey Dispute",
}

// techIndicators marks entities whose presence pushes the theater to
// Global regardless of geography.
var techIndicators = []string{
	"Meta", "Google", "Apple", "Microsoft", "Amazon", "OpenAI",
	"Anthropic", "Nvidia", "Intel", "AMD", "TSMC", "Samsung",
	"Huawei", "TikTok", "ByteDance", "Tesla", "SpaceX", "IBM",
	"Oracle", "Alibaba", "Tencent", "Baidu",
}

// pairKey builds an order-independent lookup key for a country pair.
func pairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
