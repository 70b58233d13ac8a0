package services

// countryNeighbors lists land or near-land neighbours. Travel between neighbours
// within a short time is plausible, so it is never reported as impossible.
var countryNeighbors = buildNeighborTable([][2]string{
	{"United States", "Canada"},
	{"United States", "Mexico"},
	{"Mexico", "Guatemala"},
	{"United Kingdom", "Ireland"},
	{"United Kingdom", "France"},
	{"France", "Belgium"},
	{"France", "Germany"},
	{"France", "Spain"},
	{"France", "Italy"},
	{"France", "Switzerland"},
	{"France", "Luxembourg"},
	{"Spain", "Portugal"},
	{"Germany", "Netherlands"},
	{"Germany", "Belgium"},
	{"Germany", "Luxembourg"},
	{"Germany", "Denmark"},
	{"Germany", "Poland"},
	{"Germany", "Czechia"},
	{"Germany", "Austria"},
	{"Germany", "Switzerland"},
	{"Netherlands", "Belgium"},
	{"Belgium", "Luxembourg"},
	{"Italy", "Switzerland"},
	{"Italy", "Austria"},
	{"Italy", "Slovenia"},
	{"Austria", "Switzerland"},
	{"Austria", "Czechia"},
	{"Austria", "Slovakia"},
	{"Austria", "Hungary"},
	{"Austria", "Slovenia"},
	{"Poland", "Czechia"},
	{"Poland", "Slovakia"},
	{"Poland", "Lithuania"},
	{"Poland", "Ukraine"},
	{"Czechia", "Slovakia"},
	{"Hungary", "Slovakia"},
	{"Hungary", "Romania"},
	{"Denmark", "Sweden"},
	{"Sweden", "Norway"},
	{"Sweden", "Finland"},
	{"Norway", "Finland"},
	{"Finland", "Russia"},
	{"Russia", "Ukraine"},
	{"Russia", "Kazakhstan"},
	{"Russia", "China"},
	{"China", "Mongolia"},
	{"China", "India"},
	{"China", "Vietnam"},
	{"China", "Hong Kong"},
	{"India", "Pakistan"},
	{"India", "Nepal"},
	{"India", "Bangladesh"},
	{"Thailand", "Malaysia"},
	{"Malaysia", "Singapore"},
	{"South Korea", "Japan"},
	{"Australia", "New Zealand"},
	{"Brazil", "Argentina"},
	{"Brazil", "Uruguay"},
	{"Brazil", "Paraguay"},
	{"Brazil", "Colombia"},
	{"Brazil", "Peru"},
	{"Argentina", "Chile"},
	{"Argentina", "Uruguay"},
	{"Colombia", "Ecuador"},
	{"Peru", "Ecuador"},
	{"South Africa", "Namibia"},
	{"South Africa", "Botswana"},
	{"South Africa", "Zimbabwe"},
	{"Kenya", "Uganda"},
	{"Kenya", "Tanzania"},
	{"Nigeria", "Benin"},
	{"Nigeria", "Cameroon"},
	{"Egypt", "Israel"},
	{"Israel", "Jordan"},
})

func buildNeighborTable(pairs [][2]string) map[string]map[string]struct{} {
	table := make(map[string]map[string]struct{}, len(pairs))
	add := func(a, b string) {
		if table[a] == nil {
			table[a] = make(map[string]struct{})
		}
		table[a][b] = struct{}{}
	}
	for _, p := range pairs {
		add(p[0], p[1])
		add(p[1], p[0])
	}
	return table
}

// areNeighbors reports whether two countries share a border or are the same
func areNeighbors(a, b string) bool {
	if a == b {
		return true
	}
	_, ok := countryNeighbors[a][b]
	return ok
}
